package riotapi

import (
	"fmt"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// platformToRegion fixes the routing from platform hosts (summoner,
// league, spectator) to their regional hosts (account, match).
var platformToRegion = map[string]string{
	"na1": "americas",
	"br1": "americas",
	"la1": "americas",
	"la2": "americas",

	"euw1": "europe",
	"eun1": "europe",
	"tr1":  "europe",
	"ru":   "europe",

	"kr":  "asia",
	"jp1": "asia",

	"oc1": "sea",
	"ph2": "sea",
	"sg2": "sea",
	"th2": "sea",
	"tw2": "sea",
	"vn2": "sea",
}

// RegionFor resolves the regional routing value for a platform.
func RegionFor(platform string) (string, error) {
	region, ok := platformToRegion[platform]
	if !ok {
		return "", fmt.Errorf("op=riot.RegionFor: %w: unknown platform %q", domain.ErrConfigInvalid, platform)
	}
	return region, nil
}

// KnownPlatform reports whether the platform has a routing entry.
func KnownPlatform(platform string) bool {
	_, ok := platformToRegion[platform]
	return ok
}

func hostFor(routing string) string {
	return "https://" + routing + ".api.riotgames.com"
}
