package usecase

import (
	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// Pinger is a liveness probe over one backing service.
type Pinger interface {
	Ping(ctx domain.Context) error
}

// ReadinessCheck represents a single readiness probe result used by handlers.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// ReadinessService aggregates the probes behind the readiness endpoint.
type ReadinessService struct {
	DB       Pinger
	Redis    Pinger // nil when the limiter mirror is disabled
	Settings domain.SettingsStore
}

// NewReadinessService constructs a ReadinessService with its dependencies.
func NewReadinessService(db, redis Pinger, settings domain.SettingsStore) ReadinessService {
	return ReadinessService{DB: db, Redis: redis, Settings: settings}
}

// Readiness runs every probe and returns the per-dependency results.
func (s ReadinessService) Readiness(ctx domain.Context) []ReadinessCheck {
	checks := make([]ReadinessCheck, 0, 3)
	checks = append(checks, probe(ctx, "database", s.DB))
	if s.Redis != nil {
		checks = append(checks, probe(ctx, "redis", s.Redis))
	} else {
		checks = append(checks, ReadinessCheck{Name: "redis", OK: true, Details: "mirror disabled"})
	}

	// the client refuses to make platform calls without a key, so surface
	// its absence before the first job run fails
	key := ReadinessCheck{Name: "riot_api_key", OK: true}
	switch {
	case s.Settings == nil:
		key.OK, key.Details = false, "settings store unavailable"
	default:
		if _, err := s.Settings.APIKey(ctx); err != nil {
			key.OK, key.Details = false, "api key not configured"
		}
	}
	checks = append(checks, key)
	return checks
}

func probe(ctx domain.Context, name string, p Pinger) ReadinessCheck {
	if p == nil {
		return ReadinessCheck{Name: name, OK: false, Details: "not configured"}
	}
	if err := p.Ping(ctx); err != nil {
		return ReadinessCheck{Name: name, OK: false, Details: err.Error()}
	}
	return ReadinessCheck{Name: name, OK: true}
}

// Ready reports whether every check passed.
func Ready(checks []ReadinessCheck) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return len(checks) > 0
}
