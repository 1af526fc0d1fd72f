// Package seed provisions the job configuration rows an installation starts
// from, optionally shaped by a YAML overrides file, plus the stored API key.
// The server only reads these rows; operators change them through the API
// afterwards.
package seed

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/usecase"
)

// Store is the persistence surface seeding writes through. Upsert keeps an
// existing row's is_active flag, so reseeding never re-enables a paused job.
type Store interface {
	Upsert(ctx domain.Context, c domain.JobConfiguration) error
}

type seedFile struct {
	Jobs []seedEntry `yaml:"jobs"`
}

type seedEntry struct {
	JobType  string       `yaml:"job_type"`
	Name     string       `yaml:"name"`
	Schedule string       `yaml:"schedule"`
	Enabled  *bool        `yaml:"enabled"`
	Settings seedSettings `yaml:"settings"`
}

// seedSettings mirrors the stored settings blob with YAML field names. Zero
// values are omitted from the row so the runtime defaults keep applying.
type seedSettings struct {
	MaxTrackedPlayersPerRun int `yaml:"max_tracked_players_per_run"`
	MaxNewMatchesPerPlayer  int `yaml:"max_new_matches_per_player"`
	MatchesPerPlayerPerRun  int `yaml:"matches_per_player_per_run"`
	TargetMatchesPerPlayer  int `yaml:"target_matches_per_player"`
	MinimumGamesForAnalysis int `yaml:"minimum_games_for_analysis"`
	ReanalysisAgeDays       int `yaml:"reanalysis_age"`
	BanCheckDays            int `yaml:"ban_check_days"`
	JobTimeoutSeconds       int `yaml:"job_timeout_seconds"`
	PerJobConcurrency       int `yaml:"per_job_concurrency"`
}

func (s seedSettings) domain() domain.JobSettings {
	return domain.JobSettings{
		MaxTrackedPlayersPerRun: s.MaxTrackedPlayersPerRun,
		MaxNewMatchesPerPlayer:  s.MaxNewMatchesPerPlayer,
		MatchesPerPlayerPerRun:  s.MatchesPerPlayerPerRun,
		TargetMatchesPerPlayer:  s.TargetMatchesPerPlayer,
		MinimumGamesForAnalysis: s.MinimumGamesForAnalysis,
		ReanalysisAgeDays:       s.ReanalysisAgeDays,
		BanCheckDays:            s.BanCheckDays,
		JobTimeoutSeconds:       s.JobTimeoutSeconds,
		PerJobConcurrency:       s.PerJobConcurrency,
	}
}

// Defaults returns the stock configuration for every job kind: updater every
// ten minutes, fetcher every thirty, analyzer hourly, ban checker nightly at
// 04:00, all enabled, settings left to the runtime defaults.
func Defaults() []domain.JobConfiguration {
	return []domain.JobConfiguration{
		{
			JobType:  domain.JobTypeTrackedPlayerUpdater,
			Name:     "Tracked Player Updater",
			Schedule: "@every 10m",
			IsActive: true,
		},
		{
			JobType:  domain.JobTypeMatchFetcher,
			Name:     "Match Fetcher",
			Schedule: "@every 30m",
			IsActive: true,
		},
		{
			JobType:  domain.JobTypePlayerAnalyzer,
			Name:     "Player Analyzer",
			Schedule: "@every 1h",
			IsActive: true,
		},
		{
			JobType:  domain.JobTypeBanChecker,
			Name:     "Ban Checker",
			Schedule: "0 4 * * *",
			IsActive: true,
		},
	}
}

// Load returns the default configurations with the overrides from the given
// YAML file applied. Jobs the file does not name keep their defaults; an
// empty path returns the defaults unchanged.
func Load(path string) ([]domain.JobConfiguration, error) {
	configs := Defaults()
	if path == "" {
		return configs, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("op=seed.load: seed file not found: %s", path)
		}
		return nil, fmt.Errorf("op=seed.load: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("op=seed.load: parse %s: %w", path, err)
	}

	byType := make(map[domain.JobType]int, len(configs))
	for i, c := range configs {
		byType[c.JobType] = i
	}
	for _, entry := range doc.Jobs {
		t := domain.JobType(entry.JobType)
		idx, ok := byType[t]
		if !ok {
			return nil, fmt.Errorf("op=seed.load: %w: unknown job type %q", domain.ErrInvalidArgument, entry.JobType)
		}
		cfg := &configs[idx]
		if entry.Name != "" {
			cfg.Name = entry.Name
		}
		if entry.Schedule != "" {
			if err := usecase.ValidateSchedule(entry.Schedule); err != nil {
				return nil, fmt.Errorf("op=seed.load: %s: %w", entry.JobType, err)
			}
			cfg.Schedule = entry.Schedule
		}
		if entry.Enabled != nil {
			cfg.IsActive = *entry.Enabled
		}
		cfg.Settings = entry.Settings.domain()
	}
	return configs, nil
}

// Apply upserts every configuration.
func Apply(ctx domain.Context, store Store, configs []domain.JobConfiguration) error {
	for _, c := range configs {
		if err := store.Upsert(ctx, c); err != nil {
			return fmt.Errorf("op=seed.apply: %s: %w", c.JobType, err)
		}
		slog.Info("job configuration seeded",
			slog.String("job_type", string(c.JobType)),
			slog.String("schedule", c.Schedule),
			slog.Bool("enabled", c.IsActive))
	}
	return nil
}
