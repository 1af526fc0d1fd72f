package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/fairyhunter13/smurfguard/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields and
// installs it as the process default.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	// Dev runs chatty; tests stay quiet.
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	var out io.Writer = os.Stdout
	if cfg.IsTest() {
		out = io.Discard
	}
	h := slog.NewJSONHandler(out, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	slog.SetDefault(logger)
	return logger
}
