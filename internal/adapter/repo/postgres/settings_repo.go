package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// riotAPIKeySetting is the admin_settings key holding the active API key. The
// table is owned by the operator surface; this core only ever reads it.
const riotAPIKeySetting = "riot_api_key"

// SettingsRepo reads operator-managed settings.
type SettingsRepo struct{ Pool PgxPool }

// NewSettingsRepo constructs a SettingsRepo with the given pool.
func NewSettingsRepo(p PgxPool) *SettingsRepo { return &SettingsRepo{Pool: p} }

// APIKey returns the active external API key, ErrNotFound when the row is
// absent or blank.
func (r *SettingsRepo) APIKey(ctx domain.Context) (string, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.APIKey")
	defer span.End()
	q := `SELECT value FROM admin_settings WHERE key=$1`
	var value string
	if err := r.Pool.QueryRow(ctx, q, riotAPIKeySetting).Scan(&value); err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("op=settings.api_key: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("op=settings.api_key: %w", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("op=settings.api_key: %w", domain.ErrNotFound)
	}
	return value, nil
}

// SetAPIKey writes the active external API key. The seeding command is the
// only writer; the server treats the table as read-only.
func (r *SettingsRepo) SetAPIKey(ctx domain.Context, key string) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.SetAPIKey")
	defer span.End()
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("op=settings.set_api_key: %w: empty key", domain.ErrInvalidArgument)
	}
	q := `INSERT INTO admin_settings (key, value, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, riotAPIKeySetting, key); err != nil {
		return fmt.Errorf("op=settings.set_api_key: %w", err)
	}
	return nil
}
