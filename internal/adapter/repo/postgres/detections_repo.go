package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// DetectionRepo stores analysis results append-only.
type DetectionRepo struct{ Pool PgxPool }

// NewDetectionRepo constructs a DetectionRepo with the given pool.
func NewDetectionRepo(p PgxPool) *DetectionRepo { return &DetectionRepo{Pool: p} }

const detectionCols = `id, puuid, overall_score, factor_scores, confidence, games_analyzed, queue_type, analysis_version, notes, created_at`

func scanDetection(row pgx.Row) (domain.SmurfDetection, error) {
	var d domain.SmurfDetection
	var factors, notes []byte
	if err := row.Scan(&d.ID, &d.PUUID, &d.OverallScore, &factors, &d.Confidence,
		&d.GamesAnalyzed, &d.QueueType, &d.AnalysisVersion, &notes, &d.CreatedAt); err != nil {
		return domain.SmurfDetection{}, err
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &d.FactorScores); err != nil {
			return domain.SmurfDetection{}, fmt.Errorf("decode factor_scores: %w", err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &d.Notes); err != nil {
			return domain.SmurfDetection{}, fmt.Errorf("decode notes: %w", err)
		}
	}
	return d, nil
}

// Insert appends one detection row and returns its id. Existing rows are
// never touched; the latest view is derived by created_at.
func (r *DetectionRepo) Insert(ctx domain.Context, d domain.SmurfDetection) (int64, error) {
	tracer := otel.Tracer("repo.detections")
	ctx, span := tracer.Start(ctx, "detections.Insert")
	defer span.End()
	factors, err := json.Marshal(d.FactorScores)
	if err != nil {
		return 0, fmt.Errorf("op=detection.insert: encode factor_scores: %w", err)
	}
	notes, err := json.Marshal(d.Notes)
	if err != nil {
		return 0, fmt.Errorf("op=detection.insert: encode notes: %w", err)
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO smurf_detections (puuid, overall_score, factor_scores, confidence, games_analyzed, queue_type, analysis_version, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`
	var id int64
	if err := r.Pool.QueryRow(ctx, q, d.PUUID, d.OverallScore, factors, d.Confidence,
		d.GamesAnalyzed, d.QueueType, d.AnalysisVersion, notes, created).Scan(&id); err != nil {
		return 0, fmt.Errorf("op=detection.insert: %w", err)
	}
	return id, nil
}

// Latest loads the newest detection for the player.
func (r *DetectionRepo) Latest(ctx domain.Context, puuid string) (domain.SmurfDetection, error) {
	tracer := otel.Tracer("repo.detections")
	ctx, span := tracer.Start(ctx, "detections.Latest")
	defer span.End()
	q := `SELECT ` + detectionCols + ` FROM smurf_detections WHERE puuid=$1 ORDER BY created_at DESC, id DESC LIMIT 1`
	d, err := scanDetection(r.Pool.QueryRow(ctx, q, puuid))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SmurfDetection{}, fmt.Errorf("op=detection.latest: %w", domain.ErrNotFound)
		}
		return domain.SmurfDetection{}, fmt.Errorf("op=detection.latest: %w", err)
	}
	return d, nil
}

// ListByPlayer returns the player's detections, newest first.
func (r *DetectionRepo) ListByPlayer(ctx domain.Context, puuid string, limit int) ([]domain.SmurfDetection, error) {
	tracer := otel.Tracer("repo.detections")
	ctx, span := tracer.Start(ctx, "detections.ListByPlayer")
	defer span.End()
	q := `SELECT ` + detectionCols + ` FROM smurf_detections WHERE puuid=$1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, puuid, limit)
	if err != nil {
		return nil, fmt.Errorf("op=detection.list_by_player: %w", err)
	}
	defer rows.Close()
	var out []domain.SmurfDetection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("op=detection.list_by_player_scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=detection.list_by_player_rows: %w", err)
	}
	return out, nil
}
