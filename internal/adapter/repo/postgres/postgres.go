//go:build ignore

// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

// Legacy stub file intentionally ignored by the Go build.
// Real implementations live in: conn.go, schema.go, players_repo.go,
// matches_repo.go, ranks_repo.go, detections_repo.go, jobconfigs_repo.go,
// executions_repo.go, tracking_repo.go, ratelimitlog_repo.go, settings_repo.go
