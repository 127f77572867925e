package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bdougie/anomalyvision/internal/models"
)

// PostgresStorage manages interaction with PostgreSQL
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to the database and ensures the schema exists
func NewPostgresStorage(ctx context.Context, connString string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the tables if they don't exist
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS videos (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(name)
		);

		CREATE TABLE IF NOT EXISTS reports (
			id UUID PRIMARY KEY,
			video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
			frame_count INTEGER NOT NULL,
			backend TEXT NOT NULL,
			summary TEXT NOT NULL,
			bad_event BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			severity_score DOUBLE PRECISION,
			anomaly_start DOUBLE PRECISION,
			anomaly_end DOUBLE PRECISION,
			event_type TEXT NOT NULL,
			duration DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_video_id ON reports(video_id);
		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}
	return nil
}

// getOrCreateVideo gets an existing video entry or creates a new one
func (s *PostgresStorage) getOrCreateVideo(ctx context.Context, name string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, "SELECT id FROM videos WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing video: %w", err)
	}

	// ON CONFLICT covers a concurrent insert of the same name
	err = s.pool.QueryRow(ctx, `
		INSERT INTO videos (name, created_at) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		name, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create video entry: %w", err)
	}
	return id, nil
}

// AddResult stores a report immediately
func (s *PostgresStorage) AddResult(ctx context.Context, report models.Report) error {
	videoID, err := s.getOrCreateVideo(ctx, report.Video)
	if err != nil {
		return err
	}

	r := report.Result
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports
		(id, video_id, frame_count, backend, summary, bad_event, reason, confidence,
		 severity_score, anomaly_start, anomaly_end, event_type, duration, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		report.ID.String(), videoID, report.FrameCount, report.Backend,
		r.Summary, r.BadEvent, r.Reason, r.Confidence,
		r.SeverityScore, r.AnomalyStart, r.AnomalyEnd, r.EventType, r.Duration,
		report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// Recent returns the newest reports first
func (s *PostgresStorage) Recent(ctx context.Context, video string, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT r.id::text, v.name, r.frame_count, r.backend, r.summary, r.bad_event, r.reason,
		       r.confidence, r.severity_score, r.anomaly_start, r.anomaly_end, r.event_type,
		       r.duration, r.created_at
		FROM reports r
		JOIN videos v ON r.video_id = v.id
		WHERE $1::text = '' OR v.name = $1::text
		ORDER BY r.created_at DESC
		LIMIT $2`,
		video, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var (
			id string
			rp models.Report
		)
		if err := rows.Scan(&id, &rp.Video, &rp.FrameCount, &rp.Backend,
			&rp.Result.Summary, &rp.Result.BadEvent, &rp.Result.Reason, &rp.Result.Confidence,
			&rp.Result.SeverityScore, &rp.Result.AnomalyStart, &rp.Result.AnomalyEnd,
			&rp.Result.EventType, &rp.Result.Duration, &rp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if rp.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid report id %q: %w", id, err)
		}
		reports = append(reports, rp)
	}

	return reports, rows.Err()
}
