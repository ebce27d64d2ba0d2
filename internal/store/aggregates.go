package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AggregateRecord is the reputation snapshot for one subject on one axis.
// It is written only through Commit; everything else reads it as-is.
type AggregateRecord struct {
	SubjectID     int64     `json:"subject_id"`
	Direction     Direction `json:"direction"`
	RatingAverage float64   `json:"rating_average"`
	ReviewIDs     []int64   `json:"review_ids"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type AggregateStore struct {
	db *pgxpool.Pool
}

// Get returns the current snapshot. A subject with no committed aggregate
// reads as average 0 with no contributing reviews; the row itself is only
// created once the first review triggers a recompute.
func (s *AggregateStore) Get(ctx context.Context, subjectID int64, direction Direction) (*AggregateRecord, error) {
	query := `
        SELECT subject_id, direction, rating_average, review_ids, updated_at
        FROM reputation_aggregates
        WHERE subject_id = $1 AND direction = $2
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var record AggregateRecord
	err := s.db.QueryRow(ctx, query, subjectID, direction).Scan(
		&record.SubjectID,
		&record.Direction,
		&record.RatingAverage,
		&record.ReviewIDs,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &AggregateRecord{
				SubjectID: subjectID,
				Direction: direction,
				ReviewIDs: []int64{},
			}, nil
		}
		return nil, err
	}

	if record.ReviewIDs == nil {
		record.ReviewIDs = []int64{}
	}
	return &record, nil
}

// Commit re-derives the snapshot from the current review set and writes it,
// all in one transaction. The aggregate row is locked FOR UPDATE before the
// reviews are read, so two commits for the same subject/axis cannot
// interleave: the second waits, then reads a set that includes everything
// the first one committed. Re-running with no intervening mutation writes
// the same values.
func (s *AggregateStore) Commit(ctx context.Context, subjectID int64, direction Direction) (*AggregateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin aggregate commit: %w", err)
	}
	defer tx.Rollback(ctx)

	// Make sure there is a row to lock. The row outlives its reviews: once
	// created it settles at (0, {}) rather than being deleted.
	_, err = tx.Exec(ctx, `
        INSERT INTO reputation_aggregates (subject_id, direction)
        VALUES ($1, $2)
        ON CONFLICT (subject_id, direction) DO NOTHING
    `, subjectID, direction)
	if err != nil {
		return nil, fmt.Errorf("ensure aggregate row: %w", err)
	}

	_, err = tx.Exec(ctx, `
        SELECT 1 FROM reputation_aggregates
        WHERE subject_id = $1 AND direction = $2
        FOR UPDATE
    `, subjectID, direction)
	if err != nil {
		return nil, fmt.Errorf("lock aggregate row: %w", err)
	}

	var (
		average   float64
		reviewIDs []int64
	)
	err = tx.QueryRow(ctx, `
        SELECT COALESCE(AVG(rating), 0),
               COALESCE(array_agg(id ORDER BY id) FILTER (WHERE id IS NOT NULL), '{}')
        FROM reviews
        WHERE subject_id = $1 AND direction = $2
    `, subjectID, direction).Scan(&average, &reviewIDs)
	if err != nil {
		return nil, fmt.Errorf("derive aggregate: %w", err)
	}

	var record AggregateRecord
	err = tx.QueryRow(ctx, `
        UPDATE reputation_aggregates
        SET rating_average = $3, review_ids = $4, updated_at = now()
        WHERE subject_id = $1 AND direction = $2
        RETURNING subject_id, direction, rating_average, review_ids, updated_at
    `, subjectID, direction, average, reviewIDs).Scan(
		&record.SubjectID,
		&record.Direction,
		&record.RatingAverage,
		&record.ReviewIDs,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("write aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit aggregate: %w", err)
	}

	if record.ReviewIDs == nil {
		record.ReviewIDs = []int64{}
	}
	return &record, nil
}
