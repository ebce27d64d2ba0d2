package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Direction tells which role rated which. Each review affects exactly one
// reputation axis: the axis named by its own direction.
type Direction string

const (
	ClientOnWorker Direction = "client_on_worker"
	WorkerOnClient Direction = "worker_on_client"
)

func (d Direction) Valid() bool {
	return d == ClientOnWorker || d == WorkerOnClient
}

type Review struct {
	ID         int64     `json:"id"`
	ReviewerID int64     `json:"reviewer_id"`
	SubjectID  int64     `json:"subject_id"`
	Direction  Direction `json:"direction"`
	Rating     int       `json:"rating"` // 1-5
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Joined fields
	ReviewerName string `json:"reviewer_name,omitempty"`
}

type ReviewStore struct {
	db *pgxpool.Pool
}

// Create inserts the review. The unique index on
// (reviewer_id, subject_id, direction) is the atomicity point for the
// one-review-per-pair rule: of two racing inserts exactly one lands, the
// other surfaces as ErrConflict.
func (s *ReviewStore) Create(ctx context.Context, review *Review) error {
	query := `
        INSERT INTO reviews (reviewer_id, subject_id, direction, rating, comment)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.db.QueryRow(ctx, query,
		review.ReviewerID,
		review.SubjectID,
		review.Direction,
		review.Rating,
		review.Comment,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *ReviewStore) GetByID(ctx context.Context, reviewID int64) (*Review, error) {
	query := `
        SELECT id, reviewer_id, subject_id, direction, rating, comment, created_at, updated_at
        FROM reviews
        WHERE id = $1
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var review Review
	err := s.db.QueryRow(ctx, query, reviewID).Scan(
		&review.ID,
		&review.ReviewerID,
		&review.SubjectID,
		&review.Direction,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &review, nil
}

// ListBySubject returns the reviews about a subject on one axis, newest first.
func (s *ReviewStore) ListBySubject(ctx context.Context, subjectID int64, direction Direction) ([]Review, error) {
	query := `
        SELECT r.id, r.reviewer_id, r.subject_id, r.direction, r.rating, r.comment,
               r.created_at, r.updated_at, u.first_name
        FROM reviews r
        JOIN users u ON u.id = r.reviewer_id
        WHERE r.subject_id = $1 AND r.direction = $2
        ORDER BY r.created_at DESC
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, subjectID, direction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var review Review
		err := rows.Scan(
			&review.ID,
			&review.ReviewerID,
			&review.SubjectID,
			&review.Direction,
			&review.Rating,
			&review.Comment,
			&review.CreatedAt,
			&review.UpdatedAt,
			&review.ReviewerName,
		)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// Update applies only the provided fields and returns the stored row.
func (s *ReviewStore) Update(ctx context.Context, reviewID int64, rating *int, comment *string) (*Review, error) {
	query := `
        UPDATE reviews
        SET rating  = COALESCE($2, rating),
            comment = COALESCE($3, comment),
            updated_at = now()
        WHERE id = $1
        RETURNING id, reviewer_id, subject_id, direction, rating, comment, created_at, updated_at
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var review Review
	err := s.db.QueryRow(ctx, query, reviewID, rating, comment).Scan(
		&review.ID,
		&review.ReviewerID,
		&review.SubjectID,
		&review.Direction,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &review, nil
}

// Delete removes the review and returns the deleted row, so the caller can
// still recompute the aggregate for the subject/axis it belonged to.
func (s *ReviewStore) Delete(ctx context.Context, reviewID int64) (*Review, error) {
	query := `
        DELETE FROM reviews
        WHERE id = $1
        RETURNING id, reviewer_id, subject_id, direction, rating, comment, created_at, updated_at
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var review Review
	err := s.db.QueryRow(ctx, query, reviewID).Scan(
		&review.ID,
		&review.ReviewerID,
		&review.SubjectID,
		&review.Direction,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &review, nil
}
