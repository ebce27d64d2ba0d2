package reviews

import (
	"context"
	"errors"
	"unicode/utf8"

	"chamba/internal/reputation"
	"chamba/internal/store"

	"go.uber.org/zap"
)

const maxCommentLength = 300

var (
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrInvalidSubject = errors.New("a subject user is required")
	ErrInvalidComment = errors.New("comment must be at most 300 characters")
	ErrInvalidRole    = errors.New("only clients and workers can submit reviews")
	ErrRoleMismatch   = errors.New("clients review workers and workers review clients")
	ErrForbidden      = errors.New("you can only modify your own reviews")
)

// Service orchestrates review mutations: it validates the actors, persists
// the review, and then recomputes the one reputation axis the review belongs
// to. It never touches aggregates directly; all recomputation goes through
// the aggregator.
type Service struct {
	store  store.Storage
	agg    *reputation.Aggregator
	logger *zap.SugaredLogger
}

func NewService(storage store.Storage, agg *reputation.Aggregator, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:  storage,
		agg:    agg,
		logger: logger,
	}
}

// directionFor maps the actor's role to the review direction and the role the
// subject must have. Resolved once here; nothing downstream branches on roles.
func directionFor(actorRole store.Role) (direction store.Direction, counterRole store.Role, err error) {
	switch actorRole {
	case store.RoleClient:
		return store.ClientOnWorker, store.RoleWorker, nil
	case store.RoleWorker:
		return store.WorkerOnClient, store.RoleClient, nil
	default:
		return "", "", ErrInvalidRole
	}
}

// Create persists a new review by the actor about the subject and recomputes
// the subject's aggregate on the affected axis. The (reviewer, subject,
// direction) pair is unique; a duplicate surfaces as store.ErrConflict.
func (s *Service) Create(ctx context.Context, actorID int64, actorRole store.Role, subjectID int64, rating int, comment string) (*store.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if subjectID <= 0 {
		return nil, ErrInvalidSubject
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, ErrInvalidComment
	}

	direction, counterRole, err := directionFor(actorRole)
	if err != nil {
		return nil, err
	}

	subject, err := s.store.Users.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if subject.Role != counterRole {
		return nil, ErrRoleMismatch
	}

	review := &store.Review{
		ReviewerID: actorID,
		SubjectID:  subjectID,
		Direction:  direction,
		Rating:     rating,
		Comment:    comment,
	}
	if err := s.store.Reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	s.recompute(ctx, subjectID, direction)
	return review, nil
}

// Update applies the provided fields to the actor's own review and
// recomputes the aggregate the review contributes to.
func (s *Service) Update(ctx context.Context, actorID, reviewID int64, rating *int, comment *string) (*store.Review, error) {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, ErrInvalidRating
	}
	if comment != nil && utf8.RuneCountInString(*comment) > maxCommentLength {
		return nil, ErrInvalidComment
	}

	review, err := s.store.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != actorID {
		return nil, ErrForbidden
	}

	updated, err := s.store.Reviews.Update(ctx, reviewID, rating, comment)
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, updated.SubjectID, updated.Direction)
	return updated, nil
}

// Delete removes the actor's own review. The subject and direction are taken
// from the deleted row, so the stale aggregate is recomputed even though the
// review is already gone.
func (s *Service) Delete(ctx context.Context, actorID, reviewID int64) (*store.Review, error) {
	review, err := s.store.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != actorID {
		return nil, ErrForbidden
	}

	deleted, err := s.store.Reviews.Delete(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, deleted.SubjectID, deleted.Direction)
	return deleted, nil
}

func (s *Service) ListBySubject(ctx context.Context, subjectID int64, direction store.Direction) ([]store.Review, error) {
	return s.store.Reviews.ListBySubject(ctx, subjectID, direction)
}

// Aggregate exposes the reputation snapshot for display. Read-only.
func (s *Service) Aggregate(ctx context.Context, subjectID int64, direction store.Direction) (*store.AggregateRecord, error) {
	return s.store.Aggregates.Get(ctx, subjectID, direction)
}

// recompute refreshes the aggregate after a committed review mutation. A
// failure here does not roll the mutation back: the review stands, the error
// is logged, and the next recompute for the key heals the snapshot since
// recomputation is a pure re-derivation.
func (s *Service) recompute(ctx context.Context, subjectID int64, direction store.Direction) {
	if _, err := s.agg.Recompute(ctx, subjectID, direction); err != nil {
		s.logger.Errorw("aggregate recompute failed, snapshot left for next recompute",
			"subject_id", subjectID,
			"direction", direction,
			"error", err,
		)
	}
}
