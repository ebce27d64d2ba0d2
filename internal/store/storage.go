package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource already exists")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	Users interface {
		Create(context.Context, *User) error
		GetByID(context.Context, int64) (*User, error)
		GetByEmail(context.Context, string) (*User, error)
		SaveRefreshToken(ctx context.Context, userID int64, refreshToken string) error
		GetRefreshToken(ctx context.Context, userID int64) (string, error)
		DeleteRefreshToken(ctx context.Context, userID int64) error
	}
	Reviews interface {
		Create(context.Context, *Review) error
		GetByID(context.Context, int64) (*Review, error)
		ListBySubject(context.Context, int64, Direction) ([]Review, error)
		Update(ctx context.Context, reviewID int64, rating *int, comment *string) (*Review, error)
		Delete(ctx context.Context, reviewID int64) (*Review, error)
	}
	Aggregates interface {
		Get(context.Context, int64, Direction) (*AggregateRecord, error)
		Commit(context.Context, int64, Direction) (*AggregateRecord, error)
	}
}

func NewStorage(db *pgxpool.Pool) Storage {
	return Storage{
		Users:      &UsersStore{db},
		Reviews:    &ReviewStore{db},
		Aggregates: &AggregateStore{db},
	}
}
