package reputation

import (
	"context"
	"fmt"
	"sync"

	"chamba/internal/store"
)

// Sink commits a freshly derived snapshot for one subject/axis. In production
// this is the aggregate store; tests plug in an in-memory one.
type Sink interface {
	Commit(ctx context.Context, subjectID int64, direction store.Direction) (*store.AggregateRecord, error)
}

// Aggregator is the only writer of reputation aggregates. Every review
// mutation funnels through Recompute, which re-derives the subject's average
// from the full review set instead of patching the old value. Recomputes for
// the same subject/axis are serialized on a per-key mutex; different subjects
// run in parallel.
type Aggregator struct {
	sink Sink

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewAggregator(sink Sink) *Aggregator {
	return &Aggregator{
		sink: sink,
		keys: make(map[string]*sync.Mutex),
	}
}

func (a *Aggregator) lockFor(subjectID int64, direction store.Direction) *sync.Mutex {
	key := fmt.Sprintf("%d:%s", subjectID, direction)

	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.keys[key]
	if !ok {
		l = &sync.Mutex{}
		a.keys[key] = l
	}
	return l
}

// Recompute commits a new snapshot for the subject/axis. It is idempotent:
// with no intervening review mutation, running it again commits the same
// values, so callers may safely retry after a lost confirmation.
func (a *Aggregator) Recompute(ctx context.Context, subjectID int64, direction store.Direction) (*store.AggregateRecord, error) {
	l := a.lockFor(subjectID, direction)
	l.Lock()
	defer l.Unlock()

	return a.sink.Commit(ctx, subjectID, direction)
}
