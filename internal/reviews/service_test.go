package reviews

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"chamba/internal/reputation"
	"chamba/internal/store"

	"go.uber.org/zap"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*store.User
}

func (f *fakeUsers) Create(_ context.Context, u *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) SaveRefreshToken(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakeUsers) GetRefreshToken(_ context.Context, _ int64) (string, error)  { return "", nil }
func (f *fakeUsers) DeleteRefreshToken(_ context.Context, _ int64) error         { return nil }

type fakeReviews struct {
	mu      sync.Mutex
	nextID  int64
	reviews map[int64]store.Review
}

func (f *fakeReviews) Create(_ context.Context, r *store.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reviews {
		if existing.ReviewerID == r.ReviewerID && existing.SubjectID == r.SubjectID && existing.Direction == r.Direction {
			return store.ErrConflict
		}
	}
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	r.UpdatedAt = r.CreatedAt
	f.reviews[r.ID] = *r
	return nil
}

func (f *fakeReviews) GetByID(_ context.Context, id int64) (*store.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (f *fakeReviews) ListBySubject(_ context.Context, subjectID int64, direction store.Direction) ([]store.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Review
	for _, r := range f.reviews {
		if r.SubjectID == subjectID && r.Direction == direction {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeReviews) Update(_ context.Context, id int64, rating *int, comment *string) (*store.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rating != nil {
		r.Rating = *rating
	}
	if comment != nil {
		r.Comment = *comment
	}
	r.UpdatedAt = time.Now()
	f.reviews[id] = r
	return &r, nil
}

func (f *fakeReviews) Delete(_ context.Context, id int64) (*store.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(f.reviews, id)
	return &r, nil
}

// fakeAggregates re-derives snapshots from the fake review set, like the real
// sink does from the reviews table.
type fakeAggregates struct {
	mu        sync.Mutex
	reviews   *fakeReviews
	snapshots map[string]*store.AggregateRecord
	commits   int
	fail      bool
}

func aggKey(subjectID int64, direction store.Direction) string {
	return string(direction) + "/" + strconv.FormatInt(subjectID, 10)
}

func (f *fakeAggregates) Get(_ context.Context, subjectID int64, direction store.Direction) (*store.AggregateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.snapshots[aggKey(subjectID, direction)]; ok {
		cp := *rec
		return &cp, nil
	}
	return &store.AggregateRecord{SubjectID: subjectID, Direction: direction, ReviewIDs: []int64{}}, nil
}

func (f *fakeAggregates) Commit(ctx context.Context, subjectID int64, direction store.Direction) (*store.AggregateRecord, error) {
	if f.fail {
		return nil, errors.New("sink unavailable")
	}

	list, _ := f.reviews.ListBySubject(ctx, subjectID, direction)

	var sum int
	ids := []int64{}
	for _, r := range list {
		sum += r.Rating
		ids = append(ids, r.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	avg := 0.0
	if len(list) > 0 {
		avg = float64(sum) / float64(len(list))
	}

	rec := &store.AggregateRecord{
		SubjectID:     subjectID,
		Direction:     direction,
		RatingAverage: avg,
		ReviewIDs:     ids,
		UpdatedAt:     time.Now(),
	}

	f.mu.Lock()
	f.snapshots[aggKey(subjectID, direction)] = rec
	f.commits++
	f.mu.Unlock()

	cp := *rec
	return &cp, nil
}

type fixture struct {
	svc  *Service
	agg  *fakeAggregates
	revs *fakeReviews
}

func newFixture(users ...*store.User) *fixture {
	fu := &fakeUsers{users: make(map[int64]*store.User)}
	for _, u := range users {
		fu.users[u.ID] = u
	}
	fr := &fakeReviews{reviews: make(map[int64]store.Review)}
	fa := &fakeAggregates{reviews: fr, snapshots: make(map[string]*store.AggregateRecord)}

	storage := store.Storage{Users: fu, Reviews: fr, Aggregates: fa}
	svc := NewService(storage, reputation.NewAggregator(fa), zap.NewNop().Sugar())

	return &fixture{svc: svc, agg: fa, revs: fr}
}

func client(id int64) *store.User { return &store.User{ID: id, Role: store.RoleClient} }
func worker(id int64) *store.User { return &store.User{ID: id, Role: store.RoleWorker} }

func assertAggregate(t *testing.T, f *fixture, subjectID int64, direction store.Direction, wantAvg float64, wantIDs []int64) {
	t.Helper()
	rec, err := f.agg.Get(context.Background(), subjectID, direction)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if rec.RatingAverage != wantAvg {
		t.Errorf("aggregate(%d,%s) average = %v, want %v", subjectID, direction, rec.RatingAverage, wantAvg)
	}
	if len(rec.ReviewIDs) != len(wantIDs) {
		t.Fatalf("aggregate(%d,%s) review ids = %v, want %v", subjectID, direction, rec.ReviewIDs, wantIDs)
	}
	for i := range wantIDs {
		if rec.ReviewIDs[i] != wantIDs[i] {
			t.Errorf("aggregate(%d,%s) review ids = %v, want %v", subjectID, direction, rec.ReviewIDs, wantIDs)
			return
		}
	}
}

func TestCreateUpdateDelete_AggregateScenario(t *testing.T) {
	f := newFixture(client(1), client(2), worker(100))
	ctx := context.Background()

	r1, err := f.svc.Create(ctx, 1, store.RoleClient, 100, 5, "great work")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 5, []int64{r1.ID})

	r2, err := f.svc.Create(ctx, 2, store.RoleClient, 100, 3, "")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 4, []int64{r1.ID, r2.ID})

	three := 3
	if _, err := f.svc.Update(ctx, 1, r1.ID, &three, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 3, []int64{r1.ID, r2.ID})

	if _, err := f.svc.Delete(ctx, 1, r1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 3, []int64{r2.ID})
}

func TestCreate_DuplicatePairConflicts(t *testing.T) {
	f := newFixture(client(1), worker(100))
	ctx := context.Background()

	r1, err := f.svc.Create(ctx, 1, store.RoleClient, 100, 5, "")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	if _, err := f.svc.Create(ctx, 1, store.RoleClient, 100, 2, ""); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate create err = %v, want ErrConflict", err)
	}

	// The first review and its aggregate are untouched.
	got, err := f.revs.GetByID(ctx, r1.ID)
	if err != nil || got.Rating != 5 {
		t.Fatalf("first review after conflict = %+v, %v", got, err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 5, []int64{r1.ID})
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(client(1), client(2), worker(100))
	ctx := context.Background()

	tests := []struct {
		name      string
		actorID   int64
		actorRole store.Role
		subjectID int64
		rating    int
		comment   string
		wantErr   error
	}{
		{"rating too low", 1, store.RoleClient, 100, 0, "", ErrInvalidRating},
		{"rating too high", 1, store.RoleClient, 100, 6, "", ErrInvalidRating},
		{"blank subject", 1, store.RoleClient, 0, 4, "", ErrInvalidSubject},
		{"comment too long", 1, store.RoleClient, 100, 4, strings.Repeat("x", 301), ErrInvalidComment},
		{"admin cannot review", 1, store.RoleAdmin, 100, 4, "", ErrInvalidRole},
		{"client rating a client", 1, store.RoleClient, 2, 4, "", ErrRoleMismatch},
		{"unknown subject", 1, store.RoleClient, 999, 4, "", store.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.actorID, tc.actorRole, tc.subjectID, tc.rating, tc.comment)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Create err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if f.agg.commits != 0 {
		t.Errorf("rejected creates committed %d aggregates, want 0", f.agg.commits)
	}
}

func TestUpdateDelete_OwnershipEnforced(t *testing.T) {
	f := newFixture(client(1), client(2), worker(100))
	ctx := context.Background()

	r1, err := f.svc.Create(ctx, 1, store.RoleClient, 100, 5, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	one := 1
	if _, err := f.svc.Update(ctx, 2, r1.ID, &one, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner update err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Delete(ctx, 2, r1.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner delete err = %v, want ErrForbidden", err)
	}

	got, err := f.revs.GetByID(ctx, r1.ID)
	if err != nil || got.Rating != 5 {
		t.Fatalf("review after denied mutations = %+v, %v", got, err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 5, []int64{r1.ID})

	if _, err := f.svc.Update(ctx, 1, 999, &one, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update missing review err = %v, want ErrNotFound", err)
	}
}

func TestDelete_LastReviewResetsAggregate(t *testing.T) {
	f := newFixture(client(1), worker(100))
	ctx := context.Background()

	r1, err := f.svc.Create(ctx, 1, store.RoleClient, 100, 4, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Delete(ctx, 1, r1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	assertAggregate(t, f, 100, store.ClientOnWorker, 0, []int64{})
}

func TestCreate_WorkerOnClientAffectsOnlyClientAxis(t *testing.T) {
	f := newFixture(client(1), worker(100))
	ctx := context.Background()

	r, err := f.svc.Create(ctx, 100, store.RoleWorker, 1, 2, "late payment")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Direction != store.WorkerOnClient {
		t.Fatalf("direction = %s, want %s", r.Direction, store.WorkerOnClient)
	}

	assertAggregate(t, f, 1, store.WorkerOnClient, 2, []int64{r.ID})

	// The reviewer's own axes stay untouched.
	assertAggregate(t, f, 100, store.ClientOnWorker, 0, []int64{})
	assertAggregate(t, f, 1, store.ClientOnWorker, 0, []int64{})
}

func TestCreate_ConcurrentForSameWorker(t *testing.T) {
	f := newFixture(client(1), client(2), worker(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, actorID int64, rating int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, actorID, store.RoleClient, 100, rating, "")
		}(i, actor, []int{5, 3}[i])
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent create %d: %v", i, err)
		}
	}

	rec, err := f.agg.Get(ctx, 100, store.ClientOnWorker)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if rec.RatingAverage != 4 || len(rec.ReviewIDs) != 2 {
		t.Errorf("final aggregate = avg %v ids %v, want avg 4 with 2 ids", rec.RatingAverage, rec.ReviewIDs)
	}
}

func TestCreate_RecomputeFailureKeepsReview(t *testing.T) {
	f := newFixture(client(1), worker(100))
	ctx := context.Background()

	f.agg.fail = true
	r1, err := f.svc.Create(ctx, 1, store.RoleClient, 100, 5, "")
	if err != nil {
		t.Fatalf("create with failing sink: %v", err)
	}
	if _, err := f.revs.GetByID(ctx, r1.ID); err != nil {
		t.Fatalf("review not persisted: %v", err)
	}

	// Next successful recompute heals the snapshot.
	f.agg.fail = false
	if _, err := f.svc.agg.Recompute(ctx, 100, store.ClientOnWorker); err != nil {
		t.Fatalf("healing recompute: %v", err)
	}
	assertAggregate(t, f, 100, store.ClientOnWorker, 5, []int64{r1.ID})
}

func TestListBySubject_NewestFirst(t *testing.T) {
	f := newFixture(client(1), client(2), worker(100))
	ctx := context.Background()

	first, _ := f.svc.Create(ctx, 1, store.RoleClient, 100, 5, "")
	second, _ := f.svc.Create(ctx, 2, store.RoleClient, 100, 3, "")

	list, err := f.svc.ListBySubject(ctx, 100, store.ClientOnWorker)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("list order = %v, want newest first [%d %d]", list, second.ID, first.ID)
	}
}
