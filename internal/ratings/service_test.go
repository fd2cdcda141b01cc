package ratings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/tour-booking/internal/domain"
	"github.com/Clark-Hu/tour-booking/internal/logger"
	"github.com/Clark-Hu/tour-booking/internal/repository"
)

// memStore is an in-memory stand-in for both the reviews and tours tables.
type memStore struct {
	mu            sync.Mutex
	seq           int
	reviews       map[string]domain.Review
	tours         map[string]domain.RatingAggregate
	trace         []string
	aggregateErr  error
	updateAggsErr error
}

func newMemStore(tourIDs ...string) *memStore {
	s := &memStore{
		reviews: make(map[string]domain.Review),
		tours:   make(map[string]domain.RatingAggregate),
	}
	for _, id := range tourIDs {
		s.tours[id] = domain.RatingAggregate{Count: domain.DefaultRatingsQuantity, Average: domain.DefaultRatingsAverage}
	}
	return s
}

func (s *memStore) record(step string) {
	s.trace = append(s.trace, step)
}

func (s *memStore) Aggregate(_ context.Context, tourID string) (domain.RatingAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("aggregate")
	if s.aggregateErr != nil {
		return domain.RatingAggregate{}, s.aggregateErr
	}
	var agg domain.RatingAggregate
	var sum float64
	for _, r := range s.reviews {
		if r.TourID == tourID {
			agg.Count++
			sum += r.Rating
		}
	}
	if agg.Count > 0 {
		agg.Average = sum / float64(agg.Count)
	}
	return agg, nil
}

func (s *memStore) UpdateRatings(_ context.Context, tourID string, agg domain.RatingAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update-ratings")
	if s.updateAggsErr != nil {
		return s.updateAggsErr
	}
	if _, ok := s.tours[tourID]; !ok {
		return repository.ErrNotFound
	}
	s.tours[tourID] = agg
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get")
	r, ok := s.reviews[id]
	if !ok {
		return domain.Review{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *memStore) Create(_ context.Context, p repository.ReviewCreateParams) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create")
	if _, ok := s.tours[p.TourID]; !ok {
		return domain.Review{}, repository.ErrNotFound
	}
	for _, r := range s.reviews {
		if r.TourID == p.TourID && r.UserID == p.UserID {
			return domain.Review{}, repository.ErrDuplicateReview
		}
	}
	s.seq++
	r := domain.Review{ID: fmt.Sprintf("r%d", s.seq), TourID: p.TourID, UserID: p.UserID, Review: p.Review, Rating: p.Rating}
	s.reviews[r.ID] = r
	return r, nil
}

func (s *memStore) Update(_ context.Context, id string, p repository.ReviewUpdateParams) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update")
	r, ok := s.reviews[id]
	if !ok {
		return domain.Review{}, repository.ErrNotFound
	}
	if p.Review != nil {
		r.Review = *p.Review
	}
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	s.reviews[id] = r
	return r, nil
}

func (s *memStore) Delete(_ context.Context, id string) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete")
	r, ok := s.reviews[id]
	if !ok {
		return domain.Review{}, repository.ErrNotFound
	}
	delete(s.reviews, id)
	return r, nil
}

func (s *memStore) aggregate(tourID string) domain.RatingAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tours[tourID]
}

func newTestService(store *memStore, opts ...Option) *Service {
	return NewService(store, store, logger.Nop(), opts...)
}

func TestService_CreateRecomputesAverage(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()

	for i, rating := range []float64{4, 5, 3} {
		_, err := svc.Create(ctx, Actor{UserID: fmt.Sprintf("user-%d", i)}, "tour-1", "nice", rating)
		require.NoError(t, err)
	}

	agg := store.aggregate("tour-1")
	assert.Equal(t, int64(3), agg.Count)
	assert.Equal(t, 4.0, agg.Average)
}

func TestService_AverageRoundedToOneDecimal(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()

	for i, rating := range []float64{5, 4, 4} {
		_, err := svc.Create(ctx, Actor{UserID: fmt.Sprintf("user-%d", i)}, "tour-1", "ok", rating)
		require.NoError(t, err)
	}

	assert.Equal(t, 4.3, store.aggregate("tour-1").Average)
}

func TestService_DeleteSoleReviewResetsDefaults(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()
	actor := Actor{UserID: "user-1"}

	review, err := svc.Create(ctx, actor, "tour-1", "meh", 2)
	require.NoError(t, err)
	require.Equal(t, domain.RatingAggregate{Count: 1, Average: 2}, store.aggregate("tour-1"))

	deleted, err := svc.Delete(ctx, actor, review.ID)
	require.NoError(t, err)
	assert.Equal(t, review.ID, deleted.ID)

	assert.Equal(t, domain.RatingAggregate{Count: 0, Average: 4.5}, store.aggregate("tour-1"))
}

func TestService_UpdateLoadsParentBeforeMutating(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()
	actor := Actor{UserID: "user-1"}

	review, err := svc.Create(ctx, actor, "tour-1", "fine", 3)
	require.NoError(t, err)
	store.trace = nil

	rating := 5.0
	_, err = svc.Update(ctx, actor, review.ID, repository.ReviewUpdateParams{Rating: &rating})
	require.NoError(t, err)

	assert.Equal(t, []string{"get", "update", "aggregate", "update-ratings"}, store.trace)
	assert.Equal(t, 5.0, store.aggregate("tour-1").Average)
}

func TestService_DeleteStepsOrder(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()
	actor := Actor{UserID: "user-1"}

	review, err := svc.Create(ctx, actor, "tour-1", "fine", 3)
	require.NoError(t, err)
	store.trace = nil

	_, err = svc.Delete(ctx, actor, review.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "delete", "aggregate", "update-ratings"}, store.trace)
}

func TestService_DuplicateReviewRejected(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()
	actor := Actor{UserID: "user-1"}

	_, err := svc.Create(ctx, actor, "tour-1", "first", 4)
	require.NoError(t, err)
	store.trace = nil

	_, err = svc.Create(ctx, actor, "tour-1", "second", 1)
	assert.ErrorIs(t, err, repository.ErrDuplicateReview)
	assert.Equal(t, []string{"create"}, store.trace, "failed writes must not recompute")
	assert.Equal(t, domain.RatingAggregate{Count: 1, Average: 4}, store.aggregate("tour-1"))
}

func TestService_MissingReviewIsNotFound(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)

	_, err := svc.Delete(context.Background(), Actor{Admin: true}, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, []string{"get"}, store.trace)
}

func TestService_OtherUsersReviewForbidden(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()

	review, err := svc.Create(ctx, Actor{UserID: "owner"}, "tour-1", "mine", 4)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, Actor{UserID: "intruder"}, review.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Delete(ctx, Actor{Admin: true}, review.ID)
	assert.NoError(t, err)
}

func TestService_RecomputeFailureDoesNotFailWrite(t *testing.T) {
	store := newMemStore("tour-1")
	store.updateAggsErr = errors.New("disk full")

	var observed []error
	svc := newTestService(store, WithRecomputeObserver(func(op Operation, err error) {
		assert.Equal(t, OpCreate, op)
		observed = append(observed, err)
	}))

	review, err := svc.Create(context.Background(), Actor{UserID: "user-1"}, "tour-1", "great", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, review.ID)

	require.Len(t, observed, 1)
	var recomputeErr *RecomputeError
	require.ErrorAs(t, observed[0], &recomputeErr)
	assert.Equal(t, "tour-1", recomputeErr.TourID)

	// The review stays committed and the stale aggregate is left as it was.
	_, err = store.Get(context.Background(), review.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RatingAggregate{Count: 0, Average: 4.5}, store.aggregate("tour-1"))
}

func TestMaintainer_RecomputeIsIdempotent(t *testing.T) {
	store := newMemStore("tour-1")
	svc := newTestService(store)
	ctx := context.Background()
	for i, rating := range []float64{1, 2, 5, 5} {
		_, err := svc.Create(ctx, Actor{UserID: fmt.Sprintf("u%d", i)}, "tour-1", "x", rating)
		require.NoError(t, err)
	}

	m := NewMaintainer(store, store)
	first, err := m.Recompute(ctx, "tour-1")
	require.NoError(t, err)
	second, err := m.Recompute(ctx, "tour-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.RatingAggregate{Count: 4, Average: 3.3}, second)
}

func TestMaintainer_AggregateFailure(t *testing.T) {
	store := newMemStore("tour-1")
	store.aggregateErr = repository.ErrStoreUnavailable

	_, err := NewMaintainer(store, store).Recompute(context.Background(), "tour-1")
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.Equal(t, []string{"aggregate"}, store.trace)
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name  string
		stats domain.RatingAggregate
		want  domain.RatingAggregate
	}{
		{"empty", domain.RatingAggregate{}, domain.RatingAggregate{Count: 0, Average: 4.5}},
		{"single", domain.RatingAggregate{Count: 1, Average: 5}, domain.RatingAggregate{Count: 1, Average: 5}},
		{"round up", domain.RatingAggregate{Count: 4, Average: 3.75}, domain.RatingAggregate{Count: 4, Average: 3.8}},
		{"round down", domain.RatingAggregate{Count: 3, Average: 4.666666}, domain.RatingAggregate{Count: 3, Average: 4.7}},
		{"thirds", domain.RatingAggregate{Count: 3, Average: 13.0 / 3}, domain.RatingAggregate{Count: 3, Average: 4.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.stats))
		})
	}
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "update", OpUpdate.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", Operation(99).String())
}
