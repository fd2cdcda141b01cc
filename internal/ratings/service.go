package ratings

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/tour-booking/internal/domain"
	"github.com/Clark-Hu/tour-booking/internal/logger"
	"github.com/Clark-Hu/tour-booking/internal/repository"
)

// ErrForbidden is returned when an actor changes a review they do not own.
var ErrForbidden = errors.New("ratings: review belongs to another user")

// Operation names a review write.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// steps lists what runs around the store mutation for an operation.
type steps struct {
	// loadBefore fetches the review before mutating it; the parent id must be
	// captured here because a delete leaves nothing to read afterwards.
	loadBefore bool
	// recomputeAfter refreshes the parent aggregate once the mutation returns.
	recomputeAfter bool
}

var operationSteps = map[Operation]steps{
	OpCreate: {recomputeAfter: true},
	OpUpdate: {loadBefore: true, recomputeAfter: true},
	OpDelete: {loadBefore: true, recomputeAfter: true},
}

// ReviewStore is the persistence surface the service needs.
type ReviewStore interface {
	Aggregator
	Get(ctx context.Context, id string) (domain.Review, error)
	Create(ctx context.Context, params repository.ReviewCreateParams) (domain.Review, error)
	Update(ctx context.Context, id string, params repository.ReviewUpdateParams) (domain.Review, error)
	Delete(ctx context.Context, id string) (domain.Review, error)
}

// Actor identifies who performs a write. Admins may change any review.
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) mayModify(review domain.Review) bool {
	return a.Admin || (a.UserID != "" && a.UserID == review.UserID)
}

// RecomputeObserver is notified after every recompute attempt.
type RecomputeObserver func(op Operation, err error)

// Service performs review writes and keeps tour aggregates current.
type Service struct {
	reviews    ReviewStore
	maintainer *Maintainer
	logger     zerolog.Logger
	observe    RecomputeObserver
}

// Option customises a Service.
type Option func(*Service)

// WithRecomputeObserver registers fn to observe recompute outcomes.
func WithRecomputeObserver(fn RecomputeObserver) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

// NewService wires the review store and the tour aggregate writer.
func NewService(reviews ReviewStore, tours AggregateWriter, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		reviews:    reviews,
		maintainer: NewMaintainer(reviews, tours),
		logger:     log.With().Str("component", "ratings").Logger(),
		observe:    func(Operation, error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new review authored by actor.
func (s *Service) Create(ctx context.Context, actor Actor, tourID, text string, rating float64) (domain.Review, error) {
	return s.run(ctx, OpCreate, "", actor, func(ctx context.Context) (domain.Review, error) {
		return s.reviews.Create(ctx, repository.ReviewCreateParams{
			TourID: tourID,
			UserID: actor.UserID,
			Review: text,
			Rating: rating,
		})
	})
}

// Update changes the text or rating of an existing review.
func (s *Service) Update(ctx context.Context, actor Actor, id string, params repository.ReviewUpdateParams) (domain.Review, error) {
	return s.run(ctx, OpUpdate, id, actor, func(ctx context.Context) (domain.Review, error) {
		return s.reviews.Update(ctx, id, params)
	})
}

// Delete removes a review and returns what was deleted.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) (domain.Review, error) {
	return s.run(ctx, OpDelete, id, actor, func(ctx context.Context) (domain.Review, error) {
		return s.reviews.Delete(ctx, id)
	})
}

func (s *Service) run(ctx context.Context, op Operation, id string, actor Actor, mutate func(context.Context) (domain.Review, error)) (domain.Review, error) {
	st := operationSteps[op]

	var tourID string
	if st.loadBefore {
		existing, err := s.reviews.Get(ctx, id)
		if err != nil {
			return domain.Review{}, err
		}
		if !actor.mayModify(existing) {
			return domain.Review{}, ErrForbidden
		}
		tourID = existing.TourID
	}

	review, err := mutate(ctx)
	if err != nil {
		return domain.Review{}, err
	}
	if tourID == "" {
		tourID = review.TourID
	}

	if st.recomputeAfter {
		s.recompute(ctx, op, tourID)
	}
	return review, nil
}

// recompute never fails the caller: the review write already succeeded.
func (s *Service) recompute(ctx context.Context, op Operation, tourID string) {
	agg, err := s.maintainer.Recompute(context.WithoutCancel(ctx), tourID)
	s.observe(op, err)

	log := logger.FromContext(ctx, s.logger)
	if err != nil {
		log.Error().Err(err).Str("operation", op.String()).Str("tour_id", tourID).Msg("rating aggregate recompute failed")
		return
	}
	log.Debug().
		Str("operation", op.String()).
		Str("tour_id", tourID).
		Int64("ratings_quantity", agg.Count).
		Float64("ratings_average", agg.Average).
		Msg("rating aggregate recomputed")
}
