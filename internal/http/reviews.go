package httpserver

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/tour-booking/internal/domain"
	"github.com/Clark-Hu/tour-booking/internal/listquery"
	"github.com/Clark-Hu/tour-booking/internal/repository"
)

const (
	minRating = 1.0
	maxRating = 5.0
)

type reviewCreateRequest struct {
	Review string   `json:"review"`
	Rating *float64 `json:"rating"`
	// Tour is optional on nested routes, where the path supplies it.
	Tour string `json:"tour"`
}

type reviewUpdateRequest struct {
	Review *string  `json:"review"`
	Rating *float64 `json:"rating"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	Review    string    `json:"review"`
	Rating    float64   `json:"rating"`
	Tour      string    `json:"tour"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (req reviewCreateRequest) validate() error {
	if strings.TrimSpace(req.Review) == "" {
		return invalidf("review cannot be empty")
	}
	if req.Rating == nil {
		return invalidf("rating is required")
	}
	return validateRating(*req.Rating)
}

func (req reviewUpdateRequest) validate() error {
	if req.Review != nil && strings.TrimSpace(*req.Review) == "" {
		return invalidf("review cannot be empty")
	}
	if req.Rating != nil {
		return validateRating(*req.Rating)
	}
	return nil
}

func validateRating(rating float64) error {
	if rating < minRating || rating > maxRating {
		return invalidf("rating must be between %.0f and %.0f", minRating, maxRating)
	}
	return nil
}

// handleListReviews lists every review, or a single tour's reviews on the
// nested route.
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	s.getAll("list reviews", func(r *http.Request, values url.Values, opts listquery.Options) ([]map[string]any, error) {
		return s.repo.Reviews.List(r.Context(), tourScopeFromContext(r.Context()), values, opts)
	})(w, r)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	getOne(s, "fetch review", s.repo.Reviews.Get, toReviewResponse)(w, r)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	createOne(s, "create review", func(r *http.Request, req reviewCreateRequest) (domain.Review, error) {
		tourID := tourScopeFromContext(r.Context())
		if tourID == "" {
			id, err := uuid.Parse(strings.TrimSpace(req.Tour))
			if err != nil {
				return domain.Review{}, invalidf("tour must be a valid tour id")
			}
			tourID = id.String()
		}
		return s.reviews.Create(r.Context(), actorFromContext(r.Context()), tourID, strings.TrimSpace(req.Review), *req.Rating)
	}, toReviewResponse)(w, r)
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	updateOne(s, "update review", func(r *http.Request, id string, req reviewUpdateRequest) (domain.Review, error) {
		return s.reviews.Update(r.Context(), actorFromContext(r.Context()), id, repository.ReviewUpdateParams{
			Review: normalizeStringPtr(req.Review),
			Rating: req.Rating,
		})
	}, toReviewResponse)(w, r)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	s.deleteOne("delete review", func(r *http.Request, id string) error {
		_, err := s.reviews.Delete(r.Context(), actorFromContext(r.Context()), id)
		return err
	})(w, r)
}

func toReviewResponse(review domain.Review) reviewResponse {
	return reviewResponse{
		ID:        review.ID,
		Review:    review.Review,
		Rating:    review.Rating,
		Tour:      review.TourID,
		User:      review.UserID,
		CreatedAt: review.CreatedAt,
		UpdatedAt: review.UpdatedAt,
	}
}
