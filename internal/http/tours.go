package httpserver

import (
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Clark-Hu/tour-booking/internal/domain"
	"github.com/Clark-Hu/tour-booking/internal/listquery"
	"github.com/Clark-Hu/tour-booking/internal/repository"
)

const (
	minTourNameLen = 10
	maxTourNameLen = 40
	// Tours at or above this average take part in tour-stats.
	statsMinAverage = 4.5
)

var allowedDifficulties = map[string]struct{}{
	domain.DifficultyEasy:      {},
	domain.DifficultyMedium:    {},
	domain.DifficultyDifficult: {},
}

type tourCreateRequest struct {
	Name          string      `json:"name"`
	Duration      *int        `json:"duration"`
	MaxGroupSize  *int        `json:"maxGroupSize"`
	Difficulty    string      `json:"difficulty"`
	Price         *float64    `json:"price"`
	PriceDiscount *float64    `json:"priceDiscount"`
	Summary       string      `json:"summary"`
	Description   *string     `json:"description"`
	ImageCover    string      `json:"imageCover"`
	Images        []string    `json:"images"`
	StartDates    []time.Time `json:"startDates"`
	SecretTour    bool        `json:"secretTour"`
}

type tourUpdateRequest struct {
	Name          *string     `json:"name"`
	Duration      *int        `json:"duration"`
	MaxGroupSize  *int        `json:"maxGroupSize"`
	Difficulty    *string     `json:"difficulty"`
	Price         *float64    `json:"price"`
	PriceDiscount *float64    `json:"priceDiscount"`
	Summary       *string     `json:"summary"`
	Description   *string     `json:"description"`
	ImageCover    *string     `json:"imageCover"`
	Images        []string    `json:"images"`
	StartDates    []time.Time `json:"startDates"`
	SecretTour    *bool       `json:"secretTour"`
}

type tourResponse struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Slug            string      `json:"slug"`
	Duration        int         `json:"duration"`
	MaxGroupSize    int         `json:"maxGroupSize"`
	Difficulty      string      `json:"difficulty"`
	RatingsAverage  float64     `json:"ratingsAverage"`
	RatingsQuantity int64       `json:"ratingsQuantity"`
	Price           float64     `json:"price"`
	PriceDiscount   *float64    `json:"priceDiscount,omitempty"`
	Summary         string      `json:"summary"`
	Description     *string     `json:"description,omitempty"`
	ImageCover      string      `json:"imageCover"`
	Images          []string    `json:"images"`
	StartDates      []time.Time `json:"startDates"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type difficultyStatsResponse struct {
	Difficulty string  `json:"difficulty"`
	NumTours   int64   `json:"numTours"`
	NumRatings int64   `json:"numRatings"`
	AvgRating  float64 `json:"avgRating"`
	AvgPrice   float64 `json:"avgPrice"`
	MinPrice   float64 `json:"minPrice"`
	MaxPrice   float64 `json:"maxPrice"`
}

func (req tourCreateRequest) validate() error {
	if err := validateTourName(req.Name); err != nil {
		return err
	}
	if req.Duration == nil || !positiveInt32(*req.Duration) {
		return invalidf("duration must be a positive number of days")
	}
	if req.MaxGroupSize == nil || !positiveInt32(*req.MaxGroupSize) {
		return invalidf("maxGroupSize must be positive")
	}
	if err := validateDifficulty(req.Difficulty); err != nil {
		return err
	}
	if req.Price == nil || *req.Price < 0 {
		return invalidf("price is required and must be non-negative")
	}
	if err := validateDiscount(req.PriceDiscount, *req.Price); err != nil {
		return err
	}
	if strings.TrimSpace(req.Summary) == "" {
		return invalidf("summary is required")
	}
	if strings.TrimSpace(req.ImageCover) == "" {
		return invalidf("imageCover is required")
	}
	return nil
}

// positiveInt32 bounds counts stored in INTEGER columns.
func positiveInt32(v int) bool {
	return v > 0 && v <= math.MaxInt32
}

func (req tourUpdateRequest) validate() error {
	if req.Name != nil {
		if err := validateTourName(*req.Name); err != nil {
			return err
		}
	}
	if req.Duration != nil && !positiveInt32(*req.Duration) {
		return invalidf("duration must be a positive number of days")
	}
	if req.MaxGroupSize != nil && !positiveInt32(*req.MaxGroupSize) {
		return invalidf("maxGroupSize must be positive")
	}
	if req.Difficulty != nil {
		if err := validateDifficulty(*req.Difficulty); err != nil {
			return err
		}
	}
	if req.Price != nil && *req.Price < 0 {
		return invalidf("price must be non-negative")
	}
	// Without a new price the stored one is checked by the database.
	if req.Price != nil {
		if err := validateDiscount(req.PriceDiscount, *req.Price); err != nil {
			return err
		}
	}
	if req.Summary != nil && strings.TrimSpace(*req.Summary) == "" {
		return invalidf("summary cannot be empty")
	}
	if req.ImageCover != nil && strings.TrimSpace(*req.ImageCover) == "" {
		return invalidf("imageCover cannot be empty")
	}
	return nil
}

func validateTourName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < minTourNameLen || n > maxTourNameLen {
		return invalidf("name must be between %d and %d characters", minTourNameLen, maxTourNameLen)
	}
	return nil
}

func validateDifficulty(difficulty string) error {
	if _, ok := allowedDifficulties[difficulty]; !ok {
		return invalidf("difficulty must be one of easy, medium, difficult")
	}
	return nil
}

func validateDiscount(discount *float64, price float64) error {
	if discount == nil {
		return nil
	}
	if *discount < 0 || *discount >= price {
		return invalidf("priceDiscount must be below the regular price")
	}
	return nil
}

func (s *Server) handleListTours(w http.ResponseWriter, r *http.Request) {
	s.getAll("list tours", func(r *http.Request, values url.Values, opts listquery.Options) ([]map[string]any, error) {
		return s.repo.Tours.List(r.Context(), values, opts)
	})(w, r)
}

func (s *Server) handleGetTour(w http.ResponseWriter, r *http.Request) {
	getOne(s, "fetch tour", s.repo.Tours.GetByID, toTourResponse)(w, r)
}

func (s *Server) handleCreateTour(w http.ResponseWriter, r *http.Request) {
	createOne(s, "create tour", func(r *http.Request, req tourCreateRequest) (domain.Tour, error) {
		return s.repo.Tours.Create(r.Context(), repository.TourCreateParams{
			Name:          strings.TrimSpace(req.Name),
			Duration:      *req.Duration,
			MaxGroupSize:  *req.MaxGroupSize,
			Difficulty:    req.Difficulty,
			Price:         *req.Price,
			PriceDiscount: req.PriceDiscount,
			Summary:       strings.TrimSpace(req.Summary),
			Description:   normalizeStringPtr(req.Description),
			ImageCover:    strings.TrimSpace(req.ImageCover),
			Images:        req.Images,
			StartDates:    req.StartDates,
			SecretTour:    req.SecretTour,
		})
	}, toTourResponse)(w, r)
}

func (s *Server) handleUpdateTour(w http.ResponseWriter, r *http.Request) {
	updateOne(s, "update tour", func(r *http.Request, id string, req tourUpdateRequest) (domain.Tour, error) {
		return s.repo.Tours.Update(r.Context(), id, repository.TourUpdateParams{
			Name:          normalizeStringPtr(req.Name),
			Duration:      req.Duration,
			MaxGroupSize:  req.MaxGroupSize,
			Difficulty:    req.Difficulty,
			Price:         req.Price,
			PriceDiscount: req.PriceDiscount,
			Summary:       normalizeStringPtr(req.Summary),
			Description:   normalizeStringPtr(req.Description),
			ImageCover:    normalizeStringPtr(req.ImageCover),
			Images:        req.Images,
			StartDates:    req.StartDates,
			SecretTour:    req.SecretTour,
		})
	}, toTourResponse)(w, r)
}

func (s *Server) handleDeleteTour(w http.ResponseWriter, r *http.Request) {
	s.deleteOne("delete tour", func(r *http.Request, id string) error {
		return s.repo.Tours.Delete(r.Context(), id)
	})(w, r)
}

func (s *Server) handleTourStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Tours.Stats(r.Context(), statsMinAverage)
	if err != nil {
		s.respondServiceError(w, r, "compute tour stats", err)
		return
	}
	resp := make([]difficultyStatsResponse, 0, len(stats))
	for _, st := range stats {
		resp = append(resp, difficultyStatsResponse(st))
	}
	s.respondData(w, http.StatusOK, resp)
}

func toTourResponse(tour domain.Tour) tourResponse {
	images := tour.Images
	if images == nil {
		images = []string{}
	}
	startDates := tour.StartDates
	if startDates == nil {
		startDates = []time.Time{}
	}
	return tourResponse{
		ID:              tour.ID,
		Name:            tour.Name,
		Slug:            tour.Slug,
		Duration:        tour.Duration,
		MaxGroupSize:    tour.MaxGroupSize,
		Difficulty:      tour.Difficulty,
		RatingsAverage:  tour.RatingsAverage,
		RatingsQuantity: tour.RatingsQuantity,
		Price:           tour.Price,
		PriceDiscount:   tour.PriceDiscount,
		Summary:         tour.Summary,
		Description:     tour.Description,
		ImageCover:      tour.ImageCover,
		Images:          images,
		StartDates:      startDates,
		CreatedAt:       tour.CreatedAt,
		UpdatedAt:       tour.UpdatedAt,
	}
}

