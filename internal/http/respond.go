package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Clark-Hu/tour-booking/internal/listquery"
	"github.com/Clark-Hu/tour-booking/internal/logger"
	"github.com/Clark-Hu/tour-booking/internal/ratings"
	"github.com/Clark-Hu/tour-booking/internal/repository"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type dataEnvelope struct {
	Data interface{} `json:"data"`
}

type successResponse struct {
	Status  string       `json:"status"`
	Results *int         `json:"results,omitempty"`
	Data    dataEnvelope `json:"data"`
}

// validationError is returned by request validators and maps to 422.
type validationError struct {
	message string
}

func (e validationError) Error() string {
	return e.message
}

func invalidf(format string, args ...interface{}) error {
	return validationError{message: fmt.Sprintf(format, args...)}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (s *Server) respondData(w http.ResponseWriter, status int, data interface{}) {
	s.respondJSON(w, status, successResponse{Status: "success", Data: dataEnvelope{Data: data}})
}

func (s *Server) respondList(w http.ResponseWriter, items []map[string]any) {
	n := len(items)
	s.respondJSON(w, http.StatusOK, successResponse{Status: "success", Results: &n, Data: dataEnvelope{Data: items}})
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown field "+strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps domain and store errors onto HTTP responses.
// Unexpected errors are logged and reported as "Failed to <action>".
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var reqErr *listquery.RequestError
	var valErr validationError
	switch {
	case errors.As(err, &reqErr):
		message := reqErr.Message
		if reqErr.Param != "" {
			message = reqErr.Param + ": " + reqErr.Message
		}
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", message)
	case errors.As(err, &valErr):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", valErr.Error())
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, repository.ErrDuplicateReview):
		s.respondError(w, http.StatusConflict, "CONFLICT", "You have already reviewed this tour")
	case errors.Is(err, repository.ErrDuplicateTour):
		s.respondError(w, http.StatusConflict, "CONFLICT", "A tour with this name already exists")
	case errors.Is(err, ratings.ErrForbidden):
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action")
	case errors.Is(err, repository.ErrConstraint):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request violates a data constraint")
	case errors.Is(err, repository.ErrStoreUnavailable):
		log := logger.FromContext(r.Context(), s.logger)
		log.Error().Err(err).Str("action", action).Msg("store unavailable")
		s.respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Service temporarily unavailable")
	default:
		log := logger.FromContext(r.Context(), s.logger)
		log.Error().Err(err).Str("action", action).Msg("request failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+action)
	}
}

// pathID reads a UUID path parameter, writing a 400 when it is malformed.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("Invalid %s: %q", name, raw))
		return "", false
	}
	return id.String(), true
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" || s.cfg.AuthToken == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token == s.cfg.AuthToken
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	return &val
}
