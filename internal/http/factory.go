package httpserver

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Clark-Hu/tour-booking/internal/listquery"
)

// The handlers below are shared by every resource. Each takes the store call
// it wraps plus a renderer for the stored entity.

type lister func(r *http.Request, values url.Values, opts listquery.Options) ([]map[string]any, error)

type validator interface {
	validate() error
}

func (s *Server) getAll(action string, list lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := list(r, r.URL.Query(), s.listOptions())
		if err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		s.respondList(w, items)
	}
}

func getOne[T, R any](s *Server, action string, get func(ctx context.Context, id string) (T, error), render func(T) R) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathID(w, r, "id")
		if !ok {
			return
		}
		item, err := get(r.Context(), id)
		if err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		s.respondData(w, http.StatusOK, render(item))
	}
}

func createOne[Req validator, T, R any](s *Server, action string, create func(r *http.Request, req Req) (T, error), render func(T) R) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decodeJSONBody(w, r, &req); err != nil {
			s.respondDecodeError(w, err)
			return
		}
		if err := req.validate(); err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		item, err := create(r, req)
		if err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		s.respondData(w, http.StatusCreated, render(item))
	}
}

func updateOne[Req validator, T, R any](s *Server, action string, update func(r *http.Request, id string, req Req) (T, error), render func(T) R) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathID(w, r, "id")
		if !ok {
			return
		}
		var req Req
		if err := decodeJSONBody(w, r, &req); err != nil {
			s.respondDecodeError(w, err)
			return
		}
		if err := req.validate(); err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		item, err := update(r, id, req)
		if err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		s.respondData(w, http.StatusOK, render(item))
	}
}

func (s *Server) deleteOne(action string, del func(r *http.Request, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathID(w, r, "id")
		if !ok {
			return
		}
		if err := del(r, id); err != nil {
			s.respondServiceError(w, r, action, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
