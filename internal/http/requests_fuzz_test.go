package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func FuzzDecodeTourRequest(f *testing.F) {
	seeds := []string{
		`{"name":"The Forest Hiker","duration":5,"maxGroupSize":25,"difficulty":"easy","price":397,"summary":"s","imageCover":"c.jpg"}`,
		`{"name":"x","price":-1}`,
		`{"priceDiscount":1e309}`,
		`{"startDates":["not a date"]}`,
		`{"ratingsAverage":5}`,
		`[]`,
		``,
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tours", bytes.NewBufferString(raw))
		rec := httptest.NewRecorder()

		var create tourCreateRequest
		if err := decodeJSONBody(rec, req, &create); err == nil {
			_ = create.validate()
		}

		req = httptest.NewRequest(http.MethodPatch, "/api/v1/tours/x", bytes.NewBufferString(raw))
		var update tourUpdateRequest
		if err := decodeJSONBody(rec, req, &update); err == nil {
			_ = update.validate()
		}
	})
}
