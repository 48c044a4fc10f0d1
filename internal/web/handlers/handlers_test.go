package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/enrich"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
	"github.com/kozaktomas/photo-indexer/internal/search"
)

type stubSearcher struct {
	results    []search.Result
	err        error
	gotID      string
	gotQuery   string
	gotOptions search.Options
}

func (s *stubSearcher) Search(ctx context.Context, collectionID, query string, opts search.Options) ([]search.Result, error) {
	s.gotID, s.gotQuery, s.gotOptions = collectionID, query, opts
	return s.results, s.err
}

func TestSearchHandler_Search(t *testing.T) {
	searcher := &stubSearcher{results: []search.Result{
		{PhotoID: "p1", SourceLocation: "https://cdn.example.com/ev1/a.jpg", Similarity: 0.9},
		{PhotoID: "p2", SourceLocation: "https://cdn.example.com/ev1/b.jpg", Similarity: 0.5},
	}}
	handler := NewSearchHandler(searcher, search.Options{TopK: 20, MinSimilarity: 0.3}, zap.NewNop())

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/ev1/search?q=red+car&limit=5", nil),
		map[string]string{"collectionId": "ev1"},
	)
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var body []map[string]string
	parseJSONResponse(t, recorder, &body)
	if len(body) != 2 || body[0]["image"] != "https://cdn.example.com/ev1/a.jpg" {
		t.Errorf("unexpected body %v", body)
	}
	if searcher.gotID != "ev1" || searcher.gotQuery != "red car" {
		t.Errorf("unexpected call %q %q", searcher.gotID, searcher.gotQuery)
	}
	if searcher.gotOptions.TopK != 5 || searcher.gotOptions.MinSimilarity != 0.3 {
		t.Errorf("unexpected options %+v", searcher.gotOptions)
	}
}

func TestSearchHandler_EmptyResultsIsArray(t *testing.T) {
	handler := NewSearchHandler(&stubSearcher{}, search.Options{}, zap.NewNop())
	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/ev1/search", nil), map[string]string{"collectionId": "ev1"})
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if recorder.Body.String() != "[]\n" {
		t.Errorf("expected [], got %q", recorder.Body.String())
	}
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
	}{
		{"bad limit", "/api/ev1/search?q=x&limit=abc", nil, http.StatusBadRequest},
		{"zero limit", "/api/ev1/search?q=x&limit=0", nil, http.StatusBadRequest},
		{"embedding down", "/api/ev1/search?q=x", errkind.Wrap(errkind.ErrTransientIO, "timeout", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSearchHandler(&stubSearcher{err: tt.err}, search.Options{}, zap.NewNop())
			req := requestWithChiParams(httptest.NewRequest(http.MethodGet, tt.url, nil), map[string]string{"collectionId": "ev1"})
			recorder := httptest.NewRecorder()
			handler.Search(recorder, req)
			assertStatusCode(t, recorder, tt.status)
		})
	}
}

func TestSearchHandler_LimitIsCapped(t *testing.T) {
	searcher := &stubSearcher{}
	handler := NewSearchHandler(searcher, search.Options{}, zap.NewNop())
	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/x?q=a&limit=100000", nil), map[string]string{"collectionId": "ev1"})
	handler.Detailed(httptest.NewRecorder(), req)
	if searcher.gotOptions.TopK != 200 {
		t.Errorf("expected capped limit, got %d", searcher.gotOptions.TopK)
	}
}

type stubGeocoder struct {
	result *geocode.SearchResult
	err    error
}

func (s *stubGeocoder) Search(ctx context.Context, q string) (*geocode.SearchResult, error) {
	return s.result, s.err
}

func TestLookupHandler_Lookup(t *testing.T) {
	locator := geocode.NewIndex([]database.GazetteerPoint{
		{GeonameID: 1, Name: "Brno", Admin1Code: "78", CountryCode: "CZ", Latitude: 49.19, Longitude: 16.6},
	})

	tests := []struct {
		name     string
		url      string
		geocoder ForwardGeocoder
		status   int
	}{
		{"missing q", "/api/lookup", &stubGeocoder{}, http.StatusBadRequest},
		{"no match", "/api/lookup?q=atlantis", &stubGeocoder{err: errkind.Wrap(errkind.ErrNotFound, "no hits", nil)}, http.StatusNotFound},
		{"upstream down", "/api/lookup?q=brno", &stubGeocoder{err: errkind.Wrap(errkind.ErrTransientIO, "502", nil)}, http.StatusInternalServerError},
		{"not configured", "/api/lookup?q=brno", nil, http.StatusNotImplemented},
		{"found", "/api/lookup?q=brno", &stubGeocoder{result: &geocode.SearchResult{Latitude: 49.2, Longitude: 16.61, DisplayName: "Brno, Czechia"}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewLookupHandler(tt.geocoder, locator, zap.NewNop())
			recorder := httptest.NewRecorder()
			handler.Lookup(recorder, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assertStatusCode(t, recorder, tt.status)

			if tt.status == http.StatusOK {
				var resp LookupResponse
				parseJSONResponse(t, recorder, &resp)
				if resp.Query != "brno" || resp.DisplayName != "Brno, Czechia" {
					t.Errorf("unexpected response %+v", resp)
				}
				if resp.Place == nil || resp.Place.City != "Brno" || resp.Place.Country != "CZ" {
					t.Errorf("unexpected place %+v", resp.Place)
				}
			}
		})
	}
}

func TestLookupHandler_Locate(t *testing.T) {
	handler := NewLookupHandler(nil, geocode.NewIndex([]database.GazetteerPoint{
		{GeonameID: 1, Name: "Wien", Admin1Code: "09", CountryCode: "AT", Latitude: 48.2, Longitude: 16.37},
	}), zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Locate(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/locate?lat=48.1&lon=16.4", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var place database.Place
	parseJSONResponse(t, recorder, &place)
	if place.City != "Wien" {
		t.Errorf("unexpected place %+v", place)
	}

	for _, url := range []string{"/api/v1/locate", "/api/v1/locate?lat=91&lon=0", "/api/v1/locate?lat=x&lon=1"} {
		recorder := httptest.NewRecorder()
		handler.Locate(recorder, httptest.NewRequest(http.MethodGet, url, nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}

	empty := NewLookupHandler(nil, geocode.NewIndex(nil), zap.NewNop())
	recorder = httptest.NewRecorder()
	empty.Locate(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/locate?lat=1&lon=1", nil))
	assertStatusCode(t, recorder, http.StatusNotFound)
}

type stubRunner struct {
	busy      bool
	triggered []string
	last      *enrich.PassResult
}

func (s *stubRunner) Trigger(collectionID string) bool {
	if s.busy {
		return false
	}
	s.triggered = append(s.triggered, collectionID)
	return true
}

func (s *stubRunner) Last() *enrich.PassResult { return s.last }

type stubStats struct {
	stats []database.CollectionStats
	err   error
}

func (s *stubStats) Stats(ctx context.Context) ([]database.CollectionStats, error) {
	return s.stats, s.err
}

func TestEnrichHandler_Start(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		busy   bool
		status int
		want   []string
	}{
		{"all collections", "/api/v1/enrich", false, http.StatusAccepted, []string{""}},
		{"one collection", "/api/v1/enrich?collection=ev1", false, http.StatusAccepted, []string{"ev1"}},
		{"invalid collection", "/api/v1/enrich?collection=a/b", false, http.StatusBadRequest, nil},
		{"already running", "/api/v1/enrich", true, http.StatusConflict, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{busy: tt.busy}
			handler := NewEnrichHandler(runner, &stubStats{}, zap.NewNop())
			recorder := httptest.NewRecorder()
			handler.Start(recorder, httptest.NewRequest(http.MethodPost, tt.url, nil))

			assertStatusCode(t, recorder, tt.status)
			if len(runner.triggered) != len(tt.want) || (len(tt.want) > 0 && runner.triggered[0] != tt.want[0]) {
				t.Errorf("triggered %v, want %v", runner.triggered, tt.want)
			}
		})
	}
}

func TestEnrichHandler_Stats(t *testing.T) {
	runner := &stubRunner{last: &enrich.PassResult{ID: "pass-1", Selected: 3, Enriched: 2, Failed: 1}}
	stats := &stubStats{stats: []database.CollectionStats{{CollectionID: "ev1", Total: 3, Described: 2, Embedded: 2}}}
	handler := NewEnrichHandler(runner, stats, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Stats(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp StatsResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Collections) != 1 || resp.Collections[0].Total != 3 {
		t.Errorf("unexpected collections %+v", resp.Collections)
	}
	if resp.LastPass == nil || resp.LastPass.ID != "pass-1" || resp.LastPass.Failed != 1 {
		t.Errorf("unexpected last pass %+v", resp.LastPass)
	}

	stats.err = errkind.Wrap(errkind.ErrTransientIO, "db down", nil)
	recorder = httptest.NewRecorder()
	handler.Stats(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

type stubUploader struct {
	seen map[string]bool
	err  error
}

func (s *stubUploader) Upload(ctx context.Context, collectionID, fileName string, data []byte) (*database.Photo, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	inserted := !s.seen[fileName]
	s.seen[fileName] = true
	return &database.Photo{ID: "id-" + fileName, FileName: fileName, SourceLocation: "s3://photos/" + collectionID + "/" + fileName}, inserted, nil
}

func multipartRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/collections/ev1/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return requestWithChiParams(req, map[string]string{"collectionId": "ev1"})
}

func TestUploadHandler_Upload(t *testing.T) {
	uploader := &stubUploader{seen: map[string]bool{}}
	handler := NewUploadHandler(uploader, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Upload(recorder, multipartRequest(t, map[string]string{"a.jpg": "jpeg"}))
	assertStatusCode(t, recorder, http.StatusCreated)

	var photos []UploadedPhoto
	parseJSONResponse(t, recorder, &photos)
	if len(photos) != 1 || !photos[0].Registered || photos[0].Location != "s3://photos/ev1/a.jpg" {
		t.Errorf("unexpected response %+v", photos)
	}

	recorder = httptest.NewRecorder()
	handler.Upload(recorder, multipartRequest(t, map[string]string{"a.jpg": "jpeg"}))
	assertStatusCode(t, recorder, http.StatusOK)
}

func TestUploadHandler_Errors(t *testing.T) {
	handler := NewUploadHandler(&stubUploader{seen: map[string]bool{}}, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Upload(recorder, multipartRequest(t, nil))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "no files provided")

	recorder = httptest.NewRecorder()
	req := requestWithChiParams(httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("plain")), map[string]string{"collectionId": "ev1"})
	handler.Upload(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)

	rejecting := NewUploadHandler(&stubUploader{err: errkind.Wrap(errkind.ErrValidation, "not an image", nil)}, zap.NewNop())
	recorder = httptest.NewRecorder()
	rejecting.Upload(recorder, multipartRequest(t, map[string]string{"a.txt": "hello"}))
	assertStatusCode(t, recorder, http.StatusBadRequest)

	conflicting := NewUploadHandler(&stubUploader{err: errkind.Wrap(errkind.ErrConflict, "file already registered: ev1/a.jpg", nil)}, zap.NewNop())
	recorder = httptest.NewRecorder()
	conflicting.Upload(recorder, multipartRequest(t, map[string]string{"a.jpg": "jpeg"}))
	assertStatusCode(t, recorder, http.StatusConflict)
}
