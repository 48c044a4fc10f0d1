package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/photo-indexer/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Checks)
	searchHandler := handlers.NewSearchHandler(s.deps.Search, s.searchOpts, s.logger)
	lookupHandler := handlers.NewLookupHandler(s.deps.Geocoder, s.deps.Locator, s.logger)
	enrichHandler := handlers.NewEnrichHandler(s.deps.Passes, s.deps.Stats, s.logger)

	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Public endpoints consumed by the gallery frontend
	s.router.Get("/api/{collectionId}/search", searchHandler.Search)
	s.router.Get("/api/lookup", lookupHandler.Lookup)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)
		r.Get("/stats", enrichHandler.Stats)
		r.Post("/enrich", enrichHandler.Start)
		r.Get("/locate", lookupHandler.Locate)

		r.Route("/collections/{collectionId}", func(r chi.Router) {
			r.Get("/search", searchHandler.Detailed)
			if s.deps.Uploader != nil {
				uploadHandler := handlers.NewUploadHandler(s.deps.Uploader, s.logger)
				r.Post("/photos", uploadHandler.Upload)
			}
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})
}
