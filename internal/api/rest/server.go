package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reliefops/redzone/internal/logger"
	"github.com/reliefops/redzone/internal/repository/zones"
	"github.com/reliefops/redzone/internal/service/dispatch"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/service/matcher"
	"github.com/reliefops/redzone/internal/store"
)

// Options configures the HTTP API server.
type Options struct {
	// Store is the shared live store.
	Store store.Store
	// Zones is the durable zone repository.
	Zones zones.Repository
	// TravelSpeedKmh is the constant speed used for queue ETAs.
	TravelSpeedKmh float64
	// AllowedOrigins configures CORS for browser clients. Empty allows all.
	AllowedOrigins []string
}

// Server holds the handler dependencies.
type Server struct {
	store          store.Store
	zones          zones.Repository
	dispatch       *dispatch.Coordinator
	matcher        *matcher.Matcher
	travelSpeedKmh float64
	allowedOrigins []string
}

// NewServer wires the handler dependencies together.
func NewServer(opts Options) *Server {
	return &Server{
		store:          opts.Store,
		zones:          opts.Zones,
		dispatch:       dispatch.NewCoordinator(opts.Store),
		matcher:        matcher.New(opts.Store),
		travelSpeedKmh: opts.TravelSpeedKmh,
		allowedOrigins: opts.AllowedOrigins,
	}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Get("/zones", s.handleListZones)
	r.Post("/zones", s.handleCreateZone)
	r.Delete("/zones/{id}", s.handleDeleteZone)

	r.Put("/locations/{subjectId}", s.handlePutLocation)
	r.Get("/locations/{subjectId}", s.handleGetLocation)

	r.Post("/assignments", s.handleAssign)
	r.Get("/responders/{id}/queue", s.handleQueue)

	r.Post("/match-face", s.handleMatchFace)

	r.Get("/stream/zones", s.handleStreamZones)
	r.Get("/stream/locations/{subjectId}", s.handleStreamLocation)

	return r
}

// PublishZones pushes the repository's full zone set into the live store,
// replacing whatever node is there. Called after every admin change and at
// server boot so the store survives restarts.
func PublishZones(ctx context.Context, repo zones.Repository, st store.Store) error {
	list, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}

	node := make(map[string]any, len(list))
	for _, z := range list {
		node[z.ID] = z.Record()
	}

	if err := st.Put(ctx, feed.ZonesPath, node); err != nil {
		return fmt.Errorf("publish zones: %w", err)
	}

	return nil
}

// requestLogger records every handled request with its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.DebugKV(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// respondJSON writes a JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.ErrorKV(context.Background(), "Failed to encode response", "error", err)
	}
}

// respondError writes a JSON error envelope.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
