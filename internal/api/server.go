// Package api serves the read surface: trending stories, story detail,
// search, analytics and per-user blindspots.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/index"
	db "github.com/meridianews/meridian/internal/storage"
)

const (
	defaultTrendingWindow = 48 * time.Hour
	defaultSearchWindow   = 30 * 24 * time.Hour
	defaultPageSize       = 20
	maxPageSize           = 100
)

type store interface {
	ListTrendingClusters(ctx context.Context, since time.Time, minCoverage, offset, limit int) ([]db.TrendingCluster, error)
	GetCluster(ctx context.Context, id int64) (domain.Cluster, error)
	GetClusterArticles(ctx context.Context, groupID int64) ([]domain.Article, error)
	GetCoverage(ctx context.Context, groupID int64) (domain.Coverage, error)
	SearchArticles(ctx context.Context, query string, since time.Time, limit int) ([]domain.Article, error)
	GetAnalyticsOverview(ctx context.Context) (db.AnalyticsOverview, error)
	BiasDistribution(ctx context.Context) (map[string]int64, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	ListUserBlindspots(ctx context.Context, userID string) ([]domain.Blindspot, error)
	DismissBlindspot(ctx context.Context, blindspotID string) error
	UpsertRating(ctx context.Context, r domain.Rating) error
}

type searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, offset, rows int) (*index.SearchResult, error)
}

// Server is the HTTP read API.
type Server struct {
	store  store
	search searcher
	logger *zerolog.Logger
}

func NewServer(store store, search searcher, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Server{store: store, search: search, logger: logger}
}

// Router builds the chi router with CORS open for browser clients.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/stories/trending", s.handleTrending)
		r.Get("/stories/{id}", s.handleStory)
		r.Get("/search", s.handleSearch)
		r.Get("/analytics/overview", s.handleOverview)
		r.Get("/analytics/bias-distribution", s.handleBiasDistribution)
		r.Get("/users/{id}/blindspots", s.handleBlindspots)
		r.Post("/blindspots/{id}/dismiss", s.handleDismissBlindspot)
		r.Post("/ratings", s.handleRating)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encode response failed")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, errBadRequest):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
