// Package v1 provides the leaderboard API v1 endpoints.
package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/panorama-game/rating-server/internal/api/common"
	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/status"
)

const (
	// DefaultStreamPollInterval is how often a websocket stream checks for a new snapshot
	DefaultStreamPollInterval = time.Second
)

// StatusProvider exposes the refresh scheduler status
type StatusProvider interface {
	Status() status.RefreshStatus
}

// CountResponse is the body of GET /v1/leaderboard/count
type CountResponse struct {
	Total int `json:"total"`
}

// Routes handles HTTP requests for the leaderboard API v1 endpoints.
type Routes struct {
	service            leaderboard.Service
	status             StatusProvider
	defaultPageSize    int
	maxPageSize        int
	requestTimeout     time.Duration
	streamPollInterval time.Duration
	streamCtx          context.Context
}

// Option configures the v1 routes
type Option func(*Routes)

// WithStatusProvider exposes the refresh status at /refresh/status
func WithStatusProvider(p StatusProvider) Option {
	return func(r *Routes) {
		r.status = p
	}
}

// WithPageSizes sets the page size used when none is requested and the largest accepted one
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(r *Routes) {
		if defaultSize > 0 {
			r.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			r.maxPageSize = maxSize
		}
	}
}

// WithRequestTimeout bounds every request except websocket streams
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Routes) {
		r.requestTimeout = d
	}
}

// WithStreamPollInterval sets how often websocket streams look for a new snapshot
func WithStreamPollInterval(d time.Duration) Option {
	return func(r *Routes) {
		if d > 0 {
			r.streamPollInterval = d
		}
	}
}

// WithStreamContext closes every open websocket stream once ctx is done.
// Streams hijack their connection, so server shutdown alone does not end them.
func WithStreamContext(ctx context.Context) Option {
	return func(r *Routes) {
		if ctx != nil {
			r.streamCtx = ctx
		}
	}
}

// NewRoutes creates a new Routes instance with the given service.
func NewRoutes(svc leaderboard.Service, opts ...Option) *Routes {
	routes := &Routes{
		service:            svc,
		defaultPageSize:    config.DefaultPageSize,
		maxPageSize:        config.DefaultMaxPageSize,
		streamPollInterval: DefaultStreamPollInterval,
		streamCtx:          context.Background(),
	}
	for _, opt := range opts {
		opt(routes)
	}
	return routes
}

// Router creates and configures the HTTP router for the v1 endpoints.
func Router(svc leaderboard.Service, opts ...Option) http.Handler {
	routes := NewRoutes(svc, opts...)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if routes.requestTimeout > 0 {
			r.Use(middleware.Timeout(routes.requestTimeout))
		}

		r.Get("/leaderboard", routes.getPage)
		r.Get("/leaderboard/search", routes.search)
		r.Get("/leaderboard/count", routes.count)
		r.Get("/leaderboard/info", routes.info)
		r.Get("/refresh/status", routes.refreshStatus)
	})

	r.Get("/leaderboard/ws", routes.stream)

	return r
}

// getPage handles GET /v1/leaderboard?page=N&pageSize=M
func (routes *Routes) getPage(w http.ResponseWriter, r *http.Request) {
	pageNumber, pageSize, err := routes.parsePagination(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := routes.service.Page(r.Context(), pageNumber, pageSize)
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidPagination) {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		common.WriteErrorResponse(w, "Failed to read leaderboard", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, result, http.StatusOK)
}

// search handles GET /v1/leaderboard/search?login=&nickname=&rating=&matchesNumber=
func (routes *Routes) search(w http.ResponseWriter, r *http.Request) {
	opts := []leaderboard.Option[leaderboard.SearchOptions]{}
	if v, ok := common.OptionalQueryParam(r, "login"); ok {
		opts = append(opts, leaderboard.WithLogin(v))
	}
	if v, ok := common.OptionalQueryParam(r, "nickname"); ok {
		opts = append(opts, leaderboard.WithNickname(v))
	}
	if v, ok := common.OptionalQueryParam(r, "rating"); ok {
		opts = append(opts, leaderboard.WithRating(v))
	}
	if v, ok := common.OptionalQueryParam(r, "matchesNumber"); ok {
		opts = append(opts, leaderboard.WithMatchesNumber(v))
	}

	result, err := routes.service.Search(r.Context(), opts...)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	common.WriteJSONResponse(w, result, http.StatusOK)
}

// count handles GET /v1/leaderboard/count
func (routes *Routes) count(w http.ResponseWriter, r *http.Request) {
	common.WriteJSONResponse(w, CountResponse{Total: routes.service.TotalCount(r.Context())}, http.StatusOK)
}

// info handles GET /v1/leaderboard/info
func (routes *Routes) info(w http.ResponseWriter, r *http.Request) {
	common.WriteJSONResponse(w, routes.service.Info(r.Context()), http.StatusOK)
}

// refreshStatus handles GET /v1/refresh/status
func (routes *Routes) refreshStatus(w http.ResponseWriter, _ *http.Request) {
	if routes.status == nil {
		common.WriteErrorResponse(w, "Refresh status not available", http.StatusNotFound)
		return
	}
	common.WriteJSONResponse(w, routes.status.Status(), http.StatusOK)
}

// parsePagination reads page and pageSize, applying the configured default and upper bound
func (routes *Routes) parsePagination(r *http.Request) (int, int, error) {
	pageNumber, err := common.IntQueryParam(r, "page", 0)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := routes.parsePageSize(r)
	if err != nil {
		return 0, 0, err
	}
	return pageNumber, pageSize, nil
}

func (routes *Routes) parsePageSize(r *http.Request) (int, error) {
	pageSize, err := common.IntQueryParam(r, "pageSize", routes.defaultPageSize)
	if err != nil {
		return 0, err
	}
	if pageSize > routes.maxPageSize {
		return 0, fmt.Errorf("invalid pageSize parameter: must not exceed %d", routes.maxPageSize)
	}
	return pageSize, nil
}
