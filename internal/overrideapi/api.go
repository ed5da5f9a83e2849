// Package overrideapi exposes the manual override surface over HTTP: browse
// the latest item pool, inspect the seen state and force-publish items.
package overrideapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/herald/internal/alerting"
	"github.com/linnemanlabs/herald/internal/seen"
)

// OverrideService defines the business operations overrideapi needs.
type OverrideService interface {
	Query(ctx context.Context, f alerting.Filter) ([]alerting.PoolEntry, error)
	ForcePublish(ctx context.Context, sel alerting.Selection, opts alerting.ForceOptions) (*alerting.ForceReport, error)
	State(ctx context.Context) (*seen.State, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    OverrideService
}

// New creates a new API handler.
func New(logger log.Logger, svc OverrideService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("override service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/items", a.handleListItems)
		r.Get("/items/{id}", a.handleGetItem)
		r.Post("/publish", a.handlePublish)
		r.Get("/state", a.handleState)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP statuses. Unknown errors are 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, alerting.ErrBadFilter):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, alerting.ErrAmbiguousID):
		return http.StatusConflict, err.Error()
	case errors.Is(err, alerting.ErrNoPool):
		return http.StatusNotFound, "no item pool yet; run the engine first"
	case errors.Is(err, seen.ErrLocked):
		return http.StatusConflict, "seen state is locked by another run"
	case errors.Is(err, seen.ErrNotInitialized):
		return http.StatusServiceUnavailable, "seen state not initialized"
	case errors.Is(err, seen.ErrCorrupt):
		return http.StatusServiceUnavailable, "seen state is corrupt"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request canceled"
	}
	return http.StatusInternalServerError, "internal error"
}
