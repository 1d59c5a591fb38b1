// Package api provides the local HTTP command API served by `devdeck serve`
// and the client the CLI uses to talk to it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/treykane/devdeck/internal/healthcheck"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/tunnel"
)

// Supervisor is the part of *tunnel.Supervisor the API drives.
type Supervisor interface {
	List() []model.TunnelStatus
	Toggle(ctx context.Context, name string, desired model.DesiredState) error
	Extend(specs []model.TunnelSpec) error
}

// Config holds API dependencies.
type Config struct {
	Supervisor Supervisor
	// Health runs one round of healthchecks. Nil serves an empty list.
	Health func(ctx context.Context) []healthcheck.SectionResult
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// OnExtend is called after tunnels were added, e.g. to persist them.
	OnExtend func(specs []model.TunnelSpec) error
}

// API serves the tunnel command API.
type API struct {
	sup      Supervisor
	health   func(ctx context.Context) []healthcheck.SectionResult
	metrics  http.Handler
	onExtend func(specs []model.TunnelSpec) error
}

// ToggleRequest is the body of PUT /api/v1/tunnels/{name}.
type ToggleRequest struct {
	State model.DesiredState `json:"state"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates a new API server.
func New(cfg Config) *API {
	return &API{
		sup:      cfg.Supervisor,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		onExtend: cfg.OnExtend,
	}
}

// Router returns the HTTP router for the API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1/tunnels", func(r chi.Router) {
		r.Get("/", a.handleListTunnels)
		r.Post("/", a.handleExtendTunnels)
		r.Put("/{name}", a.handleToggleTunnel)
	})
	r.Get("/api/v1/healthchecks", a.handleHealthchecks)

	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}
	return r
}

func (a *API) handleListTunnels(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.sup.List())
}

func (a *API) handleToggleTunnel(w http.ResponseWriter, r *http.Request) {
	name, err := tunnelName(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	desired, err := model.ParseDesiredState(string(req.State))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = a.sup.Toggle(r.Context(), name, desired)
	var spawnErr *tunnel.SpawnError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &spawnErr):
		a.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, tunnel.ErrSupervisorClosed):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		a.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// tunnelName returns the {name} route parameter. chi matches on the escaped
// path when one is set, so a name like "db/primary" arrives as "db%2Fprimary".
func tunnelName(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, nil
	}
	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("invalid tunnel name %q: %w", name, err)
	}
	return unescaped, nil
}

func (a *API) handleExtendTunnels(w http.ResponseWriter, r *http.Request) {
	var specs []model.TunnelSpec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := a.sup.Extend(specs)
	switch {
	case err == nil:
	case errors.Is(err, tunnel.ErrDuplicateTunnel):
		a.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, tunnel.ErrSupervisorClosed):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if a.onExtend != nil {
		if err := a.onExtend(specs); err != nil {
			// The tunnels are live; only persisting them failed.
			slog.Warn("persist extended tunnels", "count", len(specs), "error", err)
		}
	}
	a.writeJSON(w, http.StatusCreated, a.sup.List())
}

func (a *API) handleHealthchecks(w http.ResponseWriter, r *http.Request) {
	if a.health == nil {
		a.writeJSON(w, http.StatusOK, []healthcheck.SectionResult{})
		return
	}
	a.writeJSON(w, http.StatusOK, a.health(r.Context()))
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, ErrorResponse{Error: msg})
}
