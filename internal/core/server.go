// Package core provides the ops HTTP chassis of the collector: a chi router
// exposing liveness of the store and cache (/health), the outcome of the
// most recent tick (/status), the latest stored sample (/latest) and build
// metadata (/version).
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"climatewatch/internal/collect"
	"climatewatch/internal/config"
	"climatewatch/internal/types"
)

// TickReporter exposes the last tick outcome. *collect.Collector satisfies it.
type TickReporter interface {
	LastTick() *collect.TickStatus
}

// LatestReader is the read side of store.Store used by /latest.
type LatestReader interface {
	Latest(ctx context.Context, loc types.Location) (types.WeatherSample, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Service      string
	Location     types.Location
	ScheduleMode string
	Build        config.BuildInfo
	HealthProbes []HealthProbe
	Ticks        TickReporter
	Latest       LatestReader
	Clock        types.Clock
	Logger       *slog.Logger
}

// Server holds the ops endpoints.
type Server struct {
	HealthProbes []HealthProbe
	Logger       *slog.Logger

	service  string
	location types.Location
	mode     string
	build    config.BuildInfo
	ticks    TickReporter
	latest   LatestReader
	clock    types.Clock
	started  time.Time

	router *chi.Mux
}

// NewServer builds the server and mounts its routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	s := &Server{
		HealthProbes: cfg.HealthProbes,
		Logger:       cfg.Logger,
		service:      cfg.Service,
		location:     cfg.Location,
		mode:         cfg.ScheduleMode,
		build:        cfg.Build,
		ticks:        cfg.Ticks,
		latest:       cfg.Latest,
		clock:        cfg.Clock,
		started:      cfg.Clock.Now(),
		router:       chi.NewRouter(),
	}
	s.MountRoutes()
	return s, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router in an *http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
