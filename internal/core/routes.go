package core

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"climatewatch/internal/collect"
	"climatewatch/internal/config"
	"climatewatch/internal/types"
)

// MountRoutes registers the middleware chain and the ops endpoints.
//
// Ordering:
//  1. Recoverer     - outermost, catches every panic.
//  2. RequestID     - correlation id for the request log.
//  3. RequestLogger - one structured line per request.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/status", s.HandleStatus)
	s.router.Get("/latest", s.HandleLatest)
	s.router.Get("/version", s.HandleVersion)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusNotFound, APIErrorResponse{Error: ErrorDetail{
			Code:      "not_found",
			Message:   "no such endpoint",
			RequestID: middleware.GetReqID(r.Context()),
		}})
	})
}

type statusResponse struct {
	Service       string              `json:"service"`
	Location      string              `json:"location"`
	ScheduleMode  string              `json:"schedule_mode,omitempty"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	LastTick      *collect.TickStatus `json:"last_tick"`
}

// HandleStatus describes the collector and its most recent tick. last_tick
// is null until the first tick finishes.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Service:       s.service,
		Location:      s.location.String(),
		ScheduleMode:  s.mode,
		UptimeSeconds: int64(s.clock.Now().Sub(s.started).Seconds()),
	}
	if s.ticks != nil {
		resp.LastTick = s.ticks.LastTick()
	}
	JSON(w, r, http.StatusOK, resp)
}

// HandleLatest returns the most recent stored sample of the location.
func (s *Server) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if s.latest == nil {
		Error(w, r, types.NewAppError(types.ErrCodeStoreUnavailable, "no store configured", nil))
		return
	}
	sample, err := s.latest.Latest(r.Context(), s.location)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, sample)
}

// HandleVersion reports the build metadata.
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, struct {
		Service string           `json:"service"`
		Build   config.BuildInfo `json:"build"`
	}{s.service, s.build})
}
