package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"periodbell/internal/config"
	"periodbell/internal/engine"
	appLog "periodbell/internal/log"
	"periodbell/internal/model"
	"periodbell/internal/notify"
	"periodbell/internal/period"
)

// Engine is the part of *engine.Engine the API reads from.
type Engine interface {
	Snapshot() period.State
	Phase() engine.Phase
	View() *model.DayView
	Pending() []notify.Alert
	Ongoing() (notify.Ongoing, bool)
	Reload(ctx context.Context) error
	LastLoadError() error
	Location() *time.Location
	GroupID() string
}

// Server exposes the engine state over HTTP.
type Server struct {
	cfg *config.Config
	eng Engine
	mux *http.ServeMux
	now func() time.Time
}

func NewServer(cfg *config.Config, eng Engine) *Server {
	s := &Server{
		cfg: cfg,
		eng: eng,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials disable it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="periodbell", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs an HTTP server on cfg.Listen until ctx is cancelled, then
// shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/timetable", s.handleTimetable)
	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON response shape for /api/state.
type stateResponse struct {
	Group     string          `json:"group"`
	Timezone  string          `json:"timezone"`
	Phase     engine.Phase    `json:"phase"`
	State     period.State    `json:"state"`
	Ongoing   *notify.Ongoing `json:"ongoing,omitempty"`
	LoadError string          `json:"load_error,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse{
		Group:    s.eng.GroupID(),
		Timezone: s.eng.Location().String(),
		Phase:    s.eng.Phase(),
		State:    s.eng.Snapshot(),
	}
	if o, ok := s.eng.Ongoing(); ok {
		resp.Ongoing = &o
	}
	if err := s.eng.LastLoadError(); err != nil {
		resp.LoadError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTimetable returns the current view.
//
// GET /api/timetable?today_only=1
//   - today_only: restrict headers and cells to today. When today is not
//     a school day the response is an empty view with 404.
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	v := s.eng.View()
	if v == nil {
		writeError(w, http.StatusServiceUnavailable, "timetable not loaded")
		return
	}

	if !parseBoolDefault(r.URL.Query().Get("today_only"), false) {
		writeJSON(w, http.StatusOK, v)
		return
	}

	today := model.DayOf(s.now().In(s.eng.Location()))
	only, ok := v.OnlyDay(today)
	if !ok {
		writeJSON(w, http.StatusNotFound, &model.DayView{
			GroupID:    v.GroupID,
			DayHeaders: []model.DayOfWeek{},
			Rows:       []model.Row{},
		})
		return
	}
	writeJSON(w, http.StatusOK, only)
}

// alertsResponse is the JSON response shape for /api/alerts.
type alertsResponse struct {
	Alerts []notify.Alert `json:"alerts"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, alertsResponse{Alerts: s.eng.Pending()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Reload(r.Context()); err != nil {
		appLog.Error("api reload failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alertsResponse{Alerts: s.eng.Pending()})
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
