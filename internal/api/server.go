// Package api serves the race control HTTP and WebSocket interface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slotrace/rms/internal/cu"
	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/settings"
	"github.com/slotrace/rms/internal/timeutil"
	"github.com/slotrace/rms/internal/tuning"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultLiveInterval is how often /api/live pushes a session snapshot.
const DefaultLiveInterval = 250 * time.Millisecond

// Config wires a Server to the rest of the process.
type Config struct {
	Manager *race.Manager
	Store   *settings.Store
	Tuner   *tuning.Tuner
	// Unit is the control unit new sessions are attached to.
	Unit       race.ControlUnit
	Translator race.Translator
	Clock      timeutil.Clock
	// LiveInterval defaults to DefaultLiveInterval.
	LiveInterval time.Duration
	// ListPorts defaults to cu.ListPorts.
	ListPorts func() ([]string, error)
}

type Server struct {
	manager *race.Manager
	store   *settings.Store
	tuner   *tuning.Tuner
	unit    race.ControlUnit
	tr      race.Translator
	clock   timeutil.Clock
	live    time.Duration

	listPorts func() ([]string, error)
	upgrader  websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.LiveInterval <= 0 {
		cfg.LiveInterval = DefaultLiveInterval
	}
	if cfg.ListPorts == nil {
		cfg.ListPorts = cu.ListPorts
	}
	return &Server{
		manager: cfg.Manager,
		store:   cfg.Store,
		tuner:   cfg.Tuner,
		unit:    cfg.Unit,
		tr:      cfg.Translator,
		clock:   cfg.Clock,
		live:    cfg.LiveInterval,

		listPorts: cfg.ListPorts,
	}
}

// LoadPreferences applies the stored options and driver profiles to the
// session manager. It is called once at startup and again whenever they
// change through the API.
func (s *Server) LoadPreferences(ctx context.Context) error {
	o, err := s.store.Options()
	if err != nil {
		return err
	}
	s.applyOptions(o)

	drivers, err := s.store.Drivers()
	if err != nil {
		return err
	}
	<-s.manager.RefreshIdentities(ctx, drivers, s.tr)
	return nil
}

func (s *Server) applyOptions(o settings.Options) {
	s.manager.SetOrder(o.Order())
	monitoring.SetDebug(o.Debug)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying connection.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/session/start", s.handleStart)
	mux.HandleFunc("/api/session/restart", s.handleRestart)
	mux.HandleFunc("/api/session/stop", s.handleStop)
	mux.HandleFunc("/api/session/cancel", s.sessionCommand((*race.Session).Cancel))
	mux.HandleFunc("/api/session/yellowflag", s.sessionCommand((*race.Session).ToggleYellowFlag))
	mux.HandleFunc("/api/session/startlight", s.sessionCommand((*race.Session).ToggleStart))
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/leaderboard.txt", s.handleLeaderboardText)
	mux.HandleFunc("/api/live", s.handleLive)

	mux.HandleFunc("/api/options", s.handleOptions)
	mux.HandleFunc("/api/drivers", s.handleDrivers)
	mux.HandleFunc("/api/notifications", s.handleNotifications)
	mux.HandleFunc("/api/race-options/{mode}", s.handleRaceOptions)

	mux.HandleFunc("/api/tuning", s.handleTuning)
	mux.HandleFunc("/api/tuning/apply", s.handleTuningApply)
	mux.HandleFunc("/api/tuning/{lane}/load", s.handleTuningLoad)
	mux.HandleFunc("/api/tuning/{lane}/save", s.handleTuningSave)

	mux.HandleFunc("/api/races", s.handleRaces)
	mux.HandleFunc("/api/races/{id}", s.handleRace)

	mux.HandleFunc("/api/serial/devices", s.handleSerialDevices)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("api: failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// decodeJSON reads a request body of at most 1MB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}
