package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
)

type startRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sess := s.manager.Current()
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, "No active session")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleStart attaches a new session in the requested mode using the stored
// options for that mode.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if s.unit == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "No control unit connected")
		return
	}
	opts, err := s.store.RaceOptions(race.ParseMode(req.Mode))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load race options: %v", err))
		return
	}
	sess, err := s.manager.Attach(s.unit, opts)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to start session: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	sess, err := s.manager.Restart()
	if errors.Is(err, race.ErrSessionStopped) {
		writeJSONError(w, http.StatusConflict, "No session to restart")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to restart session: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.manager.Detach()
	w.WriteHeader(http.StatusNoContent)
}

// sessionCommand adapts a Session operation into a POST handler.
func (s *Server) sessionCommand(fn func(*race.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess := s.manager.Current()
		if sess == nil {
			writeJSONError(w, http.StatusNotFound, "No active session")
			return
		}
		if err := fn(sess); err != nil {
			if errors.Is(err, race.ErrSessionStopped) {
				writeJSONError(w, http.StatusConflict, "Session has stopped")
				return
			}
			monitoring.Logf("api: session command failed: %v", err)
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sess := s.manager.Current()
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, "No active session")
		return
	}
	writeJSON(w, http.StatusOK, sess.Leaderboard())
}

func (s *Server) handleLeaderboardText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sess := s.manager.Current()
	if sess == nil {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}
	snap := sess.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, RenderLeaderboard(snap.Options.Mode, snap.Leaderboard))
}
