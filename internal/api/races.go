package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/slotrace/rms/internal/settings"
)

type saveRaceRequest struct {
	Name  string `json:"name"`
	Track string `json:"track"`
}

func (s *Server) handleRaces(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		races, err := s.store.Races()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list races: %v", err))
			return
		}
		if races == nil {
			races = []settings.Race{}
		}
		writeJSON(w, http.StatusOK, races)
	case http.MethodPost:
		s.saveRace(w, r)
	default:
		methodNotAllowed(w)
	}
}

// saveRace stores the leaderboard of the active session.
func (s *Server) saveRace(w http.ResponseWriter, r *http.Request) {
	var req saveRaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess := s.manager.Current()
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, "No active session")
		return
	}
	snap := sess.Snapshot()
	saved, err := s.store.SaveRace(req.Name, req.Track, snap.Options, snap.Leaderboard)
	if errors.Is(err, settings.ErrInvalidRace) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save race: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleRace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		saved, err := s.store.Race(id)
		if errors.Is(err, settings.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Race not found")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, saved)
	case http.MethodDelete:
		err := s.store.DeleteRace(id)
		if errors.Is(err, settings.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Race not found")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}
