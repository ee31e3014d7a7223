package api

import (
	"fmt"
	"net/http"

	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/settings"
)

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		o, err := s.store.Options()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read options: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodPut:
		o := settings.DefaultOptions()
		if !decodeJSON(w, r, &o) {
			return
		}
		if err := s.store.SetOptions(o); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save options: %v", err))
			return
		}
		s.applyOptions(o)
		writeJSON(w, http.StatusOK, o)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		drivers, err := s.store.Drivers()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read drivers: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, drivers)
	case http.MethodPut:
		var drivers []race.Driver
		if !decodeJSON(w, r, &drivers) {
			return
		}
		if err := s.store.SetDrivers(drivers); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		merged, err := s.store.Drivers()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read drivers: %v", err))
			return
		}
		// wait so the response reflects in the next snapshot
		<-s.manager.RefreshIdentities(r.Context(), merged, s.tr)
		writeJSON(w, http.StatusOK, merged)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		n, err := s.store.Notifications()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read notifications: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, n)
	case http.MethodPut:
		var n map[string]settings.Notification
		if !decodeJSON(w, r, &n) {
			return
		}
		if err := s.store.SetNotifications(n); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		merged, err := s.store.Notifications()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read notifications: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, merged)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRaceOptions(w http.ResponseWriter, r *http.Request) {
	mode := race.Mode(r.PathValue("mode"))
	switch mode {
	case race.Practice, race.Qualifying, race.Race:
	default:
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown mode %q", mode))
		return
	}

	switch r.Method {
	case http.MethodGet:
		o, err := s.store.RaceOptions(mode)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read race options: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodPut:
		o := race.DefaultOptions(mode)
		if !decodeJSON(w, r, &o) {
			return
		}
		o.Mode = mode
		if err := s.store.SetRaceOptions(o); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, o)
	default:
		methodNotAllowed(w)
	}
}
