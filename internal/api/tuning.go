package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/slotrace/rms/internal/tuning"
)

// tuningRequest changes one channel. Exactly one of Level and Slider is
// set; a nil Lane applies to every lane.
type tuningRequest struct {
	Channel string `json:"channel"`
	Lane    *int   `json:"lane"`
	Level   *int   `json:"level"`
	Slider  *int   `json:"slider"`
}

func (s *Server) requireTuner(w http.ResponseWriter) (*tuning.Tuner, bool) {
	if s.tuner == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "Tuning is not available")
		return nil, false
	}
	return s.tuner, true
}

func (s *Server) handleTuning(w http.ResponseWriter, r *http.Request) {
	t, ok := s.requireTuner(w)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, t.Models())
	case http.MethodPost:
		var req tuningRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ch, err := tuning.ParseChannel(req.Channel)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch {
		case req.Level != nil && req.Slider == nil:
			err = t.Update(ch, req.Lane, *req.Level)
		case req.Slider != nil && req.Level == nil:
			err = t.UpdateSlider(ch, req.Lane, *req.Slider)
		default:
			writeJSONError(w, http.StatusBadRequest, "Exactly one of level or slider is required")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, t.Models())
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTuningApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	t, ok := s.requireTuner(w)
	if !ok {
		return
	}
	if err := t.ApplyAll(); err != nil {
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("Failed to write to control unit: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, t.Models())
}

func parseLane(w http.ResponseWriter, r *http.Request) (int, bool) {
	lane, err := strconv.Atoi(r.PathValue("lane"))
	if err != nil || lane < 0 || lane >= tuning.Lanes {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid lane %q", r.PathValue("lane")))
		return 0, false
	}
	return lane, true
}

// handleTuningLoad copies the car settings of the driver in a lane into the
// tuner.
func (s *Server) handleTuningLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	t, ok := s.requireTuner(w)
	if !ok {
		return
	}
	lane, ok := parseLane(w, r)
	if !ok {
		return
	}
	drivers, err := s.store.Drivers()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read drivers: %v", err))
		return
	}
	if err := t.LoadCarDefaults(lane, drivers[lane]); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t.Models())
}

// handleTuningSave stores the tuner levels of a lane on the car of the
// driver in that lane.
func (s *Server) handleTuningSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	t, ok := s.requireTuner(w)
	if !ok {
		return
	}
	lane, ok := parseLane(w, r)
	if !ok {
		return
	}
	drivers, err := s.store.Drivers()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read drivers: %v", err))
		return
	}
	updated, ok := t.SaveCarDefaults(lane, drivers)
	if !ok {
		writeJSONError(w, http.StatusConflict, fmt.Sprintf("Driver %d has no car", lane+1))
		return
	}
	if err := s.store.SetDrivers(updated); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save drivers: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
