package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/settings"
)

// startPractice attaches a practice session and drives one lap for lane 2.
func startPractice(t *testing.T, e *testEnv) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/session/start", startRequest{Mode: "practice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	e.port.AddLines(
		`{"car":2,"time":0,"laps":0}`,
		`{"car":2,"time":4100,"laps":1}`,
	)
	require.Eventually(t, func() bool {
		lb := e.manager.Current().Leaderboard()
		return len(lb) == 1 && lb[0].Laps == 1
	}, waitFor, poll)
}

func waitEvent(t *testing.T, events <-chan race.Event, kind race.EventKind) race.Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestSession_NoActiveSession(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/session", "/api/leaderboard", "/api/leaderboard.txt"} {
		w := e.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := e.do(t, http.MethodPost, "/api/session/yellowflag", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/session/restart", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSession_StartUsesStoredOptions(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.store.SetRaceOptions(race.RaceOptions{Mode: race.Race, Laps: 12, MinLapTime: 800}))

	w := e.do(t, http.MethodPost, "/api/session/start", startRequest{Mode: "race"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[race.Snapshot](t, w)
	assert.Equal(t, race.Race, snap.Options.Mode)
	assert.Equal(t, 12, snap.Options.Laps)
	assert.Equal(t, int64(800), snap.Options.MinLapTime)

	w = e.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12, decode[race.Snapshot](t, w).Options.Laps)
}

func TestSession_UnknownModeFallsBackToPractice(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/session/start", startRequest{Mode: "endurance"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, race.Practice, decode[race.Snapshot](t, w).Options.Mode)
}

func TestSession_NoUnit(t *testing.T) {
	e := newTestEnv(t)
	e.srv.unit = nil
	w := e.do(t, http.MethodPost, "/api/session/start", startRequest{Mode: "practice"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSession_Leaderboard(t *testing.T) {
	e := newTestEnv(t)
	startPractice(t, e)

	w := e.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lb := decode[[]race.LeaderboardItem](t, w)
	require.Len(t, lb, 1)
	assert.Equal(t, 2, lb[0].ID)
	assert.Equal(t, "#3", lb[0].Driver.Code)

	w = e.do(t, http.MethodGet, "/api/leaderboard.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "#3")
	assert.Contains(t, w.Body.String(), "BEST")
}

func TestSession_Commands(t *testing.T) {
	e := newTestEnv(t)
	startPractice(t, e)
	id, events := e.manager.Subscribe()
	defer e.manager.Unsubscribe(id)

	w := e.do(t, http.MethodPost, "/api/session/yellowflag", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[race.Snapshot](t, w).YellowFlag)

	waitEvent(t, events, race.EventYellowFlag)

	w = e.do(t, http.MethodPost, "/api/session/startlight", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		for _, c := range e.port.Commands() {
			if c == "START" {
				return true
			}
		}
		return false
	}, waitFor, poll)

	w = e.do(t, http.MethodPost, "/api/session/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[race.Snapshot](t, w).Finished)
}

func TestSession_RestartAndStop(t *testing.T) {
	e := newTestEnv(t)
	startPractice(t, e)
	first := e.manager.Current()

	w := e.do(t, http.MethodPost, "/api/session/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotSame(t, first, e.manager.Current())
	assert.Empty(t, decode[race.Snapshot](t, w).Leaderboard)

	w = e.do(t, http.MethodPost, "/api/session/stop", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, e.manager.Current())

	w = e.do(t, http.MethodPost, "/api/session/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRaces_SaveListDelete(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/races", saveRaceRequest{Name: "Sunday GP", Track: "Kitchen"})
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing to save without a session")

	startPractice(t, e)

	w = e.do(t, http.MethodPost, "/api/races", saveRaceRequest{Name: "GP", Track: "Kitchen"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/races", saveRaceRequest{Name: "Sunday GP", Track: "Kitchen"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[settings.Race](t, w)
	assert.True(t, t0.Equal(saved.CreatedAt), "created at %v", saved.CreatedAt)

	w = e.do(t, http.MethodGet, "/api/races", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]settings.Race](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Sunday GP", list[0].Name)
	assert.Empty(t, list[0].Results)

	w = e.do(t, http.MethodGet, "/api/races/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[settings.Race](t, w)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 2, got.Results[0].Lane)
	assert.Equal(t, 1, got.Results[0].Laps)

	w = e.do(t, http.MethodDelete, "/api/races/"+saved.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/api/races/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodDelete, "/api/races/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRaces_EmptyList(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/races", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
