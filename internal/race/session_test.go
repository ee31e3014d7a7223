package race

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotrace/rms/internal/timeutil"
)

// fakeUnit is an in-memory control unit recording every write.
type fakeUnit struct {
	mu      sync.Mutex
	feeds   map[string]*Feed
	next    int
	laps    []int
	toggles int
}

func newFakeUnit() *fakeUnit {
	return &fakeUnit{feeds: make(map[string]*Feed)}
}

func (u *fakeUnit) Subscribe() (string, *Feed) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.next++
	id := strconv.Itoa(u.next)
	f := NewFeed(64)
	u.feeds[id] = f
	return id, f
}

func (u *fakeUnit) Unsubscribe(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if f, ok := u.feeds[id]; ok {
		close(f.Frames)
		delete(u.feeds, id)
	}
}

func (u *fakeUnit) SetLap(lap int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.laps = append(u.laps, lap)
	return nil
}

func (u *fakeUnit) ToggleStart() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toggles++
	return nil
}

func (u *fakeUnit) subscribers() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.feeds)
}

func (u *fakeUnit) lastLap() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.laps) == 0 {
		return -1
	}
	return u.laps[len(u.laps)-1]
}

func (u *fakeUnit) toggleCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.toggles
}

func (u *fakeUnit) each(fn func(*Feed)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, f := range u.feeds {
		fn(f)
	}
}

func (u *fakeUnit) send(fr Frame)   { u.each(func(f *Feed) { f.Frames <- fr }) }
func (u *fakeUnit) sample(s Sample) { u.send(Frame{Sample: &s}) }
func (u *fakeUnit) light(v int)     { u.send(Frame{Start: &v}) }
func (u *fakeUnit) mode(v int)      { u.send(Frame{Mode: &v}) }

// disconnect closes every feed as a control unit does when its port goes away.
func (u *fakeUnit) disconnect() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for id, f := range u.feeds {
		close(f.Frames)
		delete(u.feeds, id)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return kinds(l.events)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

func newTestSession(t *testing.T, unit *fakeUnit, opts RaceOptions) (*Session, *eventLog, *timeutil.MockClock) {
	t.Helper()
	log := &eventLog{}
	clock := timeutil.NewMockClock(t0)
	s, err := NewSession(unit, opts, SessionConfig{
		Clock:   clock,
		Tick:    100 * time.Millisecond,
		Publish: log.publish,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, log, clock
}

func TestNewSession_InvalidOptions(t *testing.T) {
	_, err := NewSession(newFakeUnit(), RaceOptions{Mode: "endurance"}, SessionConfig{})
	assert.Error(t, err)

	_, err = NewSession(nil, DefaultOptions(Practice), SessionConfig{})
	assert.Error(t, err)
}

func TestSession_PracticeRunsImmediately(t *testing.T) {
	unit := newFakeUnit()
	s, _, _ := newTestSession(t, unit, DefaultOptions(Practice))

	require.Eventually(t, func() bool { return unit.lastLap() == 0 }, waitFor, poll, "lap counter reset on attach")

	unit.sample(lap(3, 0, 0))
	unit.sample(lap(3, 1, 4100))
	require.Eventually(t, func() bool {
		lb := s.Leaderboard()
		return len(lb) == 1 && lb[0].Laps == 1
	}, waitFor, poll)

	snap := s.Snapshot()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, "#4", snap.Leaderboard[0].Driver.Code)
	assert.Nil(t, snap.Remaining)

	require.Eventually(t, func() bool { return unit.lastLap() == 1 }, waitFor, poll, "lap counter follows the leader")
}

func TestSession_RaceStartSequence(t *testing.T) {
	unit := newFakeUnit()
	s, log, _ := newTestSession(t, unit, RaceOptions{Mode: Race, Laps: 5, MinLapTime: 500})

	unit.light(0)
	require.Eventually(t, func() bool { return unit.toggleCount() == 1 }, waitFor, poll, "idle unit must be armed")

	for _, v := range []int{1, 2, 3, 4, 5} {
		unit.light(v)
	}
	require.Eventually(t, func() bool { return s.Snapshot().StartLight == 5 }, waitFor, poll)
	assert.Equal(t, StateWaiting, s.Snapshot().State)
	assert.Empty(t, s.Leaderboard())

	unit.light(0)
	require.Eventually(t, func() bool { return s.Snapshot().State == StateRunning }, waitFor, poll)

	unit.sample(lap(0, 0, 0))
	unit.sample(lap(0, 1, 2500))
	require.Eventually(t, func() bool { return len(s.Leaderboard()) == 1 }, waitFor, poll)
	assert.Equal(t, 1, unit.toggleCount(), "start must only be toggled once")
	assert.Empty(t, log.kinds())
}

func TestSession_FramesApplyInArrivalOrder(t *testing.T) {
	unit := newFakeUnit()
	s, _, _ := newTestSession(t, unit, RaceOptions{Mode: Race, Laps: 5, MinLapTime: 500})

	// no waiting between frames: the go light is applied before the samples behind it
	for _, v := range []int{0, 5, 0} {
		unit.light(v)
	}
	unit.sample(lap(0, 0, 0))
	unit.sample(lap(0, 1, 2500))

	require.Eventually(t, func() bool {
		lb := s.Leaderboard()
		return len(lb) == 1 && lb[0].Laps == 1
	}, waitFor, poll)
	assert.Equal(t, StateRunning, s.Snapshot().State)
}

func TestSession_FalseStartEvent(t *testing.T) {
	unit := newFakeUnit()
	_, log, _ := newTestSession(t, unit, DefaultOptions(Race))

	for _, v := range []int{2, 1, 9, 0} {
		unit.light(v)
	}
	require.Eventually(t, func() bool { return len(log.kinds()) == 1 }, waitFor, poll)
	assert.Equal(t, []EventKind{EventFalseStart}, log.kinds())
}

func TestSession_EventsCarDriverIdentity(t *testing.T) {
	unit := newFakeUnit()
	log := &eventLog{}
	cache := &IdentityCache{}
	cache.Store([]Identity{{Name: "Graham", Code: "HIL", Color: "#ff0000"}})

	s, err := NewSession(unit, DefaultOptions(Practice), SessionConfig{
		Clock:      timeutil.NewMockClock(t0),
		Identities: cache,
		Publish:    log.publish,
	})
	require.NoError(t, err)
	defer s.Close()

	a := lap(0, 4, 16000)
	b := lap(0, 4, 16000)
	b.Pit = true
	unit.sample(a)
	unit.sample(b)

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, waitFor, poll)
	ev := log.all()[0]
	assert.Equal(t, EventPitEnter, ev.Kind)
	require.NotNil(t, ev.Driver)
	assert.Equal(t, "HIL", ev.Driver.Code)
}

func TestSession_YellowFlagAndCancel(t *testing.T) {
	unit := newFakeUnit()
	s, log, _ := newTestSession(t, unit, DefaultOptions(Practice))

	require.NoError(t, s.ToggleYellowFlag())
	assert.True(t, s.Snapshot().YellowFlag)
	require.NoError(t, s.ToggleYellowFlag())
	assert.Equal(t, []EventKind{EventYellowFlag, EventGreenFlag}, log.kinds())

	require.NoError(t, s.Cancel())
	snap := s.Snapshot()
	assert.True(t, snap.Finished)
	assert.Equal(t, StateFinished, snap.State)
}

func TestSession_StopFinTogglesOnAllDone(t *testing.T) {
	unit := newFakeUnit()
	s, log, _ := newTestSession(t, unit, RaceOptions{Mode: Practice, StopFin: true})

	unit.sample(lap(2, 1, 3000))
	require.Eventually(t, func() bool { return len(s.Leaderboard()) == 1 }, waitFor, poll)
	require.NoError(t, s.Cancel())

	unit.sample(lap(2, 2, 6000))
	require.Eventually(t, func() bool { return unit.toggleCount() == 1 }, waitFor, poll)
	assert.Contains(t, log.kinds(), EventAllDone)
	require.Eventually(t, func() bool { return s.Snapshot().AllFinished }, waitFor, poll)
}

func TestSession_TimerFromClock(t *testing.T) {
	unit := newFakeUnit()
	s, log, clock := newTestSession(t, unit, RaceOptions{Mode: Practice, Time: 1000})

	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, waitFor, poll)
	for i := 0; i < 12; i++ {
		clock.Advance(100 * time.Millisecond)
		time.Sleep(poll)
	}
	require.Eventually(t, func() bool { return s.Snapshot().Finished }, waitFor, poll)
	rem := s.Snapshot().Remaining
	require.NotNil(t, rem)
	assert.Equal(t, int64(0), *rem)
	assert.Contains(t, log.kinds(), EventTimeout)
}

func TestSession_ModeBits(t *testing.T) {
	unit := newFakeUnit()
	s, _, _ := newTestSession(t, unit, DefaultOptions(Practice))
	unit.mode(0x02)
	require.Eventually(t, func() bool { return s.Snapshot().PitLane }, waitFor, poll)
	assert.False(t, s.Snapshot().FuelMode)
}

func TestSession_Disconnect(t *testing.T) {
	unit := newFakeUnit()
	s, _, _ := newTestSession(t, unit, DefaultOptions(Practice))

	unit.disconnect()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not stop after disconnect")
	}
	assert.Equal(t, StateDisconnected, s.Snapshot().State)
	assert.ErrorIs(t, s.Cancel(), ErrSessionStopped)
}

func TestSession_CloseReleasesUnit(t *testing.T) {
	unit := newFakeUnit()
	s, _, _ := newTestSession(t, unit, DefaultOptions(Practice))
	require.Equal(t, 1, unit.subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, unit.subscribers())
	assert.Equal(t, StateStopped, s.Snapshot().State)
	assert.ErrorIs(t, s.ToggleYellowFlag(), ErrSessionStopped)
}

func TestSession_MalformedSampleDropped(t *testing.T) {
	unit := newFakeUnit()
	s, _, _ := newTestSession(t, unit, DefaultOptions(Practice))

	unit.sample(lap(0, 3, 12000))
	unit.sample(lap(0, 2, 13000))
	unit.sample(lap(0, 4, 16000))
	require.Eventually(t, func() bool {
		lb := s.Leaderboard()
		return len(lb) == 1 && lb[0].Laps == 4
	}, waitFor, poll)
}
