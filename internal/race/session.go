package race

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/timeutil"
)

// ErrSessionStopped is returned by operations on a closed or disconnected
// session.
var ErrSessionStopped = errors.New("session stopped")

// Frame is one telemetry update from a control unit. Nil fields were not
// reported.
type Frame struct {
	Sample *Sample
	Start  *int
	Mode   *int
}

// Feed carries telemetry frames from a control unit to one subscriber in
// arrival order. The producer closes Frames when the control unit goes away.
type Feed struct {
	Frames chan Frame
}

// NewFeed returns a Feed holding up to buffer pending frames.
func NewFeed(buffer int) *Feed {
	return &Feed{Frames: make(chan Frame, buffer)}
}

// ControlUnit is the hardware a session reads telemetry from and writes the
// lap counter and start button to.
type ControlUnit interface {
	Subscribe() (string, *Feed)
	Unsubscribe(id string)
	SetLap(lap int) error
	ToggleStart() error
}

// State is the lifecycle state of a session.
type State string

const (
	StateWaiting      State = "waiting"
	StateRunning      State = "running"
	StateFinished     State = "finished"
	StateDisconnected State = "disconnected"
	StateStopped      State = "stopped"
)

// Snapshot is the published view of a session.
type Snapshot struct {
	Options     RaceOptions       `json:"options"`
	State       State             `json:"state"`
	Leaderboard []LeaderboardItem `json:"leaderboard"`
	LapCount    LapCount          `json:"lapcount"`
	Elapsed     int64             `json:"elapsed"`
	Remaining   *int64            `json:"remaining,omitempty"`
	Finished    bool              `json:"finished"`
	AllFinished bool              `json:"allFinished"`
	YellowFlag  bool              `json:"yellowFlag"`
	PitLane     bool              `json:"pitlane"`
	FuelMode    bool              `json:"fuelmode"`
	StartLight  int               `json:"start"`
}

// SessionConfig holds what a session needs besides its options.
type SessionConfig struct {
	Clock      timeutil.Clock
	Tick       time.Duration
	Masks      ModeMasks
	Identities *IdentityCache
	// Publish receives every derived event. It must not block.
	Publish func(Event)
	// Order returns the leaderboard order for snapshots.
	Order func() Order
}

type command struct {
	fn    func(*engine) []Event
	reply chan struct{}
}

// Session is one practice, qualifying or race run bound to a control unit.
// A single goroutine owns all mutable race state; other goroutines talk to
// it through commands and read published snapshots.
type Session struct {
	opts RaceOptions
	cfg  SessionConfig
	unit ControlUnit

	feedID  string
	wb      *writeBack
	control chan command
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once

	mu   sync.RWMutex
	snap Snapshot
}

// NewSession validates opts, subscribes to unit and starts the session
// goroutine. Practice sessions start immediately; the others wait for the
// start lights.
func NewSession(unit ControlUnit, opts RaceOptions, cfg SessionConfig) (*Session, error) {
	if unit == nil {
		return nil, errors.New("race: nil control unit")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("race: invalid options: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.Masks == (ModeMasks{}) {
		cfg.Masks = DefaultModeMasks()
	}
	if cfg.Identities == nil {
		cfg.Identities = &IdentityCache{}
	}
	if cfg.Publish == nil {
		cfg.Publish = func(Event) {}
	}
	if cfg.Order == nil {
		cfg.Order = func() Order { return OrderPosition }
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:    opts,
		cfg:     cfg,
		unit:    unit,
		wb:      newWriteBack(unit),
		control: make(chan command),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	e := newEngine(opts, cfg.Masks)
	if opts.Mode == Practice {
		e.start(cfg.Clock.Now())
	}
	s.publishState(e, StateWaiting)

	id, feed := unit.Subscribe()
	s.feedID = id
	s.wb.pushLap(0)

	go s.run(ctx, e, feed)
	return s, nil
}

// Options returns the options the session was created with.
func (s *Session) Options() RaceOptions {
	return s.opts
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run(ctx context.Context, e *engine, feed *Feed) {
	defer close(s.done)

	ticker := s.cfg.Clock.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	var seq startSequence
	if s.opts.Mode == Practice {
		seq.seen, seq.done = true, true
	}

	for {
		select {
		case <-ctx.Done():
			s.publishState(e, StateStopped)
			return

		case f, ok := <-feed.Frames:
			if !ok {
				monitoring.Logf("race: control unit disconnected, %s session stopped", s.opts.Mode)
				s.publishState(e, StateDisconnected)
				return
			}
			s.apply(e, &seq, f)

		case now := <-ticker.C():
			s.emit(e.tick(now))

		case cmd := <-s.control:
			s.emit(cmd.fn(e))
			s.publishState(e, "")
			close(cmd.reply)
			continue
		}
		s.publishState(e, "")
	}
}

// apply handles one telemetry frame. Status values apply before the sample.
func (s *Session) apply(e *engine, seq *startSequence, f Frame) {
	if f.Mode != nil {
		e.mode(*f.Mode)
	}
	if f.Start != nil {
		v := *f.Start
		events := e.light(v)
		toggle, begin := seq.observe(v)
		if toggle {
			s.wb.toggleStart()
		}
		if begin {
			monitoring.Debugf("race: %s session started", s.opts.Mode)
			e.start(s.cfg.Clock.Now())
		}
		s.emit(events)
	}
	if f.Sample != nil {
		events, lapChanged, err := e.sample(*f.Sample)
		if err != nil {
			monitoring.Logf("race: dropping sample: %v", err)
			return
		}
		if lapChanged {
			s.wb.pushLap(e.lapCount)
		}
		s.emit(events)
	}
}

func (s *Session) emit(events []Event) {
	for _, ev := range events {
		if ev.Lane != nil {
			id := s.cfg.Identities.Lookup(*ev.Lane)
			ev.Driver = &id
		}
		monitoring.Debugf("race: event %s", ev.Kind)
		s.cfg.Publish(ev)
		if ev.Kind == EventAllDone && s.opts.StopFin {
			s.wb.toggleStart()
		}
	}
}

func (s *Session) publishState(e *engine, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == "" {
		state = s.snap.State
		switch {
		case state == StateDisconnected || state == StateStopped:
		case e.finished:
			state = StateFinished
		case e.started:
			state = StateRunning
		default:
			state = StateWaiting
		}
	}

	snap := Snapshot{
		Options:     s.opts,
		State:       state,
		Leaderboard: e.items,
		LapCount:    LapCount{Count: e.lapCount, Total: e.opts.Laps},
		Elapsed:     e.elapsed,
		Finished:    e.finished,
		AllFinished: e.allFinished,
		YellowFlag:  e.yellow,
		PitLane:     e.pitLane(),
		FuelMode:    e.fuelMode(),
		StartLight:  e.startLight,
	}
	if e.opts.Time > 0 {
		rem := e.remaining
		snap.Remaining = &rem
	}
	s.snap = snap
}

// Snapshot returns the latest published state with driver identities
// joined and the leaderboard arranged in the configured order.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	snap.Leaderboard = Arrange(snap.Leaderboard, s.cfg.Identities, s.cfg.Order())
	return snap
}

// Leaderboard returns the arranged leaderboard.
func (s *Session) Leaderboard() []LeaderboardItem {
	return s.Snapshot().Leaderboard
}

func (s *Session) do(fn func(*engine) []Event) error {
	cmd := command{fn: fn, reply: make(chan struct{})}
	select {
	case s.control <- cmd:
	case <-s.done:
		return ErrSessionStopped
	}
	select {
	case <-cmd.reply:
		return nil
	case <-s.done:
		return ErrSessionStopped
	}
}

// Cancel finishes the session early. Cars finish as they next cross the
// line.
func (s *Session) Cancel() error {
	return s.do(func(e *engine) []Event { return e.finish() })
}

// ToggleYellowFlag raises or clears the yellow flag.
func (s *Session) ToggleYellowFlag() error {
	return s.do(func(e *engine) []Event { return e.toggleYellow() })
}

// ToggleStart presses the start button on the control unit.
func (s *Session) ToggleStart() error {
	return s.do(func(*engine) []Event {
		s.wb.toggleStart()
		return nil
	})
}

// Close stops the session goroutine and its hardware writer and releases
// the telemetry subscription. It waits until both have exited, so no
// further writes reach the control unit once Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.wb.close()
		s.unit.Unsubscribe(s.feedID)
	})
}
