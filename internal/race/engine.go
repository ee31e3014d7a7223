package race

import (
	"fmt"
	"time"
)

// ModeMasks selects the control unit mode bits the session reports.
type ModeMasks struct {
	PitLane  int `json:"pitlane"`
	FuelMode int `json:"fuelmode"`
}

// DefaultModeMasks returns the masks used by stock control units.
func DefaultModeMasks() ModeMasks {
	return ModeMasks{PitLane: 0x03, FuelMode: 0x04}
}

// LapCount is the leader's current lap and the configured target.
type LapCount struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

// engine is the synchronous core of a session. Every method is called from
// the session goroutine only.
type engine struct {
	opts    RaceOptions
	masks   ModeMasks
	tracks  [MaxLanes]laneTrack
	deriver *Deriver
	ranker  *Ranker

	ranking []CarState
	items   []LeaderboardItem

	started     bool
	startedAt   time.Time
	elapsed     int64
	remaining   int64
	finished    bool
	allFinished bool
	yellow      bool
	lapCount    int
	cuMode      int
	startLight  int
}

func newEngine(opts RaceOptions, masks ModeMasks) *engine {
	e := &engine{
		opts:      opts,
		masks:     masks,
		deriver:   NewDeriver(opts),
		ranker:    NewRanker(opts.Mode),
		remaining: opts.Time,
	}
	// the flag starts out green; the first change to report is a yellow flag
	e.deriver.YellowFlag(false)
	e.deriver.LapCount(0, false)
	if opts.Time > 0 {
		e.deriver.Timer(opts.Time, false)
	}
	return e
}

func (e *engine) start(now time.Time) {
	if e.started {
		return
	}
	e.started = true
	e.startedAt = now
}

// sample applies one telemetry update. lapChanged reports a new lap count.
// Samples that arrive before the start are ignored.
func (e *engine) sample(s Sample) (events []Event, lapChanged bool, err error) {
	if s.ID < 0 || s.ID >= MaxLanes {
		return nil, false, fmt.Errorf("%w: lane %d out of range", ErrMalformedSample, s.ID)
	}
	if !e.started {
		return nil, false, nil
	}

	t := &e.tracks[s.ID]
	wasFinished := e.finished
	laps, _ := t.crossing(s, e.opts.MinLapTime)
	if e.opts.Laps > 0 && laps > e.opts.Laps {
		s.Finished = true
	}
	if wasFinished && t.known() && laps > t.curr.Laps {
		s.Finished = true
	}

	prev, curr, ok, err := t.push(s, e.opts.MinLapTime)
	if err != nil {
		return nil, false, err
	}
	if ok {
		events = append(events, e.deriver.Car(prev, curr)...)
	}
	if !e.finished && e.opts.Laps > 0 && curr.Laps > e.opts.Laps {
		e.finished = true
	}

	e.rerank()
	events = append(events, e.deriver.Ranking(e.ranking)...)

	count := 0
	for _, c := range e.ranking {
		count = max(count, c.Laps)
	}
	if count != e.lapCount {
		e.lapCount = count
		lapChanged = true
		events = append(events, e.deriver.LapCount(count, wasFinished)...)
	}

	events = append(events, e.updateAllFinished()...)
	return events, lapChanged, nil
}

func (e *engine) rerank() {
	cars := make([]CarState, 0, MaxLanes)
	for i := range e.tracks {
		if e.tracks[i].known() {
			cars = append(cars, e.tracks[i].curr.clone())
		}
	}
	e.ranking = Rank(cars, e.opts.Mode)
	e.items = e.ranker.Project(e.ranking)
}

// tick advances the session clock.
func (e *engine) tick(now time.Time) []Event {
	if !e.started {
		return nil
	}
	e.elapsed = now.Sub(e.startedAt).Milliseconds()
	if e.opts.Time <= 0 {
		return nil
	}
	e.remaining = max(e.opts.Time-e.elapsed, 0)

	events := e.deriver.Timer(e.remaining, e.finished)
	if e.remaining == 0 && !e.finished {
		e.finished = true
		events = append(events, e.updateAllFinished()...)
	}
	return events
}

// finish ends the session; cars finish as they next cross the line.
func (e *engine) finish() []Event {
	if e.finished {
		return nil
	}
	e.finished = true
	return e.updateAllFinished()
}

func (e *engine) updateAllFinished() []Event {
	e.allFinished = e.finished && e.allCarsFinished()
	return e.deriver.AllFinished(e.allFinished)
}

func (e *engine) allCarsFinished() bool {
	timed := 0
	for _, c := range e.ranking {
		if !c.Timed {
			continue
		}
		if !c.Finished {
			return false
		}
		timed++
	}
	return timed > 0
}

func (e *engine) toggleYellow() []Event {
	e.yellow = !e.yellow
	return e.deriver.YellowFlag(e.yellow)
}

func (e *engine) light(v int) []Event {
	e.startLight = v
	return e.deriver.StartLight(v)
}

func (e *engine) mode(v int) {
	e.cuMode = v
}

func (e *engine) pitLane() bool  { return e.cuMode&e.masks.PitLane != 0 }
func (e *engine) fuelMode() bool { return e.cuMode&e.masks.FuelMode != 0 }

// startSequence arms the control unit for qualifying and race sessions.
// The first start light value decides whether the start button has to be
// pressed; the session begins when the lights next go from on to off.
type startSequence struct {
	seen bool
	prev int
	done bool
}

func (q *startSequence) observe(v int) (toggle, begin bool) {
	if !q.seen {
		q.seen = true
		q.prev = v
		return v == 0, false
	}
	if !q.done && q.prev != 0 && v == 0 {
		q.done = true
		begin = true
	}
	q.prev = v
	return false, begin
}
