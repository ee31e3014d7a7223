package race

import (
	"strconv"
)

// EventKind names a race event. The values double as notification
// preference keys.
type EventKind string

const (
	EventBestLap     EventKind = "bestlap"
	EventFalseStart  EventKind = "falsestart"
	EventFinalLap    EventKind = "finallap"
	EventFinished    EventKind = "finished"
	EventFinished1st EventKind = "finished1st"
	EventFinished2nd EventKind = "finished2nd"
	EventFinished3rd EventKind = "finished3rd"
	EventFiveLaps    EventKind = "fivelaps"
	EventGreenFlag   EventKind = "greenflag"
	EventNewLeader   EventKind = "newleader"
	EventOneMinute   EventKind = "oneminute"
	EventPitEnter    EventKind = "pitenter"
	EventPitExit     EventKind = "pitexit"
	EventTimeout     EventKind = "timeout"
	EventYellowFlag  EventKind = "yellowflag"
	EventAllDone     EventKind = "alldone"
)

// BestKind returns the best-time event for a timing segment. Segment 0 is
// the full lap.
func BestKind(segment int) EventKind {
	if segment == 0 {
		return EventBestLap
	}
	return EventKind("bests" + strconv.Itoa(segment))
}

// FuelKind returns the low-fuel event for level.
func FuelKind(level int) EventKind {
	return EventKind("fuel" + strconv.Itoa(level))
}

// Event is a derived race event. Lane and Driver are nil for session wide
// events.
type Event struct {
	Kind   EventKind `json:"kind"`
	Lane   *int      `json:"lane,omitempty"`
	Driver *Identity `json:"driver,omitempty"`
}

func laneEvent(kind EventKind, lane int) Event {
	return Event{Kind: kind, Lane: &lane}
}

func sessionEvent(kind EventKind) Event {
	return Event{Kind: kind}
}

// Deriver turns state transitions into events. It keeps the history each
// rule needs and is not safe for concurrent use; a session feeds it from a
// single goroutine.
type Deriver struct {
	opts RaceOptions

	best []int64

	prevFinish []finishEntry
	haveFinish bool

	prevLeader int
	haveLeader bool

	prevTimerFinished bool
	haveTimer         bool

	yellowLast   bool
	yellowSeen   bool
	yellowActive bool

	startLast int
	startSeen bool

	oneMinuteFired bool
	timeoutFired   bool
	allDoneFired   bool
	fiveLapsFired  bool
	finalLapFired  bool
}

type finishEntry struct {
	id       int
	finished bool
}

// NewDeriver returns a Deriver for one session.
func NewDeriver(opts RaceOptions) *Deriver {
	return &Deriver{opts: opts}
}

// Car derives per-lane events from two consecutive states of the same lane.
func (d *Deriver) Car(prev, curr CarState) []Event {
	var events []Event
	for i, t := range curr.Best {
		if i >= len(d.best) {
			d.best = append(d.best, make([]int64, i+1-len(d.best))...)
		}
		if t > 0 && (d.best[i] == 0 || t < d.best[i]) {
			d.best[i] = t
			if curr.Laps >= 3 {
				events = append(events, laneEvent(BestKind(i), curr.ID))
			}
		}
	}
	if !curr.Finished && curr.Timed && curr.Time != 0 {
		if curr.Fuel < prev.Fuel {
			events = append(events, laneEvent(FuelKind(curr.Fuel), curr.ID))
		}
		if curr.Pit && !prev.Pit {
			events = append(events, laneEvent(EventPitEnter, curr.ID))
		}
		if !curr.Pit && prev.Pit {
			events = append(events, laneEvent(EventPitExit, curr.ID))
		}
	}
	return events
}

// Ranking derives finishing and leader changes from consecutive rankings.
// Only race sessions produce these events.
func (d *Deriver) Ranking(ranking []CarState) []Event {
	if d.opts.Mode != Race || len(ranking) == 0 {
		return nil
	}
	var events []Event

	leader := ranking[0].ID
	if d.haveLeader && leader != d.prevLeader {
		events = append(events, laneEvent(EventNewLeader, leader))
	}
	d.prevLeader, d.haveLeader = leader, true

	curr := make([]finishEntry, len(ranking))
	for i, c := range ranking {
		curr[i] = finishEntry{id: c.ID, finished: c.Finished}
	}
	prev, ok := d.prevFinish, d.haveFinish
	d.prevFinish, d.haveFinish = curr, true
	if !ok || !curr[0].finished {
		return events
	}

	finishedAt := func(entries []finishEntry, i int) bool {
		return i < len(entries) && entries[i].finished
	}
	if !prev[0].finished {
		if len(curr) > 1 {
			events = append(events, laneEvent(EventFinished1st, curr[0].id))
		} else {
			events = append(events, sessionEvent(EventFinished))
		}
	}
	if len(curr) >= 2 && !finishedAt(prev, 1) && curr[1].finished {
		events = append(events, laneEvent(EventFinished2nd, curr[1].id))
	}
	if len(curr) >= 3 && !finishedAt(prev, 2) && curr[2].finished {
		events = append(events, laneEvent(EventFinished3rd, curr[2].id))
	}
	return events
}

// Timer derives time-limit events. remaining is the time left in
// milliseconds and finished is the session state before this update.
func (d *Deriver) Timer(remaining int64, finished bool) []Event {
	var events []Event
	if !d.oneMinuteFired && d.opts.Time >= 120_000 && remaining <= 60_000 && !finished {
		d.oneMinuteFired = true
		events = append(events, sessionEvent(EventOneMinute))
	}
	if !d.timeoutFired && d.haveTimer && remaining == 0 && !d.prevTimerFinished {
		d.timeoutFired = true
		events = append(events, sessionEvent(EventTimeout))
	}
	d.prevTimerFinished, d.haveTimer = finished, true
	return events
}

// YellowFlag derives flag changes. Repeated values are ignored and nothing
// is reported until the flag has been raised once.
func (d *Deriver) YellowFlag(on bool) []Event {
	if d.yellowSeen && on == d.yellowLast {
		return nil
	}
	d.yellowLast, d.yellowSeen = on, true
	if !d.yellowActive {
		if !on {
			return nil
		}
		d.yellowActive = true
	}
	if on {
		return []Event{sessionEvent(EventYellowFlag)}
	}
	return []Event{sessionEvent(EventGreenFlag)}
}

// AllFinished reports alldone the first time every car has finished.
func (d *Deriver) AllFinished(done bool) []Event {
	if !done || d.allDoneFired {
		return nil
	}
	d.allDoneFired = true
	return []Event{sessionEvent(EventAllDone)}
}

// LapCount derives lap countdown events. count is the current lap of the
// leader and finished the session state before the lap was counted.
func (d *Deriver) LapCount(count int, finished bool) []Event {
	var events []Event
	laps := d.opts.Laps
	if !d.fiveLapsFired && laps >= 10 && count == laps-4 && !finished {
		d.fiveLapsFired = true
		events = append(events, sessionEvent(EventFiveLaps))
	}
	if !d.finalLapFired && laps > 0 && count == laps && !finished {
		d.finalLapFired = true
		events = append(events, sessionEvent(EventFinalLap))
	}
	return events
}

// FalseStartLight is the start light value a control unit reports after a
// car moved before the lights went out.
const FalseStartLight = 9

// StartLight reports a false start each time the light changes to
// FalseStartLight.
func (d *Deriver) StartLight(value int) []Event {
	if d.startSeen && value == d.startLast {
		return nil
	}
	d.startLast, d.startSeen = value, true
	if value == FalseStartLight {
		return []Event{sessionEvent(EventFalseStart)}
	}
	return nil
}
