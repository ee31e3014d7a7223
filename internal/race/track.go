package race

import (
	"errors"
	"fmt"

	"github.com/slotrace/rms/internal/monitoring"
)

const (
	// MaxLanes is the number of controller ids a control unit reports.
	MaxLanes = 8
	// MaxFuel is the highest fuel level a control unit reports.
	MaxFuel = 15
)

// ErrMalformedSample is returned for telemetry that cannot be applied to a lane.
var ErrMalformedSample = errors.New("malformed sample")

// Sample is one telemetry update for a single lane.
//
// Laps counts timing-line crossings since the start, so it is the lap the car
// is currently driving. Time is the cumulative session time of the last
// crossing in milliseconds and is only meaningful when Timed is set.
type Sample struct {
	ID       int     `json:"id"`
	Time     int64   `json:"time"`
	Timed    bool    `json:"timed"`
	Laps     int     `json:"laps"`
	Best     []int64 `json:"best,omitempty"`
	Fuel     int     `json:"fuel"`
	Pit      bool    `json:"pit"`
	Finished bool    `json:"finished"`
}

// CarState is the derived state of one lane.
type CarState struct {
	ID       int     `json:"id"`
	Time     int64   `json:"time"`
	Timed    bool    `json:"timed"`
	Laps     int     `json:"laps"`
	Best     []int64 `json:"best,omitempty"`
	Fuel     int     `json:"fuel"`
	Pit      bool    `json:"pit"`
	Finished bool    `json:"finished"`
	// Times holds the cumulative time of every counted crossing.
	Times []int64 `json:"times,omitempty"`
}

// BestLap returns the best full-lap time, if any.
func (c CarState) BestLap() (int64, bool) {
	if len(c.Best) == 0 || c.Best[0] <= 0 {
		return 0, false
	}
	return c.Best[0], true
}

func (c CarState) clone() CarState {
	c.Best = append([]int64(nil), c.Best...)
	c.Times = append([]int64(nil), c.Times...)
	return c
}

// laneTrack keeps the last two states of one lane.
type laneTrack struct {
	prev, curr CarState
	seen       int
	// offset is the number of spurious crossings the control unit counted
	// but the lane did not.
	offset int
}

func (t *laneTrack) known() bool { return t.seen > 0 }

// crossing returns the lap count s is recorded with. A crossing less than
// minLapTime after the previous one is spurious and keeps the previous count.
func (t *laneTrack) crossing(s Sample, minLapTime int64) (laps int, spurious bool) {
	laps = s.Laps - t.offset
	if !t.known() {
		return laps, false
	}
	last := t.curr
	if laps > last.Laps && last.Timed && s.Timed && minLapTime > 0 && s.Time-last.Time < minLapTime {
		return last.Laps, true
	}
	return laps, false
}

// push validates s against the lane history and records it. The pair
// (prev, curr) is only meaningful when ok is true, i.e. from the second
// accepted sample onwards.
//
// A spurious crossing is not counted: the lane keeps its lap count and
// crossing time while pit, fuel, best and finished still apply.
func (t *laneTrack) push(s Sample, minLapTime int64) (prev, curr CarState, ok bool, err error) {
	if s.Laps < 0 {
		return prev, curr, false, fmt.Errorf("%w: lane %d reports %d laps", ErrMalformedSample, s.ID, s.Laps)
	}
	if s.Timed && s.Time < 0 {
		return prev, curr, false, fmt.Errorf("%w: lane %d reports negative time", ErrMalformedSample, s.ID)
	}

	laps, spurious := t.crossing(s, minLapTime)
	next := CarState{
		ID:       s.ID,
		Time:     s.Time,
		Timed:    s.Timed,
		Laps:     laps,
		Fuel:     clampFuel(s.Fuel),
		Pit:      s.Pit,
		Finished: s.Finished,
	}

	if t.known() {
		last := t.curr
		if laps < last.Laps {
			return prev, curr, false, fmt.Errorf("%w: lane %d laps went from %d to %d", ErrMalformedSample, s.ID, last.Laps, laps)
		}
		if spurious {
			t.offset += s.Laps - t.offset - last.Laps
			monitoring.Logf("race: lane %d lap of %dms is below the minimum of %dms, not counted", s.ID, s.Time-last.Time, minLapTime)
		}
		if laps == last.Laps && last.Timed {
			next.Time = last.Time
		}
		next.Finished = next.Finished || last.Finished
		next.Best = mergeBest(last.Best, s.Best)
		next.Times = last.Times
		if laps > last.Laps && s.Timed {
			next.Times = append(append([]int64(nil), last.Times...), s.Time)
		}
		t.prev = last
	} else {
		next.Best = mergeBest(nil, s.Best)
		if s.Timed && s.Laps > 0 {
			next.Times = []int64{s.Time}
		}
	}

	t.curr = next
	t.seen++
	return t.prev.clone(), t.curr.clone(), t.seen > 1, nil
}

func clampFuel(f int) int {
	switch {
	case f < 0:
		return 0
	case f > MaxFuel:
		return MaxFuel
	default:
		return f
	}
}

// mergeBest keeps the smallest non-zero time per segment.
func mergeBest(old, reported []int64) []int64 {
	n := max(len(old), len(reported))
	if n == 0 {
		return nil
	}
	out := make([]int64, n)
	for i := range out {
		var a, b int64
		if i < len(old) {
			a = old[i]
		}
		if i < len(reported) {
			b = reported[i]
		}
		switch {
		case a <= 0:
			out[i] = max(b, 0)
		case b <= 0:
			out[i] = a
		default:
			out[i] = min(a, b)
		}
	}
	return out
}
