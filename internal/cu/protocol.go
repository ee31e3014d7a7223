package cu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/slotrace/rms/internal/race"
)

// ErrMalformedFrame is returned for lines that are not control unit frames.
var ErrMalformedFrame = errors.New("malformed control unit frame")

// The control unit reports one JSON object per line. Car frames carry a
// "car" field; status frames carry "start" and/or "mode":
//
//	{"car":2,"time":48211,"laps":12,"best":[3912,1201,1330,1381],"fuel":9,"pit":false}
//	{"start":3,"mode":5}
//
// A car frame without "time" has not crossed the timing line yet.
type wireFrame struct {
	Car      *int    `json:"car"`
	Time     *int64  `json:"time"`
	Laps     int     `json:"laps"`
	Best     []int64 `json:"best"`
	Fuel     *int    `json:"fuel"`
	Pit      bool    `json:"pit"`
	Finished bool    `json:"finished"`
	Start    *int    `json:"start"`
	Mode     *int    `json:"mode"`
}

// ParseFrame decodes one line of control unit output.
func ParseFrame(line string) (race.Frame, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return race.Frame{}, fmt.Errorf("%w: %q", ErrMalformedFrame, line)
	}
	var w wireFrame
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return race.Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var f race.Frame
	if w.Car != nil {
		if *w.Car < 0 || *w.Car >= race.MaxLanes {
			return race.Frame{}, fmt.Errorf("%w: car %d out of range", ErrMalformedFrame, *w.Car)
		}
		s := race.Sample{
			ID:       *w.Car,
			Laps:     w.Laps,
			Best:     w.Best,
			Fuel:     race.MaxFuel,
			Pit:      w.Pit,
			Finished: w.Finished,
		}
		if w.Time != nil {
			s.Time, s.Timed = *w.Time, true
		}
		if w.Fuel != nil {
			s.Fuel = *w.Fuel
		}
		f.Sample = &s
	}
	f.Start, f.Mode = w.Start, w.Mode
	if f.Sample == nil && f.Start == nil && f.Mode == nil {
		return race.Frame{}, fmt.Errorf("%w: no car or status fields", ErrMalformedFrame)
	}
	return f, nil
}

// encodeSample renders s as a car frame. It is the inverse of ParseFrame
// and is used by the demo control unit.
func encodeSample(s race.Sample) string {
	w := wireFrame{
		Car:      &s.ID,
		Laps:     s.Laps,
		Best:     s.Best,
		Fuel:     &s.Fuel,
		Pit:      s.Pit,
		Finished: s.Finished,
	}
	if s.Timed {
		w.Time = &s.Time
	}
	b, _ := json.Marshal(w)
	return string(b)
}

func encodeStatus(start, mode int) string {
	return fmt.Sprintf(`{"start":%d,"mode":%d}`, start, mode)
}

// Commands understood by the control unit.
const (
	cmdLap   = "LAP"
	cmdStart = "START"
	cmdSpeed = "SPEED"
	cmdBrake = "BRAKE"
	cmdFuel  = "FUEL"
)

func lapCommand(lap int) (string, error) {
	if lap < 0 {
		return "", fmt.Errorf("invalid lap %d", lap)
	}
	return fmt.Sprintf("%s %d", cmdLap, lap), nil
}

func levelCommand(cmd string, lane, level int) (string, error) {
	if lane < 0 || lane >= race.MaxLanes {
		return "", fmt.Errorf("invalid lane %d", lane)
	}
	if level < 0 || level > 15 {
		return "", fmt.Errorf("invalid %s level %d", strings.ToLower(cmd), level)
	}
	return fmt.Sprintf("%s %d %d", cmd, lane, level), nil
}
