package race

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how a session is ranked and which events it produces.
type Mode string

const (
	Practice   Mode = "practice"
	Qualifying Mode = "qualifying"
	Race       Mode = "race"
)

// ParseMode maps s onto a Mode. Unknown values fall back to Practice.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Qualifying:
		return Qualifying
	case Race:
		return Race
	default:
		return Practice
	}
}

// DefaultMinLapTime is the shortest lap in milliseconds that counts as a
// real crossing of the timing line.
const DefaultMinLapTime = 500

// RaceOptions describes one session. Laps and Time of zero mean unlimited.
type RaceOptions struct {
	Mode       Mode  `json:"mode"`
	Laps       int   `json:"laps"`
	Time       int64 `json:"time"`
	Pause      bool  `json:"pause"`
	SlotMode   bool  `json:"slotmode"`
	StopFin    bool  `json:"stopfin"`
	Drivers    *int  `json:"drivers,omitempty"`
	Auto       bool  `json:"auto"`
	Pace       bool  `json:"pace"`
	MinLapTime int64 `json:"minLapTime"`
}

// DefaultOptions returns the options a fresh installation uses for mode.
func DefaultOptions(mode Mode) RaceOptions {
	o := RaceOptions{Mode: mode, MinLapTime: DefaultMinLapTime}
	switch mode {
	case Practice:
		o.Auto = true
		o.Pace = true
	case Qualifying:
		o.Time = 180_000
	case Race:
		o.Laps = 30
	}
	return o
}

// Validate reports whether the options can drive a session.
func (o RaceOptions) Validate() error {
	var errs []error
	switch o.Mode {
	case Practice, Qualifying, Race:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", o.Mode))
	}
	if o.Laps < 0 {
		errs = append(errs, fmt.Errorf("laps must be non-negative, got %d", o.Laps))
	}
	if o.Time < 0 {
		errs = append(errs, fmt.Errorf("time must be non-negative, got %d", o.Time))
	}
	if o.Laps > 0 && o.Time > 0 {
		errs = append(errs, errors.New("laps and time cannot both be set"))
	}
	if o.MinLapTime < 0 {
		errs = append(errs, fmt.Errorf("minLapTime must be non-negative, got %d", o.MinLapTime))
	}
	if o.Drivers != nil && (*o.Drivers < 1 || *o.Drivers > MaxLanes) {
		errs = append(errs, fmt.Errorf("drivers must be between 1 and %d, got %d", MaxLanes, *o.Drivers))
	}
	return errors.Join(errs...)
}
