// Package tuning maps between the 0-10 slider positions shown to users and
// the 0-15 levels a control unit stores for speed, brake and fuel, and
// writes car settings to the control unit.
package tuning

import (
	"fmt"
)

// Channel is a tunable car setting.
type Channel string

const (
	Speed Channel = "speed"
	Brake Channel = "brake"
	Fuel  Channel = "fuel"
)

// Channels lists every tunable setting in write order.
var Channels = []Channel{Speed, Brake, Fuel}

// MaxLevel is the highest level a control unit accepts.
const MaxLevel = 15

// MaxSlider is the highest slider position.
const MaxSlider = 10

// slider position to control unit level
var levels = map[Channel][MaxSlider + 1]int{
	Speed: {0, 1, 2, 3, 5, 6, 7, 9, 11, 13, 15},
	Brake: {0, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	Fuel:  {0, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
}

// control unit level to displayed value
var values = map[Channel][MaxLevel + 1]int{
	Speed: {1, 1, 2, 3, 3, 4, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10},
	Brake: {1, 1, 1, 1, 1, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	Fuel:  {1, 1, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 10, 10, 10},
}

// ParseChannel returns the Channel named s.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case Speed, Brake, Fuel:
		return c, nil
	}
	return "", fmt.Errorf("unknown tuning channel %q", s)
}

// LevelForSlider returns the control unit level for a slider position.
func LevelForSlider(ch Channel, pos int) (int, error) {
	t, ok := levels[ch]
	if !ok {
		return 0, fmt.Errorf("unknown tuning channel %q", ch)
	}
	if pos < 0 || pos > MaxSlider {
		return 0, fmt.Errorf("%s slider position %d out of range 0-%d", ch, pos, MaxSlider)
	}
	return t[pos], nil
}

// ValueForLevel returns the displayed value for a control unit level.
func ValueForLevel(ch Channel, level int) (int, error) {
	t, ok := values[ch]
	if !ok {
		return 0, fmt.Errorf("unknown tuning channel %q", ch)
	}
	if level < 0 || level > MaxLevel {
		return 0, fmt.Errorf("%s level %d out of range 0-%d", ch, level, MaxLevel)
	}
	return t[level], nil
}
