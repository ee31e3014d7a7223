package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/slotrace/rms/internal/race"
)

const (
	keyOptions       = "options"
	keyDrivers       = "drivers"
	keyNotifications = "notifications"
)

// DriverSlots is the number of stored driver profiles.
const DriverSlots = 8

// DefaultColors are the driver colours of an empty profile list.
var DefaultColors = [DriverSlots]string{
	"#ff0000", "#00ff00", "#0000ff", "#ffff00",
	"#ff00ff", "#00ffff", "#ffffff", "#cccccc",
}

// defaultNotifications lists every announcement and whether it is enabled
// out of the box.
var defaultNotifications = map[string]bool{
	"bestlap":     true,
	"bests1":      false,
	"bests2":      false,
	"bests3":      false,
	"falsestart":  true,
	"finallap":    true,
	"finished":    true,
	"finished1st": true,
	"finished2nd": true,
	"finished3rd": true,
	"fivelaps":    true,
	"fuel0":       true,
	"fuel1":       true,
	"fuel2":       true,
	"greenflag":   true,
	"newleader":   true,
	"oneminute":   true,
	"pitenter":    false,
	"pitexit":     false,
	"timeout":     true,
	"yellowflag":  true,
}

// Options are the general application preferences.
type Options struct {
	CUMode     bool   `json:"cumode"`
	Debug      bool   `json:"debug"`
	FixedOrder bool   `json:"fixedorder"`
	Language   string `json:"language"`
	Speech     bool   `json:"speech"`
	Sectors    bool   `json:"sectors"`
	Voice      string `json:"voice"`
	Rate       int    `json:"rate"`
	Pitch      int    `json:"pitch"`
}

func DefaultOptions() Options {
	return Options{
		CUMode: true,
		Speech: true,
		Rate:   1000,
		Pitch:  1000,
	}
}

// Order returns the leaderboard order selected by FixedOrder.
func (o Options) Order() race.Order {
	if o.FixedOrder {
		return race.OrderNumber
	}
	return race.OrderPosition
}

// Notification is the user's preference for one announcement.
type Notification struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}

// NotificationKeys returns the known announcement keys, sorted.
func NotificationKeys() []string {
	return slices.Sorted(maps.Keys(defaultNotifications))
}

// DefaultNotifications returns the out of the box notification preferences.
func DefaultNotifications() map[string]Notification {
	out := make(map[string]Notification, len(defaultNotifications))
	for k, on := range defaultNotifications {
		out[k] = Notification{Enabled: on}
	}
	return out
}

// DefaultDrivers returns empty driver profiles with the default colours.
func DefaultDrivers() []race.Driver {
	out := make([]race.Driver, DriverSlots)
	for i := range out {
		out[i].Color = DefaultColors[i]
	}
	return out
}

// Options returns the stored options merged over the defaults.
func (s *Store) Options() (Options, error) {
	o := DefaultOptions()
	if err := s.get(keyOptions, &o); err != nil {
		return DefaultOptions(), err
	}
	return o, nil
}

func (s *Store) SetOptions(o Options) error {
	return s.put(keyOptions, o)
}

// Drivers returns all driver slots. Each stored profile is merged over the
// default for its slot, so a profile without a colour keeps the default one.
func (s *Store) Drivers() ([]race.Driver, error) {
	out := DefaultDrivers()
	var stored []json.RawMessage
	if err := s.get(keyDrivers, &stored); err != nil {
		return out, err
	}
	for i, raw := range stored {
		if i >= len(out) {
			break
		}
		d := out[i]
		if err := json.Unmarshal(raw, &d); err != nil {
			return DefaultDrivers(), fmt.Errorf("failed to decode driver %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// SetDrivers stores up to DriverSlots driver profiles.
func (s *Store) SetDrivers(drivers []race.Driver) error {
	if len(drivers) > DriverSlots {
		return fmt.Errorf("too many drivers: %d > %d", len(drivers), DriverSlots)
	}
	return s.put(keyDrivers, drivers)
}

// Notifications returns a preference for every known announcement. Stored
// entries for unknown keys are ignored.
func (s *Store) Notifications() (map[string]Notification, error) {
	out := DefaultNotifications()
	var stored map[string]json.RawMessage
	if err := s.get(keyNotifications, &stored); err != nil {
		return out, err
	}
	for k, raw := range stored {
		n, ok := out[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return DefaultNotifications(), fmt.Errorf("failed to decode notification %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func (s *Store) SetNotifications(n map[string]Notification) error {
	for k := range n {
		if _, ok := defaultNotifications[k]; !ok {
			return fmt.Errorf("unknown notification %q", k)
		}
	}
	return s.put(keyNotifications, n)
}

// RaceOptions returns the options for a session mode. Practice always uses
// the defaults; the other modes merge stored values over them.
func (s *Store) RaceOptions(mode race.Mode) (race.RaceOptions, error) {
	o := race.DefaultOptions(mode)
	if mode == race.Practice {
		return o, nil
	}
	if err := s.get(string(mode), &o); err != nil {
		return race.DefaultOptions(mode), err
	}
	o.Mode = mode
	return o, nil
}

// SetRaceOptions validates and stores the options for their mode. Practice
// options are not stored.
func (s *Store) SetRaceOptions(o race.RaceOptions) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Mode == race.Practice {
		return nil
	}
	return s.put(string(o.Mode), o)
}
