package tuning

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/timeutil"
)

// Lanes is the number of controllers that can be tuned.
const Lanes = 6

// DefaultDelay is how long the tuner waits for further changes before
// writing to the control unit.
const DefaultDelay = 400 * time.Millisecond

// Writer is the part of a control unit the tuner writes to.
type Writer interface {
	SetSpeed(lane, level int) error
	SetBrake(lane, level int) error
	SetFuel(lane, level int) error
}

// Model holds the levels last chosen for one lane. Nil means unset.
type Model struct {
	ID    int  `json:"id"`
	Speed *int `json:"speed"`
	Brake *int `json:"brake"`
	Fuel  *int `json:"fuel"`
}

func (m *Model) level(ch Channel) *int {
	switch ch {
	case Speed:
		return m.Speed
	case Brake:
		return m.Brake
	default:
		return m.Fuel
	}
}

func (m *Model) set(ch Channel, level *int) {
	switch ch {
	case Speed:
		m.Speed = level
	case Brake:
		m.Brake = level
	default:
		m.Fuel = level
	}
}

type key struct {
	ch   Channel
	lane int
}

// Tuner keeps per-lane levels and writes changes to the control unit once
// they have settled for the configured delay.
type Tuner struct {
	writer Writer
	clock  timeutil.Clock
	delay  time.Duration

	mu      sync.Mutex
	models  [Lanes]Model
	pending map[key]bool
	cancel  chan struct{}
	timer   timeutil.Timer
	closed  chan struct{}
}

// New returns a Tuner writing to w.
func New(w Writer, clock timeutil.Clock, delay time.Duration) *Tuner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	t := &Tuner{
		writer:  w,
		clock:   clock,
		delay:   delay,
		pending: make(map[key]bool),
		closed:  make(chan struct{}),
	}
	for i := range t.models {
		t.models[i].ID = i
	}
	return t
}

// Models returns a copy of the per-lane levels.
func (t *Tuner) Models() []Model {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Model, Lanes)
	for i, m := range t.models {
		out[i] = Model{ID: m.ID, Speed: copyInt(m.Speed), Brake: copyInt(m.Brake), Fuel: copyInt(m.Fuel)}
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Update sets ch to level for lane, or for every lane when lane is nil,
// and schedules the write.
func (t *Tuner) Update(ch Channel, lane *int, level int) error {
	if _, err := ParseChannel(string(ch)); err != nil {
		return err
	}
	if level < 0 || level > MaxLevel {
		return fmt.Errorf("%s level %d out of range 0-%d", ch, level, MaxLevel)
	}
	if lane != nil && (*lane < 0 || *lane >= Lanes) {
		return fmt.Errorf("lane %d out of range 0-%d", *lane, Lanes-1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.models {
		if lane != nil && i != *lane {
			continue
		}
		v := level
		t.models[i].set(ch, &v)
		t.pending[key{ch, i}] = true
	}
	monitoring.Debugf("tuning: %s set to %d for lane %v", ch, level, lane)
	t.schedule()
	return nil
}

// UpdateSlider is Update with a slider position instead of a level.
func (t *Tuner) UpdateSlider(ch Channel, lane *int, pos int) error {
	level, err := LevelForSlider(ch, pos)
	if err != nil {
		return err
	}
	return t.Update(ch, lane, level)
}

// schedule restarts the debounce timer. Callers hold t.mu.
func (t *Tuner) schedule() {
	if t.cancel != nil {
		close(t.cancel)
		t.timer.Stop()
	}
	cancel := make(chan struct{})
	timer := t.clock.NewTimer(t.delay)
	t.cancel, t.timer = cancel, timer

	go func() {
		select {
		case <-timer.C():
			t.flush(cancel)
		case <-cancel:
		case <-t.closed:
		}
	}()
}

func (t *Tuner) flush(cancel chan struct{}) {
	t.mu.Lock()
	if t.cancel != cancel {
		t.mu.Unlock()
		return
	}
	pending := t.pending
	t.pending = make(map[key]bool)
	t.cancel, t.timer = nil, nil
	models := t.models
	t.mu.Unlock()

	for _, ch := range Channels {
		for lane := range models {
			if !pending[key{ch, lane}] {
				continue
			}
			if p := models[lane].level(ch); p != nil {
				if err := t.write(ch, lane, *p); err != nil {
					monitoring.Logf("tuning: %v", err)
				}
			}
		}
	}
}

func (t *Tuner) write(ch Channel, lane, level int) error {
	var err error
	switch ch {
	case Speed:
		err = t.writer.SetSpeed(lane, level)
	case Brake:
		err = t.writer.SetBrake(lane, level)
	case Fuel:
		err = t.writer.SetFuel(lane, level)
	}
	if err != nil {
		return fmt.Errorf("writing %s %d for lane %d: %w", ch, level, lane, err)
	}
	return nil
}

// ApplyAll writes every set level immediately.
func (t *Tuner) ApplyAll() error {
	models := t.Models()
	var errs []error
	for _, m := range models {
		for _, ch := range Channels {
			if p := m.level(ch); p != nil {
				errs = append(errs, t.write(ch, m.ID, *p))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadCarDefaults copies the car profile of driver into lane and schedules
// the writes. Drivers without a car leave the lane unchanged.
func (t *Tuner) LoadCarDefaults(lane int, driver race.Driver) error {
	if driver.Car == nil {
		return nil
	}
	for _, ch := range Channels {
		var p *int
		switch ch {
		case Speed:
			p = driver.Car.Speed
		case Brake:
			p = driver.Car.Brake
		case Fuel:
			p = driver.Car.Fuel
		}
		if p == nil {
			continue
		}
		if err := t.Update(ch, &lane, *p); err != nil {
			return err
		}
	}
	return nil
}

// SaveCarDefaults returns drivers with the levels of lane stored on the
// car of the driver in that lane. ok is false if that driver has no car.
func (t *Tuner) SaveCarDefaults(lane int, drivers []race.Driver) (out []race.Driver, ok bool) {
	out = append([]race.Driver(nil), drivers...)
	if lane < 0 || lane >= Lanes || lane >= len(out) || out[lane].Car == nil {
		return out, false
	}
	m := t.Models()[lane]
	car := *out[lane].Car
	car.Speed, car.Brake, car.Fuel = m.Speed, m.Brake, m.Fuel
	out[lane].Car = &car
	return out, true
}

// Close drops pending writes and stops the debounce goroutine.
func (t *Tuner) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	if t.timer != nil {
		t.timer.Stop()
	}
}
