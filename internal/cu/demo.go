package cu

import (
	"bufio"
	"bytes"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/timeutil"
)

// DemoTick is the simulation step of the demo control unit.
const DemoTick = 100 * time.Millisecond

// demoMode reports a pit lane and fuel mode.
const demoMode = 0x05

// DemoPort is a Port that simulates a control unit with a few cars driving
// laps. It is used when no hardware is attached.
type DemoPort struct {
	rng *rand.Rand

	pr *io.PipeReader
	pw *io.PipeWriter

	mu        sync.Mutex
	cars      []demoCar
	light     int
	countdown bool
	running   bool
	ticks     int
	elapsed   time.Duration
	lap       int

	done      chan struct{}
	closeOnce sync.Once
}

type demoCar struct {
	id    int
	base  time.Duration
	next  time.Duration
	last  time.Duration
	laps  int
	timed bool
	best  int64
	fuel  int
	pit   bool
	speed int
	stint int
}

// NewDemoPort starts a simulated control unit with the given number of cars.
// The same seed produces the same race.
func NewDemoPort(cars int, clock timeutil.Clock, seed uint64) *DemoPort {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	cars = min(max(cars, 1), race.MaxLanes)
	pr, pw := io.Pipe()
	d := &DemoPort{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		pr:      pr,
		pw:      pw,
		cars:    make([]demoCar, cars),
		running: true,
		done:    make(chan struct{}),
	}
	for i := range d.cars {
		d.cars[i] = demoCar{id: i, speed: 15, base: time.Duration(3800+d.rng.IntN(900)) * time.Millisecond}
	}
	d.resetLocked()

	ticker := clock.NewTicker(DemoTick)
	go d.run(ticker)
	return d
}

// NewDemoUnit returns a Unit driven by a DemoPort.
func NewDemoUnit(cars int, clock timeutil.Clock, seed uint64) *Unit[*DemoPort] {
	return NewUnit(NewDemoPort(cars, clock, seed))
}

func (d *DemoPort) resetLocked() {
	d.elapsed = 0
	d.ticks = 0
	for i := range d.cars {
		c := &d.cars[i]
		c.laps, c.timed, c.best, c.last = 0, false, 0, 0
		c.fuel, c.pit, c.stint = race.MaxFuel, false, 0
		// the grid is just behind the line
		c.next = time.Duration(200+100*i) * time.Millisecond
	}
}

func (d *DemoPort) run(ticker timeutil.Ticker) {
	defer ticker.Stop()
	if !d.emit(d.snapshot()) {
		return
	}
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C():
			if !d.emit(d.step()) {
				return
			}
		}
	}
}

// emit blocks until the lines are read or the port closes.
func (d *DemoPort) emit(lines []string) bool {
	for _, l := range lines {
		if _, err := io.WriteString(d.pw, l+"\n"); err != nil {
			return false
		}
	}
	return true
}

// snapshot reports every car and the status frame.
func (d *DemoPort) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	lines := []string{encodeStatus(d.light, demoMode)}
	for i := range d.cars {
		lines = append(lines, encodeSample(d.cars[i].sample()))
	}
	return lines
}

func (c *demoCar) sample() race.Sample {
	s := race.Sample{ID: c.id, Laps: c.laps, Fuel: c.fuel, Pit: c.pit}
	if c.timed {
		s.Time, s.Timed = c.last.Milliseconds(), true
	}
	if c.best > 0 {
		s.Best = []int64{c.best}
	}
	return s
}

func (d *DemoPort) step() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks++

	var lines []string
	if d.countdown {
		if d.ticks%10 == 0 {
			if d.light < 5 {
				d.light++
			} else {
				d.light = 0
				d.countdown = false
				d.running = true
				d.resetLocked()
				for i := range d.cars {
					lines = append(lines, encodeSample(d.cars[i].sample()))
				}
			}
			lines = append(lines, encodeStatus(d.light, demoMode))
		}
		return lines
	}
	if !d.running {
		return nil
	}

	d.elapsed += DemoTick
	for i := range d.cars {
		c := &d.cars[i]
		if d.elapsed < c.next {
			continue
		}
		lines = append(lines, encodeSample(d.cross(c)))
	}
	if d.ticks%10 == 0 {
		lines = append(lines, encodeStatus(d.light, demoMode))
	}
	return lines
}

func (d *DemoPort) cross(c *demoCar) race.Sample {
	if c.timed {
		lapTime := (d.elapsed - c.last).Milliseconds()
		if c.best == 0 || lapTime < c.best {
			c.best = lapTime
		}
	}
	c.laps++
	c.timed = true
	c.last = d.elapsed

	if c.pit {
		c.pit = false
		c.fuel = race.MaxFuel
	} else {
		c.stint++
		if c.stint%2 == 0 && c.fuel > 0 {
			c.fuel--
		}
		if c.fuel <= 2 {
			c.pit = true
		}
	}

	// slower cars at lower speed settings, plus some jitter
	lap := c.base + time.Duration(15-c.speed)*120*time.Millisecond
	lap += time.Duration(d.rng.IntN(600)) * time.Millisecond
	if c.pit {
		lap += 2 * time.Second
	}
	c.next = d.elapsed + lap
	return c.sample()
}

// Read returns simulated control unit output.
func (d *DemoPort) Read(p []byte) (int, error) {
	return d.pr.Read(p)
}

// Write accepts control unit commands.
func (d *DemoPort) Write(p []byte) (int, error) {
	select {
	case <-d.done:
		return 0, io.ErrClosedPipe
	default:
	}
	scan := bufio.NewScanner(bytes.NewReader(p))
	for scan.Scan() {
		d.command(strings.Fields(scan.Text()))
	}
	return len(p), nil
}

func (d *DemoPort) command(f []string) {
	if len(f) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch f[0] {
	case cmdStart:
		if !d.countdown {
			d.countdown = true
			d.running = false
			d.light = 0
			d.ticks = 0
		}
	case cmdLap:
		if len(f) == 2 {
			if n, err := strconv.Atoi(f[1]); err == nil {
				d.lap = n
			}
		}
	case cmdSpeed:
		if len(f) == 3 {
			lane, err1 := strconv.Atoi(f[1])
			level, err2 := strconv.Atoi(f[2])
			if err1 == nil && err2 == nil && lane >= 0 && lane < len(d.cars) {
				d.cars[lane].speed = level
			}
		}
	case cmdBrake, cmdFuel:
	default:
		monitoring.Debugf("cu: demo ignoring command %q", strings.Join(f, " "))
	}
}

// Lap returns the last lap counter value written to the demo unit.
func (d *DemoPort) Lap() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lap
}

// Close stops the simulation.
func (d *DemoPort) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.pw.CloseWithError(io.EOF)
		d.pr.Close()
	})
	return nil
}
