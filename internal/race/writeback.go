package race

import (
	"github.com/slotrace/rms/internal/monitoring"
)

// writeBack serialises hardware writes for one session so derivation never
// waits on the control unit. Lap counter writes coalesce to the latest
// value.
type writeBack struct {
	unit    ControlUnit
	lap     chan int
	toggles chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func newWriteBack(unit ControlUnit) *writeBack {
	w := &writeBack{
		unit:    unit,
		lap:     make(chan int, 1),
		toggles: make(chan struct{}, 4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writeBack) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case n := <-w.lap:
			if err := w.unit.SetLap(n); err != nil {
				monitoring.Logf("race: setting lap counter to %d: %v", n, err)
			}
		case <-w.toggles:
			if err := w.unit.ToggleStart(); err != nil {
				monitoring.Logf("race: toggling start: %v", err)
			}
		}
	}
}

func (w *writeBack) pushLap(n int) {
	for {
		select {
		case w.lap <- n:
			return
		default:
		}
		select {
		case <-w.lap:
		default:
		}
	}
}

func (w *writeBack) toggleStart() {
	select {
	case w.toggles <- struct{}{}:
	default:
		monitoring.Logf("race: start toggle dropped, %d already pending", cap(w.toggles))
	}
}

func (w *writeBack) close() {
	close(w.stop)
	<-w.done
}
