// Package cu connects to a slot car race control unit. A Unit reads frames
// from a single port, fans decoded telemetry out to race sessions and
// serialises commands written back to the device.
package cu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
)

var (
	ErrWriteFailed = errors.New("failed to write to control unit")
	ErrClosed      = errors.New("control unit closed")
)

// FeedBuffer is the number of frames buffered per subscriber.
const FeedBuffer = 64

// Unit multiplexes one control unit port between a telemetry subscriber per
// session and any number of raw line taps.
type Unit[T Port] struct {
	port T

	mu        sync.Mutex
	feeds     map[string]*race.Feed
	taps      map[string]chan string
	lastStart *int
	lastMode  *int
	closing   bool
	// stopped is set once Monitor has returned
	stopped bool

	commandMu sync.Mutex
}

// NewUnit creates a Unit reading from and writing to port.
func NewUnit[T Port](port T) *Unit[T] {
	return &Unit[T]{
		port:  port,
		feeds: make(map[string]*race.Feed),
		taps:  make(map[string]chan string),
	}
}

// Subscribe returns a telemetry feed. The feed starts with the last known
// start light and mode values so a new session sees the current state.
func (u *Unit[T]) Subscribe() (string, *race.Feed) {
	id := uuid.NewString()
	f := race.NewFeed(FeedBuffer)

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closing || u.stopped {
		closeFeed(f)
		return id, f
	}
	if u.lastStart != nil || u.lastMode != nil {
		f.Frames <- race.Frame{Start: copyInt(u.lastStart), Mode: copyInt(u.lastMode)}
	}
	u.feeds[id] = f
	return id, f
}

// Unsubscribe closes and removes a feed.
func (u *Unit[T]) Unsubscribe(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if f, ok := u.feeds[id]; ok {
		closeFeed(f)
		delete(u.feeds, id)
	}
}

// Tap returns a channel receiving every raw line read from the port.
func (u *Unit[T]) Tap() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, FeedBuffer)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closing || u.stopped {
		close(ch)
		return id, ch
	}
	u.taps[id] = ch
	return id, ch
}

// Untap removes a raw line tap.
func (u *Unit[T]) Untap(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if ch, ok := u.taps[id]; ok {
		close(ch)
		delete(u.taps, id)
	}
}

func closeFeed(f *race.Feed) {
	close(f.Frames)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SendCommand writes one command line to the port.
func (u *Unit[T]) SendCommand(command string) error {
	u.mu.Lock()
	closing := u.closing
	u.mu.Unlock()
	if closing {
		return ErrClosed
	}

	u.commandMu.Lock()
	defer u.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := u.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// SetLap shows lap on the control unit lap counter.
func (u *Unit[T]) SetLap(lap int) error {
	cmd, err := lapCommand(lap)
	if err != nil {
		return err
	}
	return u.SendCommand(cmd)
}

// ToggleStart presses the start button.
func (u *Unit[T]) ToggleStart() error {
	return u.SendCommand(cmdStart)
}

func (u *Unit[T]) SetSpeed(lane, level int) error { return u.sendLevel(cmdSpeed, lane, level) }
func (u *Unit[T]) SetBrake(lane, level int) error { return u.sendLevel(cmdBrake, lane, level) }
func (u *Unit[T]) SetFuel(lane, level int) error  { return u.sendLevel(cmdFuel, lane, level) }

func (u *Unit[T]) sendLevel(cmd string, lane, level int) error {
	line, err := levelCommand(cmd, lane, level)
	if err != nil {
		return err
	}
	return u.SendCommand(line)
}

// Monitor reads frames from the port until ctx is cancelled or the port
// fails. Feeds are closed when Monitor returns, which ends any session
// reading from them.
func (u *Unit[T]) Monitor(ctx context.Context) error {
	defer u.closeFeeds()

	scan := bufio.NewScanner(u.port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan does not interfere with the outer loop awaiting
	// lines and context cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return fmt.Errorf("reading control unit: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("reading control unit: %w", err)
				default:
				}
				return nil
			}
			u.dispatch(line)
		}
	}
}

func (u *Unit[T]) dispatch(line string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closing {
		return
	}

	for _, ch := range u.taps {
		select {
		case ch <- line:
		default:
		}
	}

	if strings.TrimSpace(line) == "" {
		return
	}
	frame, err := ParseFrame(line)
	if err != nil {
		monitoring.Debugf("cu: %v", err)
		return
	}
	if frame.Start != nil {
		u.lastStart = copyInt(frame.Start)
	}
	if frame.Mode != nil {
		u.lastMode = copyInt(frame.Mode)
	}

	for id, f := range u.feeds {
		// a full feed means the session is behind; skip so the port keeps draining
		select {
		case f.Frames <- frame:
		default:
			monitoring.Logf("cu: feed %s full, dropping frame %q", id, strings.TrimSpace(line))
		}
	}
}

func (u *Unit[T]) closeFeeds() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopped = true
	for id, f := range u.feeds {
		closeFeed(f)
		delete(u.feeds, id)
	}
	for id, ch := range u.taps {
		close(ch)
		delete(u.taps, id)
	}
}

// Close closes every feed and tap and then the port.
func (u *Unit[T]) Close() error {
	u.mu.Lock()
	if u.closing {
		u.mu.Unlock()
		return nil
	}
	u.closing = true
	for id, f := range u.feeds {
		closeFeed(f)
		delete(u.feeds, id)
	}
	for id, ch := range u.taps {
		close(ch)
		delete(u.taps, id)
	}
	u.mu.Unlock()
	return u.port.Close()
}
