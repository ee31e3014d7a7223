package cu

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/slotrace/rms/internal/race"
)

func startMonitor(t *testing.T, u *Unit[*TestablePort]) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Monitor(ctx) }()
	t.Cleanup(func() {
		cancel()
		u.Close()
	})
	return cancel, done
}

func recvFrame(t *testing.T, f *race.Feed) race.Frame {
	t.Helper()
	select {
	case fr, ok := <-f.Frames:
		if !ok {
			t.Fatal("feed closed")
		}
		return fr
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return race.Frame{}
}

// recvSample skips status frames until a car frame arrives.
func recvSample(t *testing.T, f *race.Feed) race.Sample {
	t.Helper()
	for {
		if fr := recvFrame(t, f); fr.Sample != nil {
			return *fr.Sample
		}
	}
}

func status(t *testing.T, fr race.Frame) (start, mode int) {
	t.Helper()
	if fr.Start == nil || fr.Mode == nil {
		t.Fatalf("expected a status frame with start and mode, got %+v", fr)
	}
	return *fr.Start, *fr.Mode
}

func TestUnit_MonitorFansOut(t *testing.T) {
	port := NewTestablePort()
	u := NewUnit(port)
	_, a := u.Subscribe()
	_, b := u.Subscribe()
	startMonitor(t, u)

	port.AddLines(
		`{"car":1,"time":4200,"laps":1,"fuel":14}`,
		"not json",
		`{"start":2,"mode":4}`,
	)

	for _, f := range []*race.Feed{a, b} {
		fr := recvFrame(t, f)
		if fr.Sample == nil {
			t.Fatalf("first frame = %+v, want the car frame", fr)
		}
		if s := *fr.Sample; s.ID != 1 || s.Time != 4200 || !s.Timed || s.Fuel != 14 {
			t.Errorf("unexpected sample %+v", s)
		}
		// the status line was read after the car line and arrives after it
		if start, mode := status(t, recvFrame(t, f)); start != 2 || mode != 4 {
			t.Errorf("status = %d/%d, want 2/4", start, mode)
		}
	}
}

func TestUnit_SubscribeReplaysStatus(t *testing.T) {
	port := NewTestablePort()
	u := NewUnit(port)
	_, first := u.Subscribe()
	startMonitor(t, u)

	port.AddLines(`{"start":0,"mode":3}`)
	recvFrame(t, first)

	_, late := u.Subscribe()
	if start, mode := status(t, recvFrame(t, late)); start != 0 || mode != 3 {
		t.Errorf("replayed status = %d/%d, want 0/3", start, mode)
	}
}

func TestUnit_HangupClosesFeeds(t *testing.T) {
	port := NewTestablePort()
	u := NewUnit(port)
	_, f := u.Subscribe()
	tapID, tap := u.Tap()
	_, done := startMonitor(t, u)

	port.AddLines(`{"car":0,"laps":0}`)
	port.Hangup()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Monitor returned %v, want nil on EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return")
	}

	recvSample(t, f)
	if _, ok := <-f.Frames; ok {
		t.Error("feed not closed after hangup")
	}
	if line := <-tap; !strings.Contains(line, `"car":0`) {
		t.Errorf("tap line = %q", line)
	}
	if _, ok := <-tap; ok {
		t.Error("tap not closed after hangup")
	}
	u.Untap(tapID)

	// subscribing after the monitor stopped yields a closed feed
	_, late := u.Subscribe()
	if _, ok := <-late.Frames; ok {
		t.Error("late feed should be closed")
	}
}

func TestUnit_MonitorCancel(t *testing.T) {
	u := NewUnit(NewTestablePort())
	_, f := u.Subscribe()
	cancel, done := startMonitor(t, u)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return")
	}
	if _, ok := <-f.Frames; ok {
		t.Error("feed not closed after cancel")
	}
}

func TestUnit_Unsubscribe(t *testing.T) {
	u := NewUnit(NewTestablePort())
	id, f := u.Subscribe()
	u.Unsubscribe(id)
	if _, ok := <-f.Frames; ok {
		t.Error("feed not closed")
	}
	// a second unsubscribe is a no-op
	u.Unsubscribe(id)
}

func TestUnit_Commands(t *testing.T) {
	port := NewTestablePort()
	u := NewUnit(port)

	if err := u.SetLap(4); err != nil {
		t.Fatal(err)
	}
	if err := u.ToggleStart(); err != nil {
		t.Fatal(err)
	}
	if err := u.SetSpeed(1, 9); err != nil {
		t.Fatal(err)
	}
	if err := u.SetBrake(2, 6); err != nil {
		t.Fatal(err)
	}
	if err := u.SetFuel(0, 15); err != nil {
		t.Fatal(err)
	}
	if err := u.SetFuel(0, 16); err == nil {
		t.Error("expected error for fuel level 16")
	}

	want := []string{"LAP 4", "START", "SPEED 1 9", "BRAKE 2 6", "FUEL 0 15"}
	got := port.Commands()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %q, want %q", got, want)
	}
}

func TestUnit_SendCommandErrors(t *testing.T) {
	port := NewTestablePort()
	u := NewUnit(port)

	port.WriteError = errors.New("device gone")
	if err := u.SendCommand("START"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("write error = %v, want ErrWriteFailed", err)
	}

	port.ShortWrite = true
	if err := u.SendCommand("START"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("short write = %v, want ErrWriteFailed", err)
	}

	u.Close()
	if !port.Closed {
		t.Error("port not closed")
	}
	if err := u.SendCommand("START"); !errors.Is(err, ErrClosed) {
		t.Errorf("after close = %v, want ErrClosed", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
