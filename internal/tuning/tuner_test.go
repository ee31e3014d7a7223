package tuning

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/timeutil"
)

type recorder struct {
	mu     sync.Mutex
	writes []string
	fail   bool
}

func (r *recorder) record(ch Channel, lane, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("port closed")
	}
	r.writes = append(r.writes, fmt.Sprintf("%s %d %d", ch, lane, level))
	return nil
}

func (r *recorder) SetSpeed(lane, level int) error { return r.record(Speed, lane, level) }
func (r *recorder) SetBrake(lane, level int) error { return r.record(Brake, lane, level) }
func (r *recorder) SetFuel(lane, level int) error  { return r.record(Fuel, lane, level) }

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func intp(v int) *int { return &v }

func TestTuner_DebouncesWrites(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rec := &recorder{}
	tu := New(rec, clock, DefaultDelay)
	defer tu.Close()

	require.NoError(t, tu.Update(Speed, intp(1), 5))
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, tu.Update(Speed, intp(1), 9))
	require.NoError(t, tu.Update(Brake, intp(1), 12))
	clock.Advance(300 * time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.all(), "writes must wait for the delay after the last change")

	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"speed 1 9", "brake 1 12"}, rec.all())
}

func TestTuner_UpdateAllLanes(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rec := &recorder{}
	tu := New(rec, clock, DefaultDelay)
	defer tu.Close()

	require.NoError(t, tu.Update(Fuel, nil, 7))
	clock.Advance(DefaultDelay)
	require.Eventually(t, func() bool { return len(rec.all()) == Lanes }, time.Second, 5*time.Millisecond)
	for i, m := range tu.Models() {
		require.NotNil(t, m.Fuel, "lane %d", i)
		assert.Equal(t, 7, *m.Fuel)
		assert.Nil(t, m.Speed)
	}
}

func TestTuner_RejectsBadInput(t *testing.T) {
	tu := New(&recorder{}, timeutil.NewMockClock(time.Unix(0, 0)), 0)
	defer tu.Close()

	assert.Error(t, tu.Update(Speed, intp(0), 16))
	assert.Error(t, tu.Update(Speed, intp(6), 3))
	assert.Error(t, tu.Update("grip", intp(0), 3))
	assert.Error(t, tu.UpdateSlider(Brake, intp(0), 11))
}

func TestTuner_UpdateSlider(t *testing.T) {
	tu := New(&recorder{}, timeutil.NewMockClock(time.Unix(0, 0)), 0)
	defer tu.Close()

	require.NoError(t, tu.UpdateSlider(Brake, intp(2), 1))
	assert.Equal(t, 6, *tu.Models()[2].Brake)
}

func TestTuner_ApplyAll(t *testing.T) {
	rec := &recorder{}
	tu := New(rec, timeutil.NewMockClock(time.Unix(0, 0)), 0)
	defer tu.Close()

	require.NoError(t, tu.Update(Speed, intp(0), 15))
	require.NoError(t, tu.Update(Fuel, intp(3), 4))
	require.NoError(t, tu.ApplyAll())
	assert.Equal(t, []string{"speed 0 15", "fuel 3 4"}, rec.all())

	rec.fail = true
	assert.Error(t, tu.ApplyAll())
}

func TestTuner_CarDefaults(t *testing.T) {
	tu := New(&recorder{}, timeutil.NewMockClock(time.Unix(0, 0)), 0)
	defer tu.Close()

	drivers := []race.Driver{
		{Name: "Alain"},
		{Name: "Nelson", Car: &race.Car{Name: "BT52", Speed: intp(11), Fuel: intp(9)}},
	}
	require.NoError(t, tu.LoadCarDefaults(1, drivers[1]))
	require.NoError(t, tu.LoadCarDefaults(0, drivers[0]))

	m := tu.Models()
	assert.Equal(t, 11, *m[1].Speed)
	assert.Nil(t, m[1].Brake)
	assert.Nil(t, m[0].Speed)

	require.NoError(t, tu.Update(Brake, intp(1), 13))
	saved, ok := tu.SaveCarDefaults(1, drivers)
	require.True(t, ok)
	assert.Equal(t, 13, *saved[1].Car.Brake)
	assert.Nil(t, drivers[1].Car.Brake, "input drivers must not change")

	_, ok = tu.SaveCarDefaults(0, drivers)
	assert.False(t, ok)
}
