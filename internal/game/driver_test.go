package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// manualClock queues timer callbacks and runs them in FIFO order on demand.
type manualClock struct {
	mu      sync.Mutex
	pending []func()
	waited  time.Duration
}

func (c *manualClock) after(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, f)
	c.waited += d
}

func (c *manualClock) step() bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}
	f := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()
	f()
	return true
}

func (c *manualClock) drain() {
	for c.step() {
	}
}

func TestDriverPlaysSequenceThenOpensInput(t *testing.T) {
	clock := &manualClock{}
	d := NewDriver(fixedEngine(0, 1, 2), WithAfterFunc(clock.after))

	events, err := d.Start(DefaultConfig())
	require.NoError(t, err)
	require.Len(t, events, 6)
	require.Equal(t, events, d.Schedule())
	require.Equal(t, PhasePresenting, d.Engine().State().Phase)

	clock.drain()
	require.Equal(t, PhaseAwaitingInput, d.Engine().State().Phase)
	require.Equal(t, events[len(events)-1].At, clock.waited)
}

func TestDriverSchedulesNextRound(t *testing.T) {
	clock := &manualClock{}
	d := NewDriver(fixedEngine(0, 1, 2), WithAfterFunc(clock.after))
	_, err := d.Start(DefaultConfig())
	require.NoError(t, err)
	clock.drain()

	var next []Event
	for _, s := range []int{0, 1, 2} {
		res, events, err := d.Submit(s)
		require.NoError(t, err)
		require.True(t, res.Accepted)
		next = events
	}
	require.Len(t, next, 8)
	require.Equal(t, PhasePresenting, d.Engine().State().Phase)
	require.Equal(t, next[0].Generation, d.Engine().State().Generation)

	clock.drain()
	st := d.Engine().State()
	require.Equal(t, PhaseAwaitingInput, st.Phase)
	require.Equal(t, 2, st.Round)
}

func TestDriverRestartDropsOldTimers(t *testing.T) {
	clock := &manualClock{}
	d := NewDriver(fixedEngine(3, 2, 1, 0), WithAfterFunc(clock.after))
	_, err := d.Start(DefaultConfig())
	require.NoError(t, err)
	require.True(t, clock.step()) // first reveal of the old playback

	events, err := d.Restart()
	require.NoError(t, err)
	gen := events[0].Generation

	clock.drain()
	st := d.Engine().State()
	require.Equal(t, PhaseAwaitingInput, st.Phase)
	require.Equal(t, gen, st.Generation)
	require.Equal(t, -1, st.Flash)
}

func TestDriverRejectsInvalidConfig(t *testing.T) {
	d := NewDriver(NewEngine())
	_, err := d.Start(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Empty(t, d.Schedule())
}

func TestDriverRealTimers(t *testing.T) {
	d := NewDriver(NewEngine(WithSource(NewSource(5))))
	cfg := DefaultConfig()
	cfg.LeadIn, cfg.Reveal, cfg.Gap = 0, time.Millisecond, 0
	_, err := d.Start(cfg)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return d.Engine().State().Phase == PhaseAwaitingInput
	}, 2*time.Second, 5*time.Millisecond)
}
