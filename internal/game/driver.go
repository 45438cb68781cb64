// internal/game/driver.go
//
// Timer-driven host for an Engine.
// Responsibilities:
//   - Schedule each playback event with an AfterFunc (time.AfterFunc by default).
//   - Chain events so they are delivered strictly in time order, even when two
//     events share the same offset.
//   - Start the next round's playback automatically after a completed round.
//
// Old timers are never cancelled. When they fire after a restart the engine
// rejects their events and the chain stops there.
package game

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AfterFunc runs f once d has elapsed.
type AfterFunc func(d time.Duration, f func())

func realAfter(d time.Duration, f func()) { time.AfterFunc(d, f) }

// Driver plays an Engine's sequences on a clock.
type Driver struct {
	engine *Engine
	after  AfterFunc
	log    zerolog.Logger

	mu       sync.Mutex
	schedule []Event // events of the most recent playback
}

// DriverOption customises a Driver.
type DriverOption func(*Driver)

// WithAfterFunc replaces the timer used to deliver events.
func WithAfterFunc(f AfterFunc) DriverOption {
	return func(d *Driver) { d.after = f }
}

// WithLogger sets the driver's logger.
func WithLogger(l zerolog.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

// NewDriver wraps e.
func NewDriver(e *Engine, opts ...DriverOption) *Driver {
	d := &Driver{engine: e, after: realAfter, log: log.Logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Engine returns the wrapped engine.
func (d *Driver) Engine() *Engine { return d.engine }

// Schedule returns the events of the most recently started playback.
func (d *Driver) Schedule() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.schedule...)
}

// Start begins a game and its first playback.
func (d *Driver) Start(cfg Config) ([]Event, error) {
	if err := d.engine.StartGame(cfg); err != nil {
		return nil, err
	}
	return d.play()
}

// Restart starts over with the stored config.
func (d *Driver) Restart() ([]Event, error) {
	d.engine.Restart()
	return d.play()
}

// Replay shows the current sequence again, discarding partial input.
func (d *Driver) Replay() ([]Event, error) { return d.play() }

// Submit forwards an input. When it completes a round that leads to another,
// the next playback is scheduled and its events are returned.
func (d *Driver) Submit(symbol int) (Result, []Event, error) {
	res, err := d.engine.SubmitInput(symbol)
	if err != nil || !res.RoundComplete || res.State.Phase != PhasePresenting {
		return res, nil, err
	}
	events, err := d.play()
	if err != nil {
		return res, nil, err
	}
	res.State = d.engine.State()
	return res, events, nil
}

func (d *Driver) play() ([]Event, error) {
	pb, err := d.engine.BeginPlayback()
	if err != nil {
		return nil, err
	}
	events := pb.Events()
	d.mu.Lock()
	d.schedule = events
	d.mu.Unlock()
	d.log.Debug().Uint64("generation", pb.Generation()).Int("events", pb.Len()).
		Dur("duration", pb.Duration()).Msg("playback scheduled")
	d.chain(pb, 0)
	return events, nil
}

// chain schedules the next event relative to the one just delivered.
func (d *Driver) chain(pb *Playback, elapsed time.Duration) {
	ev, ok := pb.Next()
	if !ok {
		return
	}
	d.after(ev.At-elapsed, func() {
		if !d.engine.Deliver(ev) {
			d.log.Debug().Uint64("generation", ev.Generation).Int("step", ev.Step).
				Str("kind", string(ev.Kind)).Msg("stale playback event dropped")
			return
		}
		d.chain(pb, ev.At)
	})
}
