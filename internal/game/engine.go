// internal/game/engine.go
//
// Core round engine for a single Simon Says game.
// Responsibilities:
//   - Start and restart games from a validated Config.
//   - Generate each round's sequence from an injectable random Source.
//   - Hand out generation-tagged playbacks and apply their events when delivered.
//   - Validate player input step by step, score rounds, and detect the end of the game.
//
// Notes:
//   - All state lives behind one mutex; observers are called after it is released,
//     so a subscriber may read the engine. Mutating calls hold emitMu until their
//     notifications are delivered, so observers see changes in the order they
//     were applied and must not mutate the engine synchronously.
//   - Timers are not owned here. Whoever delivers events (see Driver) may fire them
//     late or after a restart; Deliver ignores anything from an old generation.
package game

import (
	"errors"
	"sync"
)

// ErrGameOver is returned by BeginPlayback once the game has ended.
var ErrGameOver = errors.New("game over")

// Result describes what a single SubmitInput did.
type Result struct {
	Accepted      bool  // false when the input was ignored (not the player's turn)
	RoundComplete bool  // the input completed the round's sequence correctly
	State         State // state after the input
}

// Engine owns the state of one game.
type Engine struct {
	emitMu sync.Mutex // held across apply and notify by every mutating call
	mu     sync.Mutex
	cfg    Config
	src    Source
	st     State
	cursor int // ordinal of the next playback event Deliver will accept

	obsMu     sync.RWMutex
	observers map[int]func(Notification)
	obsNext   int
}

// Option customises an Engine.
type Option func(*Engine)

// WithSource injects the random source used for sequences.
func WithSource(src Source) Option {
	return func(e *Engine) { e.src = src }
}

// NewEngine returns an idle engine holding DefaultConfig until StartGame is called.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cfg:       DefaultConfig(),
		st:        State{Phase: PhaseIdle, Flash: -1},
		observers: make(map[int]func(Notification)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.src == nil {
		e.src = NewSource(randomSeed())
	}
	return e
}

// Config returns the configuration used by the current (or next) game.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// State returns a copy of the current game state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// StartGame resets the engine to round 1 with a fresh sequence and enters Presenting.
// An invalid config is rejected before anything is mutated.
func (e *Engine) StartGame(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	e.cfg = cfg
	notes := e.startLocked()
	e.mu.Unlock()
	e.emit(notes...)
	return nil
}

// Restart starts over with the stored config. It is legal in every phase and
// invalidates any playback still in flight.
func (e *Engine) Restart() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	notes := e.resetLocked()
	notes = append(notes, e.startLocked()...)
	e.mu.Unlock()
	e.emit(notes...)
}

// Reset clears the game and returns to Idle, e.g. after the game-over screen is dismissed.
func (e *Engine) Reset() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	notes := e.resetLocked()
	e.mu.Unlock()
	e.emit(notes...)
}

// GenerateSequence draws the sequence for a round under the current config.
// Rounds below 1 are treated as round 1.
func (e *Engine) GenerateSequence(round int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generateLocked(round)
}

// BeginPlayback enters Presenting and returns the schedule for the current sequence.
// Calling it while awaiting input replays the sequence and discards the partial input.
func (e *Engine) BeginPlayback() (*Playback, error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	switch e.st.Phase {
	case PhaseIdle:
		e.mu.Unlock()
		return nil, ErrNotStarted
	case PhaseGameOver:
		e.mu.Unlock()
		return nil, ErrGameOver
	}
	from := e.st.Phase
	e.st.Generation++
	e.cursor = 0
	e.st.Flash = -1
	e.st.PlayerInput = nil
	e.st.Phase = PhasePresenting
	pb := newPlayback(e.st.Generation, e.st.Sequence, e.cfg)
	var notes []Notification
	if from != PhasePresenting {
		notes = append(notes, e.note(NotifyPhase, from))
	}
	e.mu.Unlock()
	e.emit(notes...)
	return pb, nil
}

// Deliver applies a due playback event. It reports false, without touching state,
// for events from a stale generation, out of order, or outside Presenting.
func (e *Engine) Deliver(ev Event) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	if ev.Generation != e.st.Generation || e.st.Phase != PhasePresenting || ev.ordinal() != e.cursor {
		e.mu.Unlock()
		return false
	}
	e.cursor++
	var notes []Notification
	switch ev.Kind {
	case EventReveal:
		e.st.Flash = ev.Symbol
		notes = append(notes, e.note(NotifyFlash, e.st.Phase))
	case EventHide:
		e.st.Flash = -1
		notes = append(notes, e.note(NotifyFlash, e.st.Phase))
		if ev.Last {
			notes = append(notes, e.transition(PhaseAwaitingInput))
		}
	}
	e.mu.Unlock()
	e.emit(notes...)
	return true
}

// SubmitInput records one player input.
//
// Outside AwaitingInput the input is ignored and Result.Accepted is false.
// A wrong symbol ends the game at once (GameOver, Won=false) and is reported as a
// *MismatchError. Completing the sequence scores the round number; clearing the
// last round ends the game as won, otherwise the next round enters Presenting.
func (e *Engine) SubmitInput(symbol int) (Result, error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	if e.st.Phase != PhaseAwaitingInput {
		res := Result{State: e.snapshot()}
		e.mu.Unlock()
		return res, nil
	}
	if symbol < 0 || symbol >= e.cfg.SymbolCount {
		res := Result{State: e.snapshot()}
		e.mu.Unlock()
		return res, ErrInvalidSymbol
	}

	e.st.PlayerInput = append(e.st.PlayerInput, symbol)
	step := len(e.st.PlayerInput) - 1
	notes := []Notification{e.note(NotifyInput, e.st.Phase)}

	if want := e.st.Sequence[step]; want != symbol {
		e.st.Won = false
		notes = append(notes, e.transition(PhaseGameOver))
		res := Result{Accepted: true, State: e.snapshot()}
		e.mu.Unlock()
		e.emit(notes...)
		return res, &MismatchError{Step: step, Want: want, Got: symbol}
	}

	res := Result{Accepted: true}
	if len(e.st.PlayerInput) == len(e.st.Sequence) {
		res.RoundComplete = true
		e.st.Score += e.st.Round
		e.st.Round++
		notes = append(notes, e.transition(PhaseRoundWon))
		if e.st.Round > e.cfg.MaxRounds {
			e.st.Won = true
			notes = append(notes, e.transition(PhaseGameOver))
		} else {
			e.st.PlayerInput = nil
			e.st.Sequence = e.generateLocked(e.st.Round)
			e.st.Generation++
			e.cursor = 0
			notes = append(notes, e.transition(PhasePresenting))
		}
	}
	res.State = e.snapshot()
	e.mu.Unlock()
	e.emit(notes...)
	return res, nil
}

// Subscribe registers fn for every notification. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(Notification)) (cancel func()) {
	e.obsMu.Lock()
	id := e.obsNext
	e.obsNext++
	e.observers[id] = fn
	e.obsMu.Unlock()
	return func() {
		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// helpers; callers hold e.mu

func (e *Engine) startLocked() []Notification {
	from := e.st.Phase
	e.st = State{
		Round:      1,
		Phase:      PhasePresenting,
		Flash:      -1,
		Generation: e.st.Generation + 1,
	}
	e.st.Sequence = e.generateLocked(1)
	e.cursor = 0
	return []Notification{e.note(NotifyPhase, from)}
}

func (e *Engine) resetLocked() []Notification {
	from := e.st.Phase
	e.st = State{Phase: PhaseIdle, Flash: -1, Generation: e.st.Generation + 1}
	e.cursor = 0
	if from == PhaseIdle {
		return nil
	}
	return []Notification{e.note(NotifyPhase, from)}
}

func (e *Engine) generateLocked(round int) []int {
	if round < 1 {
		round = 1
	}
	return generate(e.src, e.cfg.SequenceLength(round), e.cfg.SymbolCount)
}

func (e *Engine) transition(to Phase) Notification {
	from := e.st.Phase
	e.st.Phase = to
	return e.note(NotifyPhase, from)
}

func (e *Engine) note(kind NotificationKind, from Phase) Notification {
	return Notification{Kind: kind, From: from, State: e.snapshot()}
}

func (e *Engine) snapshot() State {
	s := e.st
	s.Sequence = append([]int{}, e.st.Sequence...)
	s.PlayerInput = append([]int{}, e.st.PlayerInput...)
	return s
}

// emit fans notifications out without holding e.mu.
func (e *Engine) emit(notes ...Notification) {
	if len(notes) == 0 {
		return
	}
	e.obsMu.RLock()
	fns := make([]func(Notification), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.obsMu.RUnlock()
	for _, n := range notes {
		for _, fn := range fns {
			fn(n)
		}
	}
}
