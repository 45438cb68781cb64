// internal/game/types.go
//
// Core type definitions for the Simon Says sequence engine.
// Defines:
//   - Phase: stage of the round state machine.
//   - Config: palette size, sequence sizing, and playback timing.
//   - State: snapshot of a single game (round, sequence, input, score).
//   - Event: one timed reveal/hide step of a playback.
//   - Notification: what observers receive when the engine changes.

package game

import "time"

// Phase is the current stage of the round state machine.
// Possible values:
//   - "idle":           no game running (before start, or between reset and restart).
//   - "presenting":     the sequence is being played back; input is ignored.
//   - "awaiting_input": the player reproduces the sequence.
//   - "round_won":      transient, reported to observers between a completed round and the next playback.
//   - "game_over":      terminal until restarted; State.Won tells which way it ended.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePresenting    Phase = "presenting"
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseRoundWon      Phase = "round_won"
	PhaseGameOver      Phase = "game_over"
)

// Defaults match the classic four-square board.
const (
	DefaultSymbols    = 4
	DefaultBaseLength = 3
	DefaultMaxRounds  = 4
	DefaultLeadIn     = 500 * time.Millisecond
	DefaultReveal     = 500 * time.Millisecond
	DefaultGap        = 500 * time.Millisecond
)

// Config controls sequence generation and playback timing.
type Config struct {
	SymbolCount int           // palette size; symbols are 0..SymbolCount-1
	BaseLength  int           // sequence length in round 1
	MaxRounds   int           // rounds to clear for a win
	LeadIn      time.Duration // delay before the first reveal
	Reveal      time.Duration // how long each symbol stays lit
	Gap         time.Duration // pause between a hide and the next reveal
}

// DefaultConfig returns the classic four-square configuration.
func DefaultConfig() Config {
	return Config{
		SymbolCount: DefaultSymbols,
		BaseLength:  DefaultBaseLength,
		MaxRounds:   DefaultMaxRounds,
		LeadIn:      DefaultLeadIn,
		Reveal:      DefaultReveal,
		Gap:         DefaultGap,
	}
}

// SequenceLength is the number of symbols presented in the given round.
func (c Config) SequenceLength(round int) int {
	return c.BaseLength + round - 1
}

// State is a copy of the engine's game state, safe to hand to a display layer.
type State struct {
	Round       int    `json:"round"`
	Sequence    []int  `json:"sequence"`
	PlayerInput []int  `json:"playerInput"`
	Score       int    `json:"score"`
	Phase       Phase  `json:"phase"`
	Won         bool   `json:"won"`   // meaningful only in PhaseGameOver
	Flash       int    `json:"flash"` // symbol currently revealed, -1 when none
	Generation  uint64 `json:"generation"`
}

// EventKind distinguishes the two halves of a playback step.
type EventKind string

const (
	EventReveal EventKind = "reveal"
	EventHide   EventKind = "hide"
)

// Event is one scheduled playback step. At is the offset from the start of the playback.
type Event struct {
	Kind       EventKind     `json:"kind"`
	Step       int           `json:"step"` // position in the sequence
	Symbol     int           `json:"symbol"`
	At         time.Duration `json:"at"`
	Last       bool          `json:"last"` // the final hide; delivering it opens input
	Generation uint64        `json:"generation"`
}

// ordinal is the event's position in its playback (reveal = 2*step, hide = 2*step+1).
func (ev Event) ordinal() int {
	if ev.Kind == EventHide {
		return ev.Step*2 + 1
	}
	return ev.Step * 2
}

// NotificationKind says what changed.
type NotificationKind string

const (
	NotifyPhase NotificationKind = "phase"
	NotifyFlash NotificationKind = "flash"
	NotifyInput NotificationKind = "input"
)

// Notification is delivered to subscribers after every state change.
type Notification struct {
	Kind  NotificationKind
	From  Phase // previous phase for NotifyPhase
	State State
}
