package game

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is the sentinel wrapped by every InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid game config")
	// ErrNotStarted is returned by operations that need a running game.
	ErrNotStarted = errors.New("game not started")
	// ErrInvalidSymbol is returned for inputs outside the palette.
	ErrInvalidSymbol = errors.New("symbol out of range")
)

// InvalidConfigError reports the first rejected Config field.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid game config: %s %s", e.Field, e.Reason)
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// MismatchError describes the input that ended the game.
type MismatchError struct {
	Step int // position in the sequence
	Want int
	Got  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("sequence mismatch at step %d: want %d, got %d", e.Step, e.Want, e.Got)
}

// Validate checks a Config before any state is touched.
func (c Config) Validate() error {
	switch {
	case c.SymbolCount <= 0:
		return &InvalidConfigError{Field: "SymbolCount", Reason: "must be positive"}
	case c.MaxRounds <= 0:
		return &InvalidConfigError{Field: "MaxRounds", Reason: "must be positive"}
	case c.BaseLength <= 0:
		return &InvalidConfigError{Field: "BaseLength", Reason: "must be positive"}
	case c.LeadIn < 0 || c.Reveal < 0 || c.Gap < 0:
		return &InvalidConfigError{Field: "durations", Reason: "must not be negative"}
	}
	return nil
}
