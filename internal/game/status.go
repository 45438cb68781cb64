package game

import "fmt"

// Message is the status line shown to the player for the state.
func (s State) Message() string {
	switch s.Phase {
	case PhaseIdle:
		return "Press start"
	case PhaseAwaitingInput:
		return "Your turn"
	case PhaseGameOver:
		return fmt.Sprintf("Game Over. Your final score is %d", s.Score)
	default:
		return "Watch the sequence"
	}
}
