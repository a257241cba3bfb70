// internal/game/types.go
//
// Core type definitions for the concentration game engine.
// Defines:
//   - CardState: hidden/open/matched per card.
//   - Phase: global session state (ready/awaiting/checking/complete).
//   - Outcome: what a Select call did.
//   - Card, CardView, Stats, State: session data and its rendered form.
//   - Event, Sink: the signal contract towards the presentation layer.

package game

import "time"

// CardState is the visual state of a single card.
type CardState string

const (
	CardHidden  CardState = "hidden"
	CardOpen    CardState = "open"
	CardMatched CardState = "matched"
)

// Phase is the global state of a session.
type Phase string

const (
	PhaseReady    Phase = "ready"    // no card open
	PhaseAwaiting Phase = "awaiting" // one card open, waiting for the second
	PhaseChecking Phase = "checking" // mismatch shown, input blocked
	PhaseComplete Phase = "complete" // every card matched
)

// Outcome reports what a Select call did.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeOpened     Outcome = "opened"
	OutcomeMatched    Outcome = "matched"
	OutcomeMismatched Outcome = "mismatched"
	OutcomeCompleted  Outcome = "completed"
)

// Card is one card on the board. Index is its stable position in the deck.
type Card struct {
	Index  int
	Symbol string
	State  CardState
}

// CardView is the presentation form of a card.
// Symbol is empty while the card is hidden so clients cannot peek.
type CardView struct {
	Index  int       `json:"index"`
	State  CardState `json:"state"`
	Symbol string    `json:"symbol,omitempty"`
}

// View converts a card into what the presentation layer may see.
func (c Card) View() CardView {
	v := CardView{Index: c.Index, State: c.State}
	if c.State != CardHidden {
		v.Symbol = c.Symbol
	}
	return v
}

// Stats is the final result of a completed round.
type Stats struct {
	RoundID      string        `json:"roundId"`
	Moves        int           `json:"moves"`
	Rating       int           `json:"rating"`
	Elapsed      time.Duration `json:"-"`
	ElapsedMs    int64         `json:"elapsedMs"`
	ElapsedLabel string        `json:"elapsed"`
}

// State is a point-in-time copy of a session for rendering.
type State struct {
	ID      string     `json:"id"`
	RoundID string     `json:"roundId"`
	Phase   Phase      `json:"phase"`
	Cards   []CardView `json:"cards"`
	Moves   int        `json:"moves"`
	Rating  int        `json:"rating"`
	Matched int        `json:"matchedPairs"`
	Elapsed string     `json:"elapsed"`
	Stats   *Stats     `json:"stats,omitempty"`
}

// EventKind names a render signal.
type EventKind string

const (
	EventBoard    EventKind = "board"    // fresh deal; Cards holds every card
	EventCard     EventKind = "card"     // one card changed; Card is set
	EventMoves    EventKind = "moves"    // move counter and rating changed
	EventTick     EventKind = "tick"     // elapsed time display
	EventComplete EventKind = "complete" // round finished; Stats is set
)

// Event is a single signal to the presentation layer. Moves, Rating and
// Elapsed always carry the current values so a sink can render any event
// on its own.
type Event struct {
	Kind    EventKind  `json:"kind"`
	RoundID string     `json:"roundId"`
	Card    *CardView  `json:"card,omitempty"`
	Cards   []CardView `json:"cards,omitempty"`
	Moves   int        `json:"moves"`
	Rating  int        `json:"rating"`
	Elapsed string     `json:"elapsed"`
	Stats   *Stats     `json:"stats,omitempty"`
}

// Sink receives events from a session. Emit is called with the session
// lock held, so implementations must not call back into the session and
// should return quickly.
type Sink interface {
	Emit(Event)
}

type discard struct{}

func (discard) Emit(Event) {}
