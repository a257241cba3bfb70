// internal/game/engine.go
//
// Core game engine for a single concentration session.
// Responsibilities:
//   - Deal a shuffled deck of two cards per symbol (Restart).
//   - Apply card selections and run the match-check when two cards are open.
//   - Close mismatched pairs after MismatchDelay, blocking input meanwhile.
//   - Detect completion, freeze the clock and emit the final stats.
//   - Keep move count and rating current; tick the elapsed time every second.
//
// Concurrency:
//   - Every transition runs under the session mutex. HTTP handlers and timer
//     callbacks can therefore call in from any goroutine.
//   - Timer callbacks capture the generation they were scheduled in; Restart
//     and Close bump it, turning stale callbacks into no-ops.
package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/concentration/internal/shuffle"
	"github.com/robalobadob/concentration/internal/symbols"
)

// MismatchDelay is how long a mismatched pair stays face up.
const MismatchDelay = 500 * time.Millisecond

// ErrUnknownCard is returned when a selection names no card of the current deck.
var ErrUnknownCard = errors.New("game: unknown card")

// Config holds the collaborators of a session. Zero values get defaults:
// a random ID, the wall clock, crypto/rand shuffling and no sink.
type Config struct {
	ID      string
	Symbols []string
	Clock   Clock
	Source  shuffle.Source
	Sink    Sink
}

// Session is one player's game. The zero value is not usable; call New.
type Session struct {
	mu      sync.Mutex
	id      string
	symbols []string
	clock   Clock
	src     shuffle.Source
	sink    Sink

	roundID  string
	cards    []Card
	open     []int
	moves    int
	rating   int
	phase    Phase
	started  time.Time
	finished time.Time
	stats    *Stats

	gen    uint64
	tick   Timer
	closed bool
}

// New validates the symbol set, deals the first round and starts its tick.
func New(cfg Config) (*Session, error) {
	if err := symbols.Validate(cfg.Symbols); err != nil {
		return nil, err
	}
	s := &Session{
		id:      cfg.ID,
		symbols: append([]string(nil), cfg.Symbols...),
		clock:   cfg.Clock,
		src:     cfg.Source,
		sink:    cfg.Sink,
		open:    make([]int, 0, 2),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.src == nil {
		s.src = shuffle.Crypto{}
	}
	if s.sink == nil {
		s.sink = discard{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartLocked()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// RoundID returns the identifier of the current deal.
func (s *Session) RoundID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundID
}

// Round identifies one deal of a session.
type Round struct {
	ID       string
	Complete bool
}

// Restart discards the current round and deals a new one. Any pending
// mismatch close is dropped and the tick restarts from zero. It never emits
// a completion event. It returns the round it replaced; ok is false when the
// session is closed, in which case nothing changes.
func (s *Session) Restart() (prev Round, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Round{}, false
	}
	prev = Round{ID: s.roundID, Complete: s.phase == PhaseComplete}
	s.restartLocked()
	return prev, true
}

func (s *Session) restartLocked() {
	s.stopTickLocked()
	s.gen++
	s.roundID = uuid.NewString()
	s.moves = 0
	s.rating = MaxRating
	s.started = s.clock.Now()
	s.finished = time.Time{}
	s.stats = nil
	s.open = s.open[:0]
	s.phase = PhaseReady
	s.cards = s.deal()

	s.emit(Event{Kind: EventBoard, Cards: s.viewsLocked()})
	s.scheduleTickLocked(s.gen)
}

// deal lays out two cards per symbol in a shuffled order, all hidden.
func (s *Session) deal() []Card {
	faces := make([]string, 0, 2*len(s.symbols))
	faces = append(faces, s.symbols...)
	faces = append(faces, s.symbols...)
	shuffle.Slice(s.src, faces)

	cards := make([]Card, len(faces))
	for i, f := range faces {
		cards[i] = Card{Index: i, Symbol: f, State: CardHidden}
	}
	return cards
}

// Select turns card index face up.
//
// It is ignored when the card is already open or matched, while a
// mismatched pair is on display, after completion, or once the session is
// closed. Opening the second card runs the match-check synchronously; a
// mismatch closes both cards after MismatchDelay.
func (s *Session) Select(index int) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.cards) {
		return OutcomeIgnored, fmt.Errorf("%w: %d", ErrUnknownCard, index)
	}
	if s.closed || s.phase == PhaseChecking || s.phase == PhaseComplete {
		return OutcomeIgnored, nil
	}
	if s.cards[index].State != CardHidden {
		return OutcomeIgnored, nil
	}

	s.cards[index].State = CardOpen
	s.open = append(s.open, index)
	s.emitCard(index)

	switch len(s.open) {
	case 1:
		s.phase = PhaseAwaiting
		return OutcomeOpened, nil
	case 2:
		return s.matchCheckLocked(), nil
	default:
		panic(fmt.Sprintf("game: %d cards open", len(s.open)))
	}
}

// matchCheckLocked counts the move and resolves the two open cards.
func (s *Session) matchCheckLocked() Outcome {
	s.moves++
	s.rating = Rating(s.moves)
	s.emit(Event{Kind: EventMoves})

	a, b := s.open[0], s.open[1]
	if s.cards[a].Symbol == s.cards[b].Symbol {
		s.cards[a].State = CardMatched
		s.cards[b].State = CardMatched
		s.open = s.open[:0]
		s.phase = PhaseReady
		s.emitCard(a)
		s.emitCard(b)
		if s.completeLocked() {
			return OutcomeCompleted
		}
		return OutcomeMatched
	}

	s.phase = PhaseChecking
	gen := s.gen
	s.clock.AfterFunc(MismatchDelay, func() { s.closeMismatch(gen, a, b) })
	return OutcomeMismatched
}

// closeMismatch turns a mismatched pair face down and unblocks input.
func (s *Session) closeMismatch(gen uint64, a, b int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.cards[a].State = CardHidden
	s.cards[b].State = CardHidden
	s.open = s.open[:0]
	s.phase = PhaseReady
	s.emitCard(a)
	s.emitCard(b)
}

// completeLocked finishes the round when every card is matched.
func (s *Session) completeLocked() bool {
	for _, c := range s.cards {
		if c.State != CardMatched {
			return false
		}
	}
	s.phase = PhaseComplete
	s.stopTickLocked()
	s.finished = s.clock.Now()

	elapsed := s.finished.Sub(s.started)
	s.stats = &Stats{
		RoundID:      s.roundID,
		Moves:        s.moves,
		Rating:       s.rating,
		Elapsed:      elapsed,
		ElapsedMs:    elapsed.Milliseconds(),
		ElapsedLabel: FormatElapsed(elapsed),
	}
	st := *s.stats
	s.emit(Event{Kind: EventComplete, Stats: &st})
	return true
}

// ------------------------------- tick ---------------------------------------

func (s *Session) scheduleTickLocked(gen uint64) {
	s.tick = s.clock.AfterFunc(TickInterval, func() { s.onTick(gen) })
}

func (s *Session) onTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.phase == PhaseComplete {
		return
	}
	s.emit(Event{Kind: EventTick})
	s.scheduleTickLocked(gen)
}

func (s *Session) stopTickLocked() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
}

// Close stops the tick and drops pending callbacks. Further Select and
// Restart calls are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickLocked()
	s.gen++
	s.closed = true
}

// ------------------------------- views --------------------------------------

// Elapsed is the time since the round was dealt, frozen at completion.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if !s.finished.IsZero() {
		return s.finished.Sub(s.started)
	}
	return s.clock.Now().Sub(s.started)
}

// Snapshot returns a copy of the session for rendering.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:      s.id,
		RoundID: s.roundID,
		Phase:   s.phase,
		Cards:   s.viewsLocked(),
		Moves:   s.moves,
		Rating:  s.rating,
		Elapsed: FormatElapsed(s.elapsedLocked()),
	}
	for _, c := range s.cards {
		if c.State == CardMatched {
			st.Matched++
		}
	}
	st.Matched /= 2
	if s.stats != nil {
		cp := *s.stats
		st.Stats = &cp
	}
	return st
}

func (s *Session) viewsLocked() []CardView {
	out := make([]CardView, len(s.cards))
	for i, c := range s.cards {
		out[i] = c.View()
	}
	return out
}

func (s *Session) emitCard(i int) {
	v := s.cards[i].View()
	s.emit(Event{Kind: EventCard, Card: &v})
}

// emit stamps the current counters onto ev and hands it to the sink.
func (s *Session) emit(ev Event) {
	ev.RoundID = s.roundID
	ev.Moves = s.moves
	ev.Rating = s.rating
	ev.Elapsed = FormatElapsed(s.elapsedLocked())
	s.sink.Emit(ev)
}
