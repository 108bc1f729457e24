/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"math/rand"
	"sync"
)

const (
	seatCount  = 2
	roundCount = 13
	rollsMax   = 3
)

// ScoreSheet maps a category to its filled value. A missing key means
// the category is still open; a present zero is a legitimate score.
type ScoreSheet map[Category]int

// wire renders the sheet as the client expects it: all 13 categories
// present, open ones as JSON null.
func (s ScoreSheet) wire() map[string]*int {
	out := make(map[string]*int, len(categories))

	for _, cat := range categories {
		if value, ok := s[cat]; ok {
			v := value
			out[string(cat)] = &v
		} else {
			out[string(cat)] = nil
		}
	}

	return out
}

// seat is one of the two turn-order slots of a match, holding a copy of
// the player's public identity at the time the match was made.
type seat struct {
	pid      string
	username string
}

// matchOutcome reports the result of a finished match.
type matchOutcome int

const (
	outcomeTie matchOutcome = iota
	outcomeSeatZero
	outcomeSeatOne
)

// Game owns the authoritative state of one match: both score sheets,
// the dice, round and turn bookkeeping. Roll and Fill are the only
// state-mutating operations, and both run under the game's own mutex so
// no two actions against the same match ever interleave.
type Game struct {
	mu sync.Mutex

	id    string
	seats [seatCount]seat
	rng   *rand.Rand

	sheets [seatCount]ScoreSheet
	upper  [seatCount]int
	bonus  [seatCount]int
	total  [seatCount]int

	dice   diceSet
	round  int
	active int
	rolls  int
	over   bool
}

// newGame seats two players, seat 0 moving first. The caller decides
// seat order; the rng drives this match's dice.
func newGame(id string, first, second seat, rng *rand.Rand) *Game {
	g := &Game{
		id:    id,
		seats: [seatCount]seat{first, second},
		rng:   rng,
		dice:  newDiceSet(),
		round: 1,
	}

	for i := range g.sheets {
		g.sheets[i] = make(ScoreSheet, len(categories))
	}

	return g
}

// seatOf resolves a player id to its seat index.
func (g *Game) seatOf(pid string) (int, error) {
	for i, s := range g.seats {
		if s.pid == pid {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrPlayerNotSeated, pid)
}

// Roll redraws the dice at the given positions for the active seat. It
// does not change whose turn it is.
func (g *Game) Roll(pid string, indices []int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return ErrMatchOver
	}

	s, err := g.seatOf(pid)
	if err != nil {
		return err
	}

	if s != g.active {
		return fmt.Errorf("%w: %s", ErrTurn, pid)
	}

	if g.rolls >= rollsMax {
		return ErrRollLimit
	}

	if err := g.dice.roll(g.rng, indices); err != nil {
		return err
	}

	g.rolls++

	return nil
}

// Fill writes the active seat's score for a category, computed from the
// current dice, then hands the turn over. The returned bool reports
// whether the match continues; false means the match just ended.
func (g *Game) Fill(pid string, category Category) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return false, ErrMatchOver
	}

	s, err := g.seatOf(pid)
	if err != nil {
		return false, err
	}

	if s != g.active {
		return false, fmt.Errorf("%w: %s", ErrTurn, pid)
	}

	if g.rolls < 1 {
		return false, ErrFillBeforeRoll
	}

	value, err := score(category, g.dice.counts, g.dice.sum)
	if err != nil {
		return false, err
	}

	if _, filled := g.sheets[s][category]; filled {
		return false, fmt.Errorf("%w: %s", ErrCategoryFilled, string(category))
	}

	g.sheets[s][category] = value
	g.retotal(s)
	g.handOver()

	return !g.over, nil
}

// retotal recomputes a seat's upper sum, bonus and grand total from its
// sheet. The bonus is granted once the upper sum reaches the threshold
// and sticks for the rest of the match.
func (g *Game) retotal(s int) {
	upper, lower := 0, 0

	for cat, value := range g.sheets[s] {
		if cat.upper() {
			upper += value
		} else {
			lower += value
		}
	}

	g.upper[s] = upper
	if upper >= upperBonusThreshold {
		g.bonus[s] = upperBonusValue
	}
	g.total[s] = upper + g.bonus[s] + lower
}

// handOver passes the turn to the other seat, advancing the round when
// seat 1 has filled, and marks the match over after round 13.
func (g *Game) handOver() {
	g.rolls = 0

	if g.active < seatCount-1 {
		g.active++
		return
	}

	g.active = 0
	if g.round < roundCount {
		g.round++
		return
	}

	g.over = true
}

// Winner compares totals once the match is over.
func (g *Game) Winner() (matchOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.over {
		return outcomeTie, ErrMatchNotOver
	}

	switch {
	case g.total[0] > g.total[1]:
		return outcomeSeatZero, nil
	case g.total[1] > g.total[0]:
		return outcomeSeatOne, nil
	default:
		return outcomeTie, nil
	}
}

// gameSnapshot is the session layer's view of a match, safe to use
// outside the game mutex.
type gameSnapshot struct {
	dice          []int
	rolls         int
	round         int
	activePid     string
	scoreActive   map[string]*int
	scoreInactive map[string]*int
}

// snapshot copies out everything a gameUpdate broadcast may need.
func (g *Game) snapshot() gameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	dice := append([]int(nil), g.dice.faces[:]...)
	inactive := (g.active + 1) % seatCount

	return gameSnapshot{
		dice:          dice,
		rolls:         g.rolls,
		round:         g.round,
		activePid:     g.seats[g.active].pid,
		scoreActive:   g.sheets[g.active].wire(),
		scoreInactive: g.sheets[inactive].wire(),
	}
}

// opponentOf returns the seat opposite the given player.
func (g *Game) opponentOf(pid string) (seat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.seatOf(pid)
	if err != nil {
		return seat{}, err
	}

	return g.seats[(s+1)%seatCount], nil
}
