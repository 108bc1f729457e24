/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
)

// Game rule violations, split along the lines the protocol reports them:
// validation problems with the message itself, actions that are legal
// messages but illegal in the current game state, and references to
// things that do not exist.
var (
	ErrBadMessage      = errors.New("malformed message")
	ErrDiceIndex       = errors.New("dice index out of range")
	ErrUnknownCategory = errors.New("unknown scoring category")

	ErrTurn            = errors.New("not this player's turn")
	ErrRollLimit       = errors.New("no rolls left this turn")
	ErrFillBeforeRoll  = errors.New("must roll before filling a category")
	ErrCategoryFilled  = errors.New("category already filled")
	ErrMatchOver       = errors.New("match is over")
	ErrMatchNotOver    = errors.New("match is not over")
	ErrPlayerNotSeated = errors.New("player is not in this game")

	ErrUnknownGame   = errors.New("unknown game id")
	ErrUnknownPlayer = errors.New("unknown player id")
)

const (
	codeValidation = "validation"
	codeState      = "state"
	codeNotFound   = "not_found"
)

// errorCode maps a game error onto the protocol error taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadMessage), errors.Is(err, ErrDiceIndex), errors.Is(err, ErrUnknownCategory):
		return codeValidation
	case errors.Is(err, ErrUnknownGame), errors.Is(err, ErrUnknownPlayer):
		return codeNotFound
	default:
		return codeState
	}
}
