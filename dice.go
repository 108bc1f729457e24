/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"math/rand"
)

// diceSet holds the five dice of a match plus the per-face frequency
// table and sum derived from them. The derived fields are recomputed
// whenever the faces change, never mutated on their own.
type diceSet struct {
	faces  [5]int
	counts [7]int // counts[face], face 1..6; index 0 unused
	sum    int
}

// newDiceSet returns a set with all five dice unrolled, marked -1 so
// clients can tell them apart from real faces.
func newDiceSet() diceSet {
	var d diceSet
	for i := range d.faces {
		d.faces[i] = -1
	}
	d.recompute()

	return d
}

// roll redraws the dice at the given positions; positions not listed
// keep their value. The whole index set is validated before any die is
// touched, so a bad index leaves the set unchanged.
func (d *diceSet) roll(rng *rand.Rand, indices []int) error {
	for _, i := range indices {
		if i < 0 || i > 4 {
			return fmt.Errorf("%w: %d", ErrDiceIndex, i)
		}
	}

	for _, i := range indices {
		d.faces[i] = rng.Intn(6) + 1
	}

	d.recompute()

	return nil
}

func (d *diceSet) recompute() {
	d.counts = [7]int{}
	d.sum = 0

	// Unrolled dice (-1) contribute to neither the table nor the sum.
	for _, face := range d.faces {
		if face >= 1 && face <= 6 {
			d.counts[face]++
			d.sum += face
		}
	}
}
