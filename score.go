/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
)

// Category identifies one of the 13 fixed score sheet entries. The
// string values are the wire tags clients send in fill requests.
type Category string

const (
	CategoryOnes   Category = "1s"
	CategoryTwos   Category = "2s"
	CategoryThrees Category = "3s"
	CategoryFours  Category = "4s"
	CategoryFives  Category = "5s"
	CategorySixes  Category = "6s"

	CategoryThreeOfAKind  Category = "3-of-a-kind"
	CategoryFourOfAKind   Category = "4-of-a-kind"
	CategoryFullHouse     Category = "full-house"
	CategorySmallStraight Category = "small-straight"
	CategoryLargeStraight Category = "large-straight"
	CategoryYahtzee       Category = "yahtzee"
	CategoryChance        Category = "chance"
)

// categories lists every sheet entry, upper section first.
var categories = []Category{
	CategoryOnes,
	CategoryTwos,
	CategoryThrees,
	CategoryFours,
	CategoryFives,
	CategorySixes,
	CategoryThreeOfAKind,
	CategoryFourOfAKind,
	CategoryFullHouse,
	CategorySmallStraight,
	CategoryLargeStraight,
	CategoryYahtzee,
	CategoryChance,
}

const (
	upperBonusThreshold = 63
	upperBonusValue     = 35
)

func (c Category) upper() bool {
	switch c {
	case CategoryOnes, CategoryTwos, CategoryThrees, CategoryFours, CategoryFives, CategorySixes:
		return true
	default:
		return false
	}
}

// score maps the current dice state onto a point value for a single
// category. It never mutates anything; counts is the per-face frequency
// table and sum the face total of the same dice.
func score(category Category, counts [7]int, sum int) (int, error) {
	switch category {
	case CategoryOnes:
		return 1 * counts[1], nil
	case CategoryTwos:
		return 2 * counts[2], nil
	case CategoryThrees:
		return 3 * counts[3], nil
	case CategoryFours:
		return 4 * counts[4], nil
	case CategoryFives:
		return 5 * counts[5], nil
	case CategorySixes:
		return 6 * counts[6], nil
	case CategoryThreeOfAKind:
		for face := 1; face <= 6; face++ {
			if counts[face] >= 3 {
				return sum, nil
			}
		}
		return 0, nil
	case CategoryFourOfAKind:
		for face := 1; face <= 6; face++ {
			if counts[face] >= 4 {
				return sum, nil
			}
		}
		return 0, nil
	case CategoryFullHouse:
		triple, pair := false, false
		for face := 1; face <= 6; face++ {
			switch counts[face] {
			case 3:
				triple = true
			case 2:
				pair = true
			}
		}
		if triple && pair {
			return 25, nil
		}
		return 0, nil
	case CategorySmallStraight:
		for low := 1; low <= 3; low++ {
			run := true
			for face := low; face < low+4; face++ {
				if counts[face] < 1 {
					run = false
					break
				}
			}
			if run {
				return 30, nil
			}
		}
		return 0, nil
	case CategoryLargeStraight:
		for low := 1; low <= 2; low++ {
			run := true
			for face := low; face < low+5; face++ {
				if counts[face] != 1 {
					run = false
					break
				}
			}
			if run {
				return 40, nil
			}
		}
		return 0, nil
	case CategoryYahtzee:
		for face := 1; face <= 6; face++ {
			if counts[face] == 5 {
				return 50, nil
			}
		}
		return 0, nil
	case CategoryChance:
		return sum, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, string(category))
	}
}
