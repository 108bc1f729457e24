/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand"
)

// Players never pick their own display names; the server hands each new
// registration an adjective+animal pair.

var nameAdjectives = []string{
	"Amber", "Bold", "Brisk", "Calm", "Clever", "Daring", "Dusty",
	"Eager", "Fuzzy", "Gentle", "Happy", "Jolly", "Keen", "Lucky",
	"Mellow", "Nimble", "Plucky", "Quiet", "Rapid", "Sly", "Snappy",
	"Sturdy", "Swift", "Tidy", "Witty", "Zesty",
}

var nameAnimals = []string{
	"Badger", "Beaver", "Bison", "Crane", "Falcon", "Ferret", "Fox",
	"Gecko", "Heron", "Ibex", "Lemur", "Lynx", "Magpie", "Marmot",
	"Otter", "Owl", "Panda", "Puffin", "Raven", "Seal", "Stoat",
	"Tapir", "Walrus", "Weasel", "Wombat", "Wren",
}

func randomUsername(rng *rand.Rand) string {
	adjective := nameAdjectives[rng.Intn(len(nameAdjectives))]
	animal := nameAnimals[rng.Intn(len(nameAnimals))]

	return adjective + animal
}
