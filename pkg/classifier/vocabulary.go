package classifier

import (
	"math"
	"strings"
	"unicode"
)

// Tokenize lowercases doc and splits it into letter/digit runs.
func Tokenize(doc string) []string {
	return strings.FieldsFunc(strings.ToLower(doc), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// index assigns dense ids to strings in first-seen order.
type index struct {
	items []string
	ids   map[string]int
}

func newIndex(items ...string) *index {
	ix := &index{
		items: make([]string, 0, len(items)),
		ids:   make(map[string]int, len(items)),
	}
	for _, item := range items {
		ix.add(item)
	}
	return ix
}

func (ix *index) add(item string) int {
	if id, ok := ix.ids[item]; ok {
		return id
	}
	id := len(ix.items)
	ix.items = append(ix.items, item)
	ix.ids[item] = id
	return id
}

func (ix *index) lookup(item string) (int, bool) {
	id, ok := ix.ids[item]
	return id, ok
}

func (ix *index) len() int {
	return len(ix.items)
}

// knownTokens maps doc tokens to vocabulary ids, dropping unknown words.
func knownTokens(vocab *index, doc string) []int {
	words := Tokenize(doc)
	tokens := make([]int, 0, len(words))
	for _, w := range words {
		if id, ok := vocab.lookup(w); ok {
			tokens = append(tokens, id)
		}
	}
	return tokens
}

// sameScore reports whether two scores are equal within floating-point rounding.
func sameScore(a, b float64) bool {
	const epsilon = 1e-9
	return math.Abs(a-b) <= epsilon*math.Max(math.Abs(a), math.Abs(b))
}

// betterLabel reports whether candidate a beats b when their scores tie:
// more training examples first, then lexicographic label order.
func betterLabel(aLabel string, aExamples int, bLabel string, bExamples int) bool {
	if aExamples != bExamples {
		return aExamples > bExamples
	}
	return aLabel < bLabel
}
