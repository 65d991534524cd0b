// Package kino defines the draw, selection and page types of the pick-20-of-80 game.
package kino

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

const (
	// MinNumber is the smallest number that can be drawn or selected.
	MinNumber = 1
	// MaxNumber is the largest number that can be drawn or selected.
	MaxNumber = 80
	// NumbersPerDraw is the count of distinct winning numbers in every draw.
	NumbersPerDraw = 20
	// MinSelection is the smallest permitted selection size.
	MinSelection = 1
	// MaxSelection is the largest permitted selection size.
	MaxSelection = 12
	// DrawsPerPage is the number of consecutive draws the remote service groups into one page.
	DrawsPerPage = 10
	// PagesPerDay is the page count of a complete day (180 draws).
	PagesPerDay = 18
)

// NumberSet is an 80-bit membership mask. Bit n-1 is set when number n is present.
type NumberSet [2]uint64

// Add marks n as present. Numbers outside [MinNumber, MaxNumber] are ignored.
func (s *NumberSet) Add(n int) {
	if n < MinNumber || n > MaxNumber {
		return
	}
	idx := n - 1
	s[idx>>6] |= 1 << uint(idx&63)
}

// Has reports whether n is present.
func (s NumberSet) Has(n int) bool {
	if n < MinNumber || n > MaxNumber {
		return false
	}
	idx := n - 1
	return s[idx>>6]&(1<<uint(idx&63)) != 0
}

// Len returns the number of members.
func (s NumberSet) Len() int {
	return bits.OnesCount64(s[0]) + bits.OnesCount64(s[1])
}

// Intersect returns the members present in both sets.
func (s NumberSet) Intersect(other NumberSet) NumberSet {
	return NumberSet{s[0] & other[0], s[1] & other[1]}
}

// IntersectLen returns |s ∩ other| without materialising the intersection.
func (s NumberSet) IntersectLen(other NumberSet) int {
	return bits.OnesCount64(s[0]&other[0]) + bits.OnesCount64(s[1]&other[1])
}

// Slice returns the members in ascending order.
func (s NumberSet) Slice() []int {
	out := make([]int, 0, s.Len())
	for word := 0; word < len(s); word++ {
		w := s[word]
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			out = append(out, word*64+tz+1)
			w &= w - 1
		}
	}
	return out
}

func (s NumberSet) String() string {
	members := s.Slice()
	parts := make([]string, len(members))
	for i, n := range members {
		parts[i] = strconv.Itoa(n)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sortedCopy(numbers []int) []int {
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	return out
}
