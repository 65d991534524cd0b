package kino

import (
	"fmt"

	"github.com/coachpo/kino/errs"
)

// Selection is the player's set of chosen numbers. The zero value is empty and invalid.
type Selection struct {
	numbers []int
	set     NumberSet
}

// NewSelection validates the chosen numbers. Duplicates are rejected rather than collapsed.
func NewSelection(numbers []int) (Selection, error) {
	if len(numbers) < MinSelection || len(numbers) > MaxSelection {
		return Selection{}, errs.New("selection", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("between %d and %d numbers can be selected, got %d", MinSelection, MaxSelection, len(numbers))))
	}
	var set NumberSet
	for _, n := range numbers {
		if n < MinNumber || n > MaxNumber {
			return Selection{}, errs.New("selection", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("number %d out of range [%d,%d]", n, MinNumber, MaxNumber)))
		}
		if set.Has(n) {
			return Selection{}, errs.New("selection", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("selected numbers can not contain duplicates: %d", n)))
		}
		set.Add(n)
	}
	return Selection{numbers: append([]int(nil), numbers...), set: set}, nil
}

// MustSelection is NewSelection for fixed inputs; it panics on invalid numbers.
func MustSelection(numbers ...int) Selection {
	sel, err := NewSelection(numbers)
	if err != nil {
		panic(err)
	}
	return sel
}

// Size returns the number of selected numbers.
func (s Selection) Size() int { return len(s.numbers) }

// Numbers returns the numbers in the order the player chose them.
func (s Selection) Numbers() []int { return append([]int(nil), s.numbers...) }

// Sorted returns the numbers in ascending order.
func (s Selection) Sorted() []int { return sortedCopy(s.numbers) }

// Set exposes the membership mask.
func (s Selection) Set() NumberSet { return s.set }

// Contains reports whether n was selected.
func (s Selection) Contains(n int) bool { return s.set.Has(n) }
