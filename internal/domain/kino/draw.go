package kino

import (
	"fmt"
	"time"

	"github.com/coachpo/kino/errs"
)

// DateLayout is the calendar date format used for draw dates.
const DateLayout = "2006-01-02"

// Draw is one drawing of NumbersPerDraw distinct numbers. Bonus is the KINO bonus
// number reported by the operator; zero when the service did not report one.
type Draw struct {
	ID      int64 `json:"id"`
	Slot    int   `json:"slot"`
	Numbers []int `json:"numbers"`
	Bonus   int   `json:"bonus,omitempty"`

	set NumberSet
}

// NewDraw validates the numbers and builds a Draw.
func NewDraw(id int64, slot int, numbers []int, bonus int) (Draw, error) {
	d := Draw{ID: id, Slot: slot, Numbers: append([]int(nil), numbers...), Bonus: bonus}
	if err := d.Validate(); err != nil {
		return Draw{}, err
	}
	return d, nil
}

// Validate checks the draw invariants and primes the membership mask.
func (d *Draw) Validate() error {
	if len(d.Numbers) != NumbersPerDraw {
		return malformed(d.ID, fmt.Sprintf("expected %d numbers, got %d", NumbersPerDraw, len(d.Numbers)))
	}
	var set NumberSet
	for _, n := range d.Numbers {
		if n < MinNumber || n > MaxNumber {
			return malformed(d.ID, fmt.Sprintf("number %d out of range", n))
		}
		if set.Has(n) {
			return malformed(d.ID, fmt.Sprintf("duplicate number %d", n))
		}
		set.Add(n)
	}
	if d.Bonus != 0 && !set.Has(d.Bonus) {
		return malformed(d.ID, fmt.Sprintf("bonus number %d is not among the winning numbers", d.Bonus))
	}
	d.set = set
	return nil
}

// Set returns the membership mask of the winning numbers.
func (d Draw) Set() NumberSet {
	if d.set == (NumberSet{}) && len(d.Numbers) > 0 {
		var set NumberSet
		for _, n := range d.Numbers {
			set.Add(n)
		}
		return set
	}
	return d.set
}

// Equal compares draw identity and numbers, ignoring number order.
func (d Draw) Equal(other Draw) bool {
	return d.ID == other.ID && d.Slot == other.Slot && d.Bonus == other.Bonus && d.Set() == other.Set()
}

func malformed(id int64, msg string) error {
	return errs.New("draw", errs.CodeInvalid,
		errs.WithMessage(msg),
		errs.WithField("draw_id", fmt.Sprintf("%d", id)))
}

// PageKey addresses one page of draws for a calendar date. Page is 1-based.
type PageKey struct {
	Date time.Time
	Page int
}

// NewPageKey validates the page number and truncates the date to a calendar day.
func NewPageKey(date time.Time, page int) (PageKey, error) {
	if page < 1 || page > PagesPerDay {
		return PageKey{}, errs.New("page", errs.CodeInvalid,
			errs.WithKey(date.Format(DateLayout), page),
			errs.WithMessage(fmt.Sprintf("page must be within [1,%d]", PagesPerDay)))
	}
	y, m, dd := date.Date()
	return PageKey{Date: time.Date(y, m, dd, 0, 0, 0, 0, time.UTC), Page: page}, nil
}

// DateString returns the key's date in DateLayout.
func (k PageKey) DateString() string { return k.Date.Format(DateLayout) }

func (k PageKey) String() string { return fmt.Sprintf("%s#%d", k.DateString(), k.Page) }

// Batch is the set of draws belonging to one page. Last mirrors the service's
// indication that no further pages exist for the date.
type Batch struct {
	Key   PageKey
	Draws []Draw
	Last  bool
}

// Validate checks every draw and the page size bound.
func (b *Batch) Validate() error {
	if len(b.Draws) == 0 {
		return errs.New("batch", errs.CodeInvalid, errs.WithKey(b.Key.DateString(), b.Key.Page),
			errs.WithMessage("batch has no draws"))
	}
	if len(b.Draws) > DrawsPerPage {
		return errs.New("batch", errs.CodeInvalid, errs.WithKey(b.Key.DateString(), b.Key.Page),
			errs.WithMessage(fmt.Sprintf("batch holds %d draws, at most %d expected", len(b.Draws), DrawsPerPage)))
	}
	for i := range b.Draws {
		if err := b.Draws[i].Validate(); err != nil {
			return errs.New("batch", errs.CodeInvalid, errs.WithKey(b.Key.DateString(), b.Key.Page), errs.WithCause(err))
		}
	}
	return nil
}

// Equal reports whether two batches carry the same draws in the same order.
func (b Batch) Equal(other Batch) bool {
	if b.Key != other.Key || b.Last != other.Last || len(b.Draws) != len(other.Draws) {
		return false
	}
	for i := range b.Draws {
		if !b.Draws[i].Equal(other.Draws[i]) {
			return false
		}
	}
	return true
}

// Flatten concatenates the draws of the batches, preserving batch order.
func Flatten(batches []Batch) []Draw {
	total := 0
	for _, b := range batches {
		total += len(b.Draws)
	}
	out := make([]Draw, 0, total)
	for _, b := range batches {
		out = append(out, b.Draws...)
	}
	return out
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, errs.New("date", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw)), errs.WithCause(err))
	}
	return t, nil
}

// ParsePages validates a caller supplied page list. Duplicates are rejected.
func ParsePages(pages []int) ([]int, error) {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > PagesPerDay {
			return nil, errs.New("page", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("page %d out of range [1,%d]", p, PagesPerDay)))
		}
		if _, dup := seen[p]; dup {
			return nil, errs.New("page", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("page %d requested twice", p)))
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
