package kino

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/kino/errs"
)

func seq(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}
	return out
}

func TestNumberSetMembershipAndIntersection(t *testing.T) {
	var a, b NumberSet
	for _, n := range []int{1, 5, 63, 64, 65, 80} {
		a.Add(n)
	}
	for _, n := range []int{5, 64, 79, 80} {
		b.Add(n)
	}
	a.Add(0)
	a.Add(81)

	require.Equal(t, 6, a.Len())
	require.True(t, a.Has(64))
	require.False(t, a.Has(81))
	require.Equal(t, []int{1, 5, 63, 64, 65, 80}, a.Slice())
	require.Equal(t, 3, a.IntersectLen(b))
	require.Equal(t, []int{5, 64, 80}, a.Intersect(b).Slice())
	require.Equal(t, "{5,64,80}", a.Intersect(b).String())
}

func TestNewSelectionValidation(t *testing.T) {
	cases := []struct {
		name    string
		numbers []int
	}{
		{"empty", nil},
		{"too many", seq(1, 13)},
		{"zero", []int{0, 5}},
		{"above range", []int{81}},
		{"duplicate", []int{5, 12, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSelection(tc.numbers)
			require.Error(t, err)
			require.True(t, errs.HasCode(err, errs.CodeInvalid))
		})
	}

	sel, err := NewSelection([]int{62, 5, 12})
	require.NoError(t, err)
	require.Equal(t, 3, sel.Size())
	require.Equal(t, []int{62, 5, 12}, sel.Numbers())
	require.Equal(t, []int{5, 12, 62}, sel.Sorted())
	require.True(t, sel.Contains(12))
	require.False(t, sel.Contains(13))

	twelve, err := NewSelection(seq(69, 12))
	require.NoError(t, err)
	require.Equal(t, 12, twelve.Size())
}

func TestDrawValidation(t *testing.T) {
	d, err := NewDraw(1, 0, seq(1, 20), 20)
	require.NoError(t, err)
	require.Equal(t, 20, d.Set().Len())

	_, err = NewDraw(2, 0, seq(1, 19), 0)
	require.True(t, errs.HasCode(err, errs.CodeInvalid))

	dup := seq(1, 20)
	dup[19] = 1
	_, err = NewDraw(3, 0, dup, 0)
	require.Error(t, err)

	outOfRange := seq(62, 20)
	_, err = NewDraw(4, 0, outOfRange, 0)
	require.Error(t, err)

	_, err = NewDraw(5, 0, seq(1, 20), 40)
	require.Error(t, err, "bonus must be one of the winning numbers")
}

func TestDrawSetWithoutValidate(t *testing.T) {
	d := Draw{ID: 9, Numbers: seq(11, 20)}
	require.Equal(t, seq(11, 20), d.Set().Slice())
}

func TestPageKeyAndParsing(t *testing.T) {
	date := time.Date(2020, 6, 25, 17, 30, 0, 0, time.FixedZone("EEST", 3*3600))
	key, err := NewPageKey(date, 3)
	require.NoError(t, err)
	require.Equal(t, "2020-06-25", key.DateString())
	require.Equal(t, "2020-06-25#3", key.String())

	_, err = NewPageKey(date, 0)
	require.Error(t, err)
	_, err = NewPageKey(date, PagesPerDay+1)
	require.Error(t, err)

	parsed, err := ParseDate("2020-06-25")
	require.NoError(t, err)
	require.Equal(t, 25, parsed.Day())
	_, err = ParseDate("25/06/2020")
	require.True(t, errs.HasCode(err, errs.CodeInvalid))

	pages, err := ParsePages([]int{2, 1})
	require.NoError(t, err)
	require.Equal(t, []int{2, 1}, pages)
	_, err = ParsePages([]int{1, 1})
	require.Error(t, err)
	_, err = ParsePages([]int{19})
	require.Error(t, err)
}

func TestBatchValidateEqualAndFlatten(t *testing.T) {
	key, err := NewPageKey(time.Date(2020, 6, 25, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	d1, _ := NewDraw(100, 0, seq(1, 20), 0)
	d2, _ := NewDraw(101, 1, seq(21, 20), 0)
	b := Batch{Key: key, Draws: []Draw{d1, d2}}
	require.NoError(t, b.Validate())

	reordered := d1
	reordered.Numbers = append(seq(11, 10), seq(1, 10)...)
	other := Batch{Key: key, Draws: []Draw{reordered, d2}}
	require.True(t, b.Equal(other))

	other.Last = true
	require.False(t, b.Equal(other))

	require.Error(t, (&Batch{Key: key}).Validate())

	key2, _ := NewPageKey(key.Date, 2)
	d3, _ := NewDraw(110, 0, seq(41, 20), 0)
	flat := Flatten([]Batch{b, {Key: key2, Draws: []Draw{d3}}})
	require.Len(t, flat, 3)
	require.Equal(t, int64(110), flat[2].ID)
}

func TestTodayFollowsAthensCalendar(t *testing.T) {
	late := time.Date(2021, 3, 1, 23, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC), Today(late))

	day := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	require.False(t, Settled(day, time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)), "the current day is still being drawn")
	require.True(t, Settled(day, late), "already the next day in Athens")
	require.False(t, Settled(day.AddDate(0, 0, 1), late))
}
