// Package paytable holds the immutable KINO pay-table and its loaders.
package paytable

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
)

//go:embed kino.yaml
var defaultDocument []byte

// Variant selects the pay-table column.
type Variant int

const (
	// Standard is the regular KINO column.
	Standard Variant = iota
	// Bonus is the KINO bonus column.
	Bonus
)

func (v Variant) String() string {
	switch v {
	case Standard:
		return "standard"
	case Bonus:
		return "bonus"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant parses "standard" or "bonus", case-insensitively.
func ParseVariant(raw string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "standard":
		return Standard, nil
	case "bonus":
		return Bonus, nil
	default:
		return Standard, errs.New("paytable", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unknown variant %q", raw)))
	}
}

const variants = 2

// Table maps (selection size, match count, variant) to a multiplier. A Table is
// never mutated after construction and is safe for concurrent use.
type Table struct {
	cells [variants][kino.MaxSelection + 1][kino.MaxSelection + 1]decimal.Decimal
}

// Lookup returns the multiplier, or zero when no prize exists for the combination.
func (t *Table) Lookup(size, matches int, v Variant) decimal.Decimal {
	if v < Standard || v > Bonus {
		return decimal.Zero
	}
	if size < kino.MinSelection || size > kino.MaxSelection || matches < 0 || matches > size {
		return decimal.Zero
	}
	return t.cells[v][size][matches]
}

// Prizes returns the non-zero multipliers for a selection size keyed by match count.
func (t *Table) Prizes(size int, v Variant) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for m := 0; m <= size && m <= kino.MaxSelection; m++ {
		if val := t.Lookup(size, m, v); !val.IsZero() {
			out[m] = val
		}
	}
	return out
}

// DefaultBonusFactor scales the standard column into the bonus column when a
// document gives neither bonusFactor nor an explicit bonus row.
const DefaultBonusFactor = "2"

type document struct {
	BonusFactor string                 `yaml:"bonusFactor"`
	Standard    map[int]map[int]string `yaml:"standard"`
	Bonus       map[int]map[int]string `yaml:"bonus"`
}

// Parse decodes a YAML pay-table document.
func Parse(r io.Reader) (*Table, error) {
	var doc document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, errs.New("paytable", errs.CodeInvalid, errs.WithMessage("decode pay-table"), errs.WithCause(err))
	}
	if len(doc.Standard) == 0 {
		return nil, errs.New("paytable", errs.CodeInvalid, errs.WithMessage("standard column required"))
	}
	t := new(Table)
	if err := t.fill(Standard, doc.Standard); err != nil {
		return nil, err
	}
	if err := t.fill(Bonus, doc.Bonus); err != nil {
		return nil, err
	}
	if err := t.deriveBonus(doc); err != nil {
		return nil, err
	}
	return t, nil
}

// deriveBonus fills every bonus row the document leaves out with the standard
// row scaled by the bonus factor.
func (t *Table) deriveBonus(doc document) error {
	raw := strings.TrimSpace(doc.BonusFactor)
	if raw == "" {
		raw = DefaultBonusFactor
	}
	factor, err := decimal.NewFromString(raw)
	if err != nil {
		return errs.New("paytable", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("invalid bonusFactor %q", doc.BonusFactor)), errs.WithCause(err))
	}
	if factor.IsNegative() {
		return errs.New("paytable", errs.CodeInvalid, errs.WithMessage("negative bonusFactor"))
	}
	for size := kino.MinSelection; size <= kino.MaxSelection; size++ {
		if _, explicit := doc.Bonus[size]; explicit {
			continue
		}
		for matches := 0; matches <= size; matches++ {
			t.cells[Bonus][size][matches] = t.cells[Standard][size][matches].Mul(factor)
		}
	}
	return nil
}

func (t *Table) fill(v Variant, column map[int]map[int]string) error {
	for size, row := range column {
		if size < kino.MinSelection || size > kino.MaxSelection {
			return errs.New("paytable", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("%s: selection size %d out of range", v, size)))
		}
		for matches, raw := range row {
			if matches < 0 || matches > size {
				return errs.New("paytable", errs.CodeInvalid,
					errs.WithMessage(fmt.Sprintf("%s: match count %d invalid for size %d", v, matches, size)))
			}
			val, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return errs.New("paytable", errs.CodeInvalid,
					errs.WithMessage(fmt.Sprintf("%s: size %d matches %d: invalid multiplier %q", v, size, matches, raw)),
					errs.WithCause(err))
			}
			if val.IsNegative() {
				return errs.New("paytable", errs.CodeInvalid,
					errs.WithMessage(fmt.Sprintf("%s: size %d matches %d: negative multiplier", v, size, matches)))
			}
			t.cells[v][size][matches] = val
		}
	}
	return nil
}

// LoadFile reads a pay-table document from disk.
func LoadFile(path string) (*Table, error) {
	file, err := os.Open(filepath.Clean(path)) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, fmt.Errorf("open pay-table: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Parse(file)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded KINO pay-table, parsed once per process.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(bytes.NewReader(defaultDocument))
		if err != nil {
			panic(fmt.Sprintf("embedded pay-table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}
