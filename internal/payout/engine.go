// Package payout evaluates selections against draws and aggregates mean payouts.
package payout

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/kino/internal/domain/kino"
	"github.com/coachpo/kino/internal/domain/paytable"
)

// Lookup resolves a pay-table multiplier. *paytable.Table satisfies it.
type Lookup interface {
	Lookup(size, matches int, v paytable.Variant) decimal.Decimal
}

// Evaluation is the outcome of one draw for one selection.
type Evaluation struct {
	DrawID     int64
	Matches    kino.NumberSet
	Column     paytable.Variant
	Multiplier decimal.Decimal
}

// MatchCount returns |selection ∩ draw|.
func (e Evaluation) MatchCount() int { return e.Matches.Len() }

// Engine resolves per-draw multipliers. It holds no mutable state.
type Engine struct {
	table Lookup
}

// NewEngine builds an engine over the pay-table. A nil table uses paytable.Default.
func NewEngine(table Lookup) *Engine {
	if table == nil {
		table = paytable.Default()
	}
	return &Engine{table: table}
}

// Evaluate counts matches and resolves the multiplier from the variant's column.
func (e *Engine) Evaluate(sel kino.Selection, d kino.Draw, v paytable.Variant) Evaluation {
	matches := sel.Set().Intersect(d.Set())
	return Evaluation{
		DrawID:     d.ID,
		Matches:    matches,
		Column:     v,
		Multiplier: e.table.Lookup(sel.Size(), matches.Len(), v),
	}
}
