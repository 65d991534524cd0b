package drawstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
)

// EnvelopeVersion is the current on-disk envelope format.
const EnvelopeVersion = 1

// envelope is the self-describing persisted form of a batch. The range and
// count fields let Decode reject entries written under different game rules.
type envelope struct {
	Version        int         `json:"version"`
	Date           string      `json:"date"`
	Page           int         `json:"page"`
	Last           bool        `json:"last"`
	DrawCount      int         `json:"draw_count"`
	NumbersPerDraw int         `json:"numbers_per_draw"`
	MinNumber      int         `json:"min_number"`
	MaxNumber      int         `json:"max_number"`
	Checksum       string      `json:"checksum"`
	Draws          []kino.Draw `json:"draws"`
}

// Encode serialises a validated batch into its envelope bytes.
func Encode(batch kino.Batch) ([]byte, error) {
	// Validate primes per-draw masks; work on a copy so callers may share batches.
	batch.Draws = append([]kino.Draw(nil), batch.Draws...)
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	sum, err := Checksum(batch.Draws)
	if err != nil {
		return nil, err
	}
	env := envelope{
		Version:        EnvelopeVersion,
		Date:           batch.Key.DateString(),
		Page:           batch.Key.Page,
		Last:           batch.Last,
		DrawCount:      len(batch.Draws),
		NumbersPerDraw: kino.NumbersPerDraw,
		MinNumber:      kino.MinNumber,
		MaxNumber:      kino.MaxNumber,
		Checksum:       sum,
		Draws:          batch.Draws,
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode draw batch: %w", err)
	}
	return append(out, '\n'), nil
}

// Decode parses envelope bytes for key, failing with errs.CodeCacheCorrupt on
// any mismatch.
func Decode(key kino.PageKey, data []byte) (kino.Batch, error) {
	corrupt := func(msg string, cause error) error {
		opts := []errs.Option{errs.WithKey(key.DateString(), key.Page), errs.WithMessage(msg)}
		if cause != nil {
			opts = append(opts, errs.WithCause(cause))
		}
		return errs.New("drawstore", errs.CodeCacheCorrupt, opts...)
	}

	var env envelope
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&env); err != nil {
		return kino.Batch{}, corrupt("decode envelope", err)
	}
	if env.Version != EnvelopeVersion {
		return kino.Batch{}, corrupt(fmt.Sprintf("unsupported envelope version %d", env.Version), nil)
	}
	if env.Date != key.DateString() || env.Page != key.Page {
		return kino.Batch{}, corrupt(fmt.Sprintf("entry belongs to %s#%d", env.Date, env.Page), nil)
	}
	if env.NumbersPerDraw != kino.NumbersPerDraw || env.MinNumber != kino.MinNumber || env.MaxNumber != kino.MaxNumber {
		return kino.Batch{}, corrupt("entry written for different game parameters", nil)
	}
	if env.DrawCount != len(env.Draws) {
		return kino.Batch{}, corrupt(fmt.Sprintf("expected %d draws, found %d", env.DrawCount, len(env.Draws)), nil)
	}
	sum, err := Checksum(env.Draws)
	if err != nil {
		return kino.Batch{}, corrupt("checksum", err)
	}
	if sum != env.Checksum {
		return kino.Batch{}, corrupt("checksum mismatch", nil)
	}
	batch := kino.Batch{Key: key, Draws: env.Draws, Last: env.Last}
	if err := batch.Validate(); err != nil {
		return kino.Batch{}, corrupt("draw validation", err)
	}
	return batch, nil
}

// Checksum is the hex sha256 of the canonical JSON encoding of draws.
func Checksum(draws []kino.Draw) (string, error) {
	raw, err := json.Marshal(draws)
	if err != nil {
		return "", fmt.Errorf("checksum draws: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Reconcile implements the write-once rule against an existing entry: nil when
// the incoming batch matches, errs.CodeCacheInconsistent otherwise.
func Reconcile(existing, incoming kino.Batch) error {
	if existing.Equal(incoming) {
		return nil
	}
	return errs.New("drawstore", errs.CodeCacheInconsistent,
		errs.WithKey(incoming.Key.DateString(), incoming.Key.Page),
		errs.WithMessage("cached draws differ from incoming draws; historical draws must not change"))
}

// Miss builds the errs.CodeCacheMiss error for key.
func Miss(component string, key kino.PageKey) error {
	return errs.New(component, errs.CodeCacheMiss, errs.WithKey(key.DateString(), key.Page), errs.WithMessage("no cached entry"))
}
