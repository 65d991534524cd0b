package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesKeyAndFields(t *testing.T) {
	err := New(
		"opap",
		CodeNotFound,
		WithKey("2020-06-25", 3),
		WithHTTP(404),
		WithMessage("no draws for page"),
		WithField("url", "https://api.opap.gr/draws"),
		WithField("attempt", "1"),
		WithCause(errors.New("empty content")),
	)

	out := err.Error()
	for _, want := range []string{
		"component=opap",
		"code=not_found",
		"date=2020-06-25",
		"page=3",
		"http=404",
		`message="no draws for page"`,
		`fields=attempt="1",url="https://api.opap.gr/draws"`,
		`cause="empty content"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in error string: %s", want, out)
		}
	}
}

func TestNilEnvelopeString(t *testing.T) {
	var e *E
	if e.Error() != "<nil>" {
		t.Fatalf("unexpected nil string %q", e.Error())
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New("filestore", CodeCacheCorrupt, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("resolve: %w", New("filestore", CodeCacheMiss, WithKey("2020-06-25", 1)))
	if !errors.Is(err, New("", CodeCacheMiss)) {
		t.Fatal("expected code match through wrapping")
	}
	if errors.Is(err, New("", CodeCacheCorrupt)) {
		t.Fatal("unexpected match for different code")
	}
	if errors.Is(err, New("", "")) {
		t.Fatal("empty code must never match")
	}
}

func TestCodeOfAndHasCode(t *testing.T) {
	inner := New("opap", CodeFetch, WithMessage("connection reset"))
	outer := New("drawsource", CodeUnavailable, WithCause(inner))

	if got := CodeOf(outer); got != CodeUnavailable {
		t.Fatalf("expected outer code, got %q", got)
	}
	if !HasCode(outer, CodeFetch) {
		t.Fatal("expected nested fetch code to be found")
	}
	if HasCode(outer, CodeParse) {
		t.Fatal("unexpected parse code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatal("expected empty code for plain errors")
	}
}
