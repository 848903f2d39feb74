package lcperrors

import (
	"errors"
	"testing"

	"github.com/sbx-labs/lcp-enclave/pkg/kvstore"
	"github.com/sbx-labs/lcp-enclave/pkg/lcpclient"
)

func TestClassifyKnownSentinel(t *testing.T) {
	err := Classify(kvstore.ErrTxIDNotFound)
	if err.Kind != KindTxIDNotFound {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindTxIDNotFound)
	}
	if !errors.Is(err, kvstore.ErrTxIDNotFound) {
		t.Fatalf("Classify() result does not unwrap to the original sentinel")
	}
}

func TestClassifyWrappedSentinel(t *testing.T) {
	wrapped := errors.New("outer context")
	joined := errorsJoin(wrapped, lcpclient.ErrClientFrozen)
	err := Classify(joined)
	if err.Kind != KindClientFrozen {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindClientFrozen)
	}
}

func TestClassifyUnknown(t *testing.T) {
	err := Classify(errors.New("something unrelated"))
	if err.Kind != KindUnknown {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindUnknown)
	}
}

func TestClassifyNilReturnsNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) != nil")
	}
}

func TestClassifyIdempotent(t *testing.T) {
	first := Classify(lcpclient.ErrStateIDMismatch)
	second := Classify(first)
	if second.Kind != KindStateIDMismatch {
		t.Fatalf("Kind = %v, want %v", second.Kind, KindStateIDMismatch)
	}
	if second != first {
		t.Fatalf("Classify() on an already-classified error should return it unchanged")
	}
}

// errorsJoin mirrors errors.Join's semantics without requiring the
// standard library's multi-error formatting, keeping the wrap chain
// walkable by errors.Is for this test.
func errorsJoin(outer, cause error) error {
	return &joinedError{outer: outer, cause: cause}
}

type joinedError struct {
	outer error
	cause error
}

func (e *joinedError) Error() string { return e.outer.Error() + ": " + e.cause.Error() }
func (e *joinedError) Unwrap() error { return e.cause }
