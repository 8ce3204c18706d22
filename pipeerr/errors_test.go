package pipeerr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	err := New(QueryError, "no such table %v", "orders")
	if KindOf(err) != QueryError {
		t.Fatalf("expected QueryError; got %v", KindOf(err))
	}
	wrapped := errors.Wrap(err, "extracting table")
	if KindOf(wrapped) != QueryError {
		t.Fatalf("expected QueryError through wrapping; got %v", KindOf(wrapped))
	}
	if KindOf(fmt.Errorf("plain")) != "" {
		t.Fatal("expected empty kind for untyped error")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(IOError, nil, "writing file") != nil {
		t.Fatal("expected nil when wrapping a nil error")
	}
}
