package stream

import (
	"testing"

	"github.com/dmorley/colsnap/logger"
)

func TestRecordIsNil(t *testing.T) {
	if rec := NewNilRecord(); !rec.RecordIsNil() {
		t.Fatal("expected nil record")
	}
	if rec := NewRecord(); rec.RecordIsNil() {
		t.Fatal("expected non-nil record")
	}
}

func TestRecordDataAccess(t *testing.T) {
	log := logger.NewLogger("stream-test", "error", false)
	rec := NewRecord()
	rec.SetData("id", int64(1))
	rec.SetData("amount", nil)
	if got := rec.GetData("id"); got != int64(1) {
		t.Fatalf("expected 1; got %v", got)
	}
	if !rec.DataIsNull("amount") {
		t.Fatal("expected amount to be NULL")
	}
	if rec.DataIsNull("id") {
		t.Fatal("expected id to be non-NULL")
	}
	if got := rec.GetDataAsString(log, "id"); got != "1" {
		t.Fatalf("expected string 1; got %v", got)
	}
	vals := rec.GetDataKeysAsSlice(log, []string{"id", "amount"})
	if vals[0] != "1" || vals[1] != "" {
		t.Fatalf("unexpected slice values: %v", vals)
	}
}

func TestRecordCopyTo(t *testing.T) {
	src := NewRecord()
	src.SetData("a", "x")
	dst := NewRecord()
	src.CopyTo(dst)
	if got := dst.GetData("a"); got != "x" {
		t.Fatalf("expected x; got %v", got)
	}
}
