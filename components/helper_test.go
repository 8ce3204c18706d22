package components

import (
	"testing"
	"time"

	"github.com/dmorley/colsnap/stream"
)

const defaultTimeoutSec = 10

// collectRows consumes dataChan until it closes, failing the test on timeout.
func collectRows(t *testing.T, dataChan chan stream.Record, timeoutSec int) []stream.Record {
	t.Helper()
	rows := make([]stream.Record, 0)
	doneChan := make(chan struct{}, 1)
	go func() { // consume rows
		for rec := range dataChan {
			rows = append(rows, rec)
		}
		doneChan <- struct{}{}
	}()
	select {
	case <-doneChan:
	case <-time.After(time.Duration(timeoutSec) * time.Second):
		t.Fatal("timeout waiting for output channel to close")
	}
	return rows
}

// expectPanic runs fn and fails the test unless it panics.
func expectPanic(t *testing.T, msg string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal(msg)
		}
	}()
	fn()
}

// waitForPanic waits for a component goroutine's recovered panic value.
func waitForPanic(t *testing.T, panicChan chan interface{}) interface{} {
	t.Helper()
	select {
	case r := <-panicChan:
		return r
	case <-time.After(time.Duration(defaultTimeoutSec) * time.Second):
		t.Fatal("timeout waiting for component panic")
		return nil
	}
}

func newTestRecord(data map[string]interface{}) stream.Record {
	rec := stream.NewRecord()
	for k, v := range data {
		rec.SetData(k, v)
	}
	return rec
}
