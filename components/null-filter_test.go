package components

import (
	"testing"
	"time"

	c "github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stream"
)

func ordersInputRecords() []stream.Record {
	return []stream.Record{
		newTestRecord(map[string]interface{}{"id": int64(1), "amount": 10.5, "region": "us-east"}),
		newTestRecord(map[string]interface{}{"id": int64(2), "amount": nil, "region": "us-west"}),
		newTestRecord(map[string]interface{}{"id": int64(3), "amount": 4.5, "region": "us-east"}),
	}
}

func runNullFilter(t *testing.T, log logger.Logger, input []stream.Record, fieldNames string) []stream.Record {
	t.Helper()
	inputChan := make(chan stream.Record, 10)
	for _, rec := range input {
		inputChan <- rec
	}
	close(inputChan)
	outputChan, _ := NewNullFilter(&NullFilterConfig{
		Log:        log,
		Name:       "test-null-filter",
		InputChan:  inputChan,
		FieldNames: fieldNames,
	})
	return collectRows(t, outputChan, defaultTimeoutSec)
}

func TestNewNullFilter(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	rows := runNullFilter(t, log, ordersInputRecords(), "amount")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows; got %v", len(rows))
	}
	gotIds := []int64{rows[0].GetData("id").(int64), rows[1].GetData("id").(int64)}
	if gotIds[0] != 1 || gotIds[1] != 3 {
		t.Fatalf("expected ids [1 3]; got %v", gotIds)
	}
}

func TestNewNullFilterIsIdempotent(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	once := runNullFilter(t, log, ordersInputRecords(), "amount")
	twice := runNullFilter(t, log, once, "amount")
	if len(once) != len(twice) {
		t.Fatalf("expected second application to keep %v rows; got %v", len(once), len(twice))
	}
	for idx := range once {
		if once[idx].GetData("id") != twice[idx].GetData("id") {
			t.Fatalf("row %v changed on second application", idx)
		}
	}
}

// chanWaiter closes its done channel when the component goroutine finishes.
type chanWaiter struct {
	done chan struct{}
}

func (w *chanWaiter) Add()  {}
func (w *chanWaiter) Done() { close(w.done) }

func TestNewNullFilterShutdownWhileBlockedSending(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	numRecords := c.ChanSize + 1 // one more than the output buffer so the component blocks sending.
	inputChan := make(chan stream.Record, numRecords)
	for i := 0; i < numRecords; i++ {
		inputChan <- newTestRecord(map[string]interface{}{"id": int64(i), "amount": 1.0})
	}
	waiter := &chanWaiter{done: make(chan struct{})}
	outputChan, controlChan := NewNullFilter(&NullFilterConfig{
		Log:         log,
		Name:        "test-null-filter-busy-shutdown",
		InputChan:   inputChan, // stays open so only the shutdown can end the component.
		FieldNames:  "amount",
		WaitCounter: waiter,
	})
	for len(outputChan) < c.ChanSize { // wait until the component is blocked sending its next record.
		time.Sleep(time.Millisecond)
	}
	responseChan := make(chan error, 1)
	controlChan <- ControlAction{ResponseChan: responseChan, Action: Shutdown}
	select {
	case err := <-responseChan:
		if err != nil {
			t.Fatal("unexpected error during shutdown: ", err)
		}
	case <-time.After(time.Duration(defaultTimeoutSec) * time.Second):
		t.Fatal("timeout waiting for shutdown response")
	}
	select {
	case <-waiter.done: // the component must stop processing rows, not just acknowledge.
	case <-time.After(time.Duration(defaultTimeoutSec) * time.Second):
		t.Fatal("component kept running after acknowledging shutdown")
	}
}

func TestNewNullFilterShutdown(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	inputChan := make(chan stream.Record, 10) // stays open so the component keeps running.
	_, controlChan := NewNullFilter(&NullFilterConfig{
		Log:        log,
		Name:       "test-null-filter-shutdown",
		InputChan:  inputChan,
		FieldNames: "amount",
	})
	responseChan := make(chan error, 1)
	controlChan <- ControlAction{ResponseChan: responseChan, Action: Shutdown}
	select {
	case err := <-responseChan:
		if err != nil {
			t.Fatal("unexpected error during shutdown: ", err)
		}
	case <-time.After(time.Duration(defaultTimeoutSec) * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}
