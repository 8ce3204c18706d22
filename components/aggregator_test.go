package components

import (
	"testing"

	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stream"
)

// The orders data: us-east has amounts 10.5 and 4.5; us-west has only a NULL amount.
func TestNewAggregatorOrdersScenario(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	inputChan := make(chan stream.Record, 10)
	for _, rec := range ordersInputRecords() {
		inputChan <- rec
	}
	close(inputChan)
	aggChan := make(chan stream.Record, 10)
	outputChan, _ := NewAggregator(&AggregatorConfig{
		Log:            log,
		Name:           "test-aggregator",
		InputChan:      inputChan,
		GroupBy:        "region",
		Aggregates:     "sum(amount), count(amount)",
		AggregatesChan: aggChan,
	})
	// The source rows pass through unchanged.
	rows := collectRows(t, outputChan, defaultTimeoutSec)
	if len(rows) != 3 {
		t.Fatalf("expected 3 pass-through rows; got %v", len(rows))
	}
	for idx, rec := range rows {
		if rec.GetData("id") != int64(idx+1) {
			t.Fatalf("pass-through row %v changed: %v", idx, rec.GetDataMap())
		}
	}
	// Groups appear in first-seen order with NULLs skipped.
	groups := collectRows(t, aggChan, defaultTimeoutSec)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups; got %v", len(groups))
	}
	if groups[0].GetData("region") != "us-east" || groups[0].GetData("amount_sum") != 15.0 || groups[0].GetData("amount_count") != int64(2) {
		t.Fatalf("unexpected us-east aggregate: %v", groups[0].GetDataMap())
	}
	if groups[1].GetData("region") != "us-west" || groups[1].GetData("amount_sum") != 0.0 || groups[1].GetData("amount_count") != int64(0) {
		t.Fatalf("unexpected us-west aggregate: %v", groups[1].GetDataMap())
	}
}

func TestNewAggregatorMeanMinMax(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	inputChan := make(chan stream.Record, 10)
	inputChan <- newTestRecord(map[string]interface{}{"region": "us-east", "amount": 10.0})
	inputChan <- newTestRecord(map[string]interface{}{"region": "us-east", "amount": 4.0})
	inputChan <- newTestRecord(map[string]interface{}{"region": "us-west", "amount": nil})
	close(inputChan)
	aggChan := make(chan stream.Record, 10)
	outputChan, _ := NewAggregator(&AggregatorConfig{
		Log:            log,
		Name:           "test-aggregator-mean",
		InputChan:      inputChan,
		GroupBy:        "region",
		Aggregates:     "mean(amount), min(amount), max(amount)",
		AggregatesChan: aggChan,
	})
	collectRows(t, outputChan, defaultTimeoutSec)
	groups := collectRows(t, aggChan, defaultTimeoutSec)
	if groups[0].GetData("amount_mean") != 7.0 || groups[0].GetData("amount_min") != 4.0 || groups[0].GetData("amount_max") != 10.0 {
		t.Fatalf("unexpected us-east aggregates: %v", groups[0].GetDataMap())
	}
	// mean, min and max of an all-NULL group are NULL.
	for _, col := range []string{"amount_mean", "amount_min", "amount_max"} {
		if !groups[1].DataIsNull(col) {
			t.Fatalf("expected NULL %v for the all-NULL group; got %v", col, groups[1].GetData(col))
		}
	}
}

func TestNewAggregatorCompositeKey(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	inputChan := make(chan stream.Record, 10)
	inputChan <- newTestRecord(map[string]interface{}{"region": "us", "tier": "gold", "amount": 1.0})
	inputChan <- newTestRecord(map[string]interface{}{"region": "us", "tier": "silver", "amount": 2.0})
	inputChan <- newTestRecord(map[string]interface{}{"region": "us", "tier": "gold", "amount": 3.0})
	close(inputChan)
	aggChan := make(chan stream.Record, 10)
	outputChan, _ := NewAggregator(&AggregatorConfig{
		Log:            log,
		Name:           "test-aggregator-composite",
		InputChan:      inputChan,
		GroupBy:        "region, tier",
		Aggregates:     "sum(amount)",
		AggregatesChan: aggChan,
	})
	collectRows(t, outputChan, defaultTimeoutSec)
	groups := collectRows(t, aggChan, defaultTimeoutSec)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups; got %v", len(groups))
	}
	if groups[0].GetData("tier") != "gold" || groups[0].GetData("amount_sum") != 4.0 {
		t.Fatalf("unexpected gold aggregate: %v", groups[0].GetDataMap())
	}
	if groups[1].GetData("tier") != "silver" || groups[1].GetData("amount_sum") != 2.0 {
		t.Fatalf("unexpected silver aggregate: %v", groups[1].GetDataMap())
	}
}

func TestParseAggregateTerms(t *testing.T) {
	terms, err := parseAggregateTerms("sum(amount), count(amount)")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if len(terms) != 2 || terms[0].resultField != "amount_sum" || terms[1].resultField != "amount_count" {
		t.Fatalf("unexpected terms: %+v", terms)
	}
	if _, err := parseAggregateTerms("median(amount)"); err == nil {
		t.Fatal("expected an error for unsupported func")
	}
	if _, err := parseAggregateTerms("sum amount"); err == nil {
		t.Fatal("expected an error for bad term syntax")
	}
}
