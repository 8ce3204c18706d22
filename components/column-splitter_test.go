package components

import (
	"testing"

	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stream"
)

func TestNewColumnSplitter(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	inputChan := make(chan stream.Record, 10)
	inputChan <- newTestRecord(map[string]interface{}{"address": "12 High St|Leeds|LS1 4AB"})
	inputChan <- newTestRecord(map[string]interface{}{"address": "Flat 3|York"})    // short row.
	inputChan <- newTestRecord(map[string]interface{}{"address": "no delimiters"}) // no delimiter at all.
	inputChan <- newTestRecord(map[string]interface{}{"address": nil})
	close(inputChan)
	outputChan, _ := NewColumnSplitter(&ColumnSplitterConfig{
		Log:           log,
		Name:          "test-column-splitter",
		InputChan:     inputChan,
		FieldName:     "address",
		Delimiter:     "|",
		ResultColumns: "street, city, postcode",
	})
	rows := collectRows(t, outputChan, defaultTimeoutSec)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows; got %v", len(rows))
	}
	// Full row.
	if rows[0].GetData("street") != "12 High St" || rows[0].GetData("city") != "Leeds" || rows[0].GetData("postcode") != "LS1 4AB" {
		t.Fatalf("unexpected split of full row: %v", rows[0].GetDataMap())
	}
	if rows[0].GetDataLen() != 4 { // the source column plus three new parts.
		t.Fatalf("expected 4 fields after the split; got %v", rows[0].GetDataLen())
	}
	// Short rows fill with empty strings; every row carries the fixed part count.
	for idx, rec := range rows[:3] {
		for _, col := range []string{"street", "city", "postcode"} {
			if _, ok := rec.GetDataOk(col); !ok {
				t.Fatalf("row %v is missing result column %v", idx, col)
			}
		}
	}
	if rows[1].GetData("postcode") != "" {
		t.Fatalf("expected empty postcode for short row; got %v", rows[1].GetData("postcode"))
	}
	if rows[2].GetData("street") != "no delimiters" || rows[2].GetData("city") != "" {
		t.Fatalf("unexpected split of delimiter-free row: %v", rows[2].GetDataMap())
	}
	// NULL input produces NULL parts.
	if !rows[3].DataIsNull("street") || !rows[3].DataIsNull("postcode") {
		t.Fatal("expected NULL parts for NULL input")
	}
}

func TestNewColumnSplitterMissingConfig(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	expectPanic(t, "expected a panic for missing splitter configuration", func() {
		NewColumnSplitter(&ColumnSplitterConfig{
			Log:       log,
			Name:      "test-column-splitter-bad",
			FieldName: "address",
		})
	})
}
