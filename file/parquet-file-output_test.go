package file

import (
	"encoding/json"
	"os"
	"path"
	"testing"

	"github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/pipeerr"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func newOrdersSpec() tablespec.TableSpec {
	return tablespec.TableSpec{
		Name: "orders",
		Columns: []tablespec.ColumnSpec{
			{Name: "id", Type: constants.ColumnTypeInteger},
			{Name: "amount", Type: constants.ColumnTypeFloat},
			{Name: "region", Type: constants.ColumnTypeString},
		},
	}
}

func newTestRecord(data map[string]interface{}) stream.Record {
	rec := stream.NewRecord()
	for k, v := range data {
		rec.SetData(k, v)
	}
	return rec
}

// readParquetRows reads every row back as a generic map keyed by the
// exported struct field names the reader generates (id -> Id etc).
func readParquetRows(t *testing.T, fileName string) []map[string]interface{} {
	t.Helper()
	fr, err := local.NewLocalFileReader(fileName)
	if err != nil {
		t.Fatal("unable to open Parquet file: ", err)
	}
	defer func() { _ = fr.Close() }()
	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		t.Fatal("unable to create Parquet reader: ", err)
	}
	defer pr.ReadStop()
	num := int(pr.GetNumRows())
	structs, err := pr.ReadByNumber(num)
	if err != nil {
		t.Fatal("unable to read Parquet rows: ", err)
	}
	rows := make([]map[string]interface{}, 0, num)
	for _, s := range structs {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatal("unable to marshal Parquet row: ", err)
		}
		row := make(map[string]interface{})
		if err := json.Unmarshal(b, &row); err != nil {
			t.Fatal("unable to unmarshal Parquet row: ", err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestParquetRoundTrip(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	dir := t.TempDir()
	p, err := NewParquetFileOutput(log, dir, newOrdersSpec())
	if err != nil {
		t.Fatal("unable to create Parquet output: ", err)
	}
	records := []stream.Record{
		newTestRecord(map[string]interface{}{"id": int64(1), "amount": 10.5, "region": "us-east"}),
		newTestRecord(map[string]interface{}{"id": int64(2), "amount": nil, "region": "us-west"}),
		newTestRecord(map[string]interface{}{"id": int64(3), "amount": 4.5, "region": "us-east"}),
	}
	for _, rec := range records {
		if err := p.WriteRecord(rec); err != nil {
			t.Fatal("unable to write record: ", err)
		}
	}
	fileName, rows, err := p.Close()
	if err != nil {
		t.Fatal("unable to close Parquet output: ", err)
	}
	if rows != 3 {
		t.Fatalf("expected 3 rows written; got %v", rows)
	}
	if fileName != path.Join(dir, "orders.parquet") {
		t.Fatalf("unexpected file name %v", fileName)
	}
	if _, err := os.Stat(path.Join(dir, ".orders.parquet.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file was not renamed away")
	}
	got := readParquetRows(t, fileName)
	if len(got) != 3 {
		t.Fatalf("expected 3 rows read back; got %v", len(got))
	}
	if got[0]["Id"] != float64(1) || got[0]["Amount"] != 10.5 || got[0]["Region"] != "us-east" {
		t.Fatalf("unexpected first row: %v", got[0])
	}
	if got[1]["Amount"] != nil { // NULL survives the round trip.
		t.Fatalf("expected NULL amount in second row; got %v", got[1]["Amount"])
	}
	if got[2]["Region"] != "us-east" {
		t.Fatalf("unexpected third row: %v", got[2])
	}
}

func TestParquetEmptyFileHasSchema(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	dir := t.TempDir()
	p, err := NewParquetFileOutput(log, dir, newOrdersSpec())
	if err != nil {
		t.Fatal("unable to create Parquet output: ", err)
	}
	fileName, rows, err := p.Close()
	if err != nil {
		t.Fatal("unable to close Parquet output: ", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows; got %v", rows)
	}
	// The zero-row file is still a readable Parquet file carrying the schema.
	fr, err := local.NewLocalFileReader(fileName)
	if err != nil {
		t.Fatal("unable to open zero-row Parquet file: ", err)
	}
	defer func() { _ = fr.Close() }()
	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		t.Fatal("unable to read zero-row Parquet file: ", err)
	}
	defer pr.ReadStop()
	if pr.GetNumRows() != 0 {
		t.Fatalf("expected 0 rows in file; got %v", pr.GetNumRows())
	}
	// Root plus one schema element per declared column.
	if numFields := len(pr.Footer.Schema) - 1; numFields != 3 {
		t.Fatalf("expected 3 schema fields; got %v", numFields)
	}
}

func TestParquetSchemaErrorForUnknownType(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	spec := tablespec.TableSpec{Name: "t", Columns: []tablespec.ColumnSpec{{Name: "a", Type: "blob"}}}
	_, err := NewParquetFileOutput(log, t.TempDir(), spec)
	if err == nil {
		t.Fatal("expected a schema error for an unmappable column type")
	}
	if pipeerr.KindOf(err) != pipeerr.SchemaError {
		t.Fatalf("expected SchemaError; got %v", pipeerr.KindOf(err))
	}
}

func TestParquetIOErrorForBadDirectory(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	_, err := NewParquetFileOutput(log, "/no/such/directory", newOrdersSpec())
	if err == nil {
		t.Fatal("expected an IO error for an unwritable directory")
	}
	if pipeerr.KindOf(err) != pipeerr.IOError {
		t.Fatalf("expected IOError; got %v", pipeerr.KindOf(err))
	}
}
