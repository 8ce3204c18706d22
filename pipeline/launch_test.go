package pipeline

import (
	"encoding/json"
	"os"
	"path"
	"testing"
	"time"

	"github.com/dmorley/colsnap/components"
	"github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/pipeerr"
	"github.com/dmorley/colsnap/rdbms"
	"github.com/dmorley/colsnap/rdbms/shared"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func ordersConnection(dsn string) shared.DBConnections {
	return shared.DBConnections{
		"orders-db": {
			Type:        constants.ConnectionTypeSqlite,
			LogicalName: "orders-db",
			Data:        map[string]string{"dsn": dsn},
		},
	}
}

func ordersTableSpec() tablespec.TableSpec {
	return tablespec.TableSpec{
		Name: "orders",
		Columns: []tablespec.ColumnSpec{
			{Name: "id", Type: constants.ColumnTypeInteger},
			{Name: "amount", Type: constants.ColumnTypeFloat},
			{Name: "region", Type: constants.ColumnTypeString},
		},
	}
}

func prepareOrdersDb(t *testing.T, log logger.Logger, dsn string) {
	t.Helper()
	db, err := rdbms.OpenDbConnection(log, shared.ConnectionDetails{
		Type:        constants.ConnectionTypeSqlite,
		LogicalName: "orders-db",
		Data:        map[string]string{"dsn": dsn},
	})
	if err != nil {
		t.Fatal("unable to open sqlite connection: ", err)
	}
	defer db.Close()
	stmts := []string{
		"create table orders (id integer, amount real, region text)",
		"insert into orders values (1, 10.5, 'us-east')",
		"insert into orders values (2, null, 'us-west')",
		"insert into orders values (3, 4.5, 'us-east')",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal("unable to prepare test data: ", err)
		}
	}
}

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

// The orders scenario: the aggregate step reads the unfiltered source, then
// filter-nulls drops the NULL-amount row before the writer.
func TestRunPipeOrdersScenario(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	dsn := path.Join(t.TempDir(), "orders.db")
	prepareOrdersDb(t, log, dsn)
	outputDir := t.TempDir()
	def := &PipeDefinition{
		SchemaVersion: 1,
		Description:   "orders scenario",
		Source:        "orders-db",
		Connections:   ordersConnection(dsn),
		Tables:        []tablespec.TableSpec{ordersTableSpec()},
		Steps: []StepDefinition{
			{Table: "orders", Op: OpAggregate, Data: map[string]string{
				"groupBy":    "region",
				"aggregates": "sum(amount), count(amount)",
			}},
			{Table: "orders", Op: OpFilterNulls, Data: map[string]string{
				"fieldNames": "amount",
			}},
		},
		Writer: WriterDefinition{OutputDir: outputDir, Format: constants.OutputFormatParquet},
	}
	if err := RunPipe(log, def, nil); err != nil {
		t.Fatal("unexpected pipe error: ", err)
	}
	rows := readParquetRows(t, path.Join(outputDir, "orders.parquet"))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after filter-nulls; got %v", len(rows))
	}
	if rows[0]["Id"] != float64(1) || rows[1]["Id"] != float64(3) {
		t.Fatalf("expected ids 1 and 3; got %v and %v", rows[0]["Id"], rows[1]["Id"])
	}
}

// Transforms that create columns extend the schema seen by the writer.
func TestRunPipeDerivedColumns(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	dsn := path.Join(t.TempDir(), "orders.db")
	prepareOrdersDb(t, log, dsn)
	outputDir := t.TempDir()
	def := &PipeDefinition{
		Source:      "orders-db",
		Connections: ordersConnection(dsn),
		Tables:      []tablespec.TableSpec{ordersTableSpec()},
		Steps: []StepDefinition{
			{Table: "orders", Op: OpMap, Data: map[string]string{
				"function":    "upper",
				"fieldName":   "region",
				"resultField": "region_upper",
			}},
			{Table: "orders", Op: OpNumericTransform, Data: map[string]string{
				"function":    "sqrt",
				"fieldName":   "amount",
				"resultField": "amount_sqrt",
			}},
			{Table: "orders", Op: OpCategorize, Data: map[string]string{
				"fieldName":        "region",
				"extendVocabulary": "true",
			}},
		},
		Writer: WriterDefinition{OutputDir: outputDir, Format: constants.OutputFormatParquet},
	}
	if err := RunPipe(log, def, nil); err != nil {
		t.Fatal("unexpected pipe error: ", err)
	}
	rows := readParquetRows(t, path.Join(outputDir, "orders.parquet"))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows; got %v", len(rows))
	}
	if rows[0]["Region_upper"] != "US-EAST" {
		t.Fatalf("expected derived column region_upper; got %v", rows[0])
	}
	if rows[0]["Amount_sqrt"] == nil || rows[0]["Region_code"] == nil {
		t.Fatalf("expected derived columns amount_sqrt and region_code; got %v", rows[0])
	}
	if rows[1]["Amount_sqrt"] != nil { // sqrt of NULL stays NULL.
		t.Fatalf("expected NULL amount_sqrt for NULL amount; got %v", rows[1]["Amount_sqrt"])
	}
}

func TestRunPipeEmptyTable(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	dsn := path.Join(t.TempDir(), "orders.db")
	prepareOrdersDb(t, log, dsn)
	db, err := rdbms.OpenDbConnection(log, shared.ConnectionDetails{
		Type: constants.ConnectionTypeSqlite, LogicalName: "orders-db",
		Data: map[string]string{"dsn": dsn},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("delete from orders"); err != nil {
		t.Fatal(err)
	}
	db.Close()
	outputDir := t.TempDir()
	def := &PipeDefinition{
		Source:      "orders-db",
		Connections: ordersConnection(dsn),
		Tables:      []tablespec.TableSpec{ordersTableSpec()},
		Writer:      WriterDefinition{OutputDir: outputDir},
	}
	if err := RunPipe(log, def, nil); err != nil {
		t.Fatal("unexpected pipe error: ", err)
	}
	// An empty table still produces a valid zero-row file.
	rows := readParquetRows(t, path.Join(outputDir, "orders.parquet"))
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows; got %v", len(rows))
	}
}

func TestRunPipeFailsFastOnBadTable(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	dsn := path.Join(t.TempDir(), "orders.db")
	prepareOrdersDb(t, log, dsn)
	outputDir := t.TempDir()
	def := &PipeDefinition{
		Source:      "orders-db",
		Connections: ordersConnection(dsn),
		Tables: []tablespec.TableSpec{
			{Name: "missing", Columns: []tablespec.ColumnSpec{{Name: "id", Type: constants.ColumnTypeInteger}}},
			ordersTableSpec(),
		},
		Writer: WriterDefinition{OutputDir: outputDir},
	}
	err := RunPipe(log, def, nil)
	if err == nil {
		t.Fatal("expected an error for a missing table")
	}
	if pipeerr.KindOf(err) != pipeerr.QueryError {
		t.Fatalf("expected QueryError; got %v", pipeerr.KindOf(err))
	}
	// Fail-fast: the later table never ran.
	if _, err := os.Stat(path.Join(outputDir, "orders.parquet")); !os.IsNotExist(err) {
		t.Fatal("expected no output for tables after the failure")
	}
}

func TestRunPipeRejectsInvalidDefinition(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	def := &PipeDefinition{
		Source: "orders-db",
		Tables: []tablespec.TableSpec{ordersTableSpec()},
		Steps: []StepDefinition{
			{Table: "unknown", Op: "explode"},
		},
		Writer: WriterDefinition{OutputDir: ""},
	}
	err := RunPipe(log, def, nil)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if pipeerr.KindOf(err) != pipeerr.SchemaError {
		t.Fatalf("expected SchemaError; got %v", pipeerr.KindOf(err))
	}
}

func TestRunPipeConnectionError(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	def := &PipeDefinition{
		Source: "nowhere",
		Tables: []tablespec.TableSpec{ordersTableSpec()},
		Writer: WriterDefinition{OutputDir: t.TempDir()},
	}
	err := RunPipe(log, def, nil)
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if pipeerr.KindOf(err) != pipeerr.ConnectionError {
		t.Fatalf("expected ConnectionError; got %v", pipeerr.KindOf(err))
	}
}

// A component that joins the chain after another component has already failed
// must still be shut down, otherwise it blocks forever on its open input and
// the chain never joins.
func TestFailureShutsDownLateRegisteredStep(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	run := newTableRun(log)
	waiter := newChainWaiter()
	run.fail(pipeerr.New(pipeerr.QueryError, "extract failed before the chain was wired"))
	stepName := "orders.filter-nulls.late"
	inputChan := make(chan stream.Record) // never closed, like the output of a step that died.
	_, controlChan := components.NewNullFilter(&components.NullFilterConfig{
		Log:         log,
		Name:        stepName,
		InputChan:   inputChan,
		FieldNames:  "amount",
		WaitCounter: waiter.newStepWaiter(stepName),
	})
	run.register(controlChan)
	for { // wait for the component goroutine to start before joining the chain.
		if status, ok := waiter.LoadStatus(stepName); ok && status >= StepStatusRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}
	done := make(chan struct{})
	go func() {
		waiter.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("component registered after the chain failed was never shut down")
	}
	select {
	case err := <-run.errChan:
		if pipeerr.KindOf(err) != pipeerr.QueryError {
			t.Fatalf("expected the original QueryError to be kept; got %v", err)
		}
	default:
		t.Fatal("expected the original failure to be recorded")
	}
}
