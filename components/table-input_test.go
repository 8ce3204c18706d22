package components

import (
	"testing"

	"github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/rdbms"
	"github.com/dmorley/colsnap/rdbms/shared"
	"github.com/dmorley/colsnap/tablespec"
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

func openOrdersDb(t *testing.T, log *logger.LoggerImpl, dsn string) shared.Connector {
	t.Helper()
	db, err := rdbms.OpenDbConnection(log, shared.ConnectionDetails{
		Type:        constants.ConnectionTypeSqlite,
		LogicalName: "test",
		Data:        map[string]string{"dsn": dsn},
	})
	if err != nil {
		t.Fatal("unable to open sqlite connection: ", err)
	}
	stmts := []string{
		"create table orders (id integer, amount real, region text, secret text)",
		"insert into orders values (1, 10.5, 'us-east', 'a')",
		"insert into orders values (2, null, 'us-west', 'b')",
		"insert into orders values (3, 4.5, 'us-east', 'c')",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal("unable to prepare test data: ", err)
		}
	}
	return db
}

func TestNewTableInput(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	db := openOrdersDb(t, log, "file:tableinput?mode=memory&cache=shared")
	defer db.Close()
	outputChan, _ := NewTableInput(&TableInputConfig{
		Log:  log,
		Name: "test-table-input",
		Db:   db,
		Spec: newOrdersSpec(),
	})
	rows := collectRows(t, outputChan, defaultTimeoutSec)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows; got %v", len(rows))
	}
	// Only the specified columns appear; the table's extra physical column does not leak.
	if _, ok := rows[0].GetDataOk("secret"); ok {
		t.Fatal("unexpected column 'secret' in extracted record")
	}
	for _, col := range []string{"id", "amount", "region"} {
		if _, ok := rows[0].GetDataOk(col); !ok {
			t.Fatalf("expected column %v in extracted record", col)
		}
	}
	// NULLs survive extraction.
	if !rows[1].DataIsNull("amount") {
		t.Fatal("expected NULL amount in row 2")
	}
	if rows[2].GetDataAsString(log, "region") != "us-east" {
		t.Fatalf("unexpected region in row 3: %v", rows[2].GetData("region"))
	}
}

func TestNewTableInputBadSpec(t *testing.T) {
	log := logger.NewLogger("colsnap", "error", true)
	db := openOrdersDb(t, log, "file:tableinputbadspec?mode=memory&cache=shared")
	defer db.Close()
	expectPanic(t, "expected a panic for a spec with an unsupported column type", func() {
		NewTableInput(&TableInputConfig{
			Log:  log,
			Name: "test-table-input-bad-spec",
			Db:   db,
			Spec: tablespec.TableSpec{Name: "orders", Columns: []tablespec.ColumnSpec{{Name: "id", Type: "blob"}}},
		})
	})
}
