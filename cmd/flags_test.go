package cmd

import (
	"testing"
)

func TestGetQueryFromArgsFunc(t *testing.T) {
	var connectionName, query string
	fn := getQueryFromArgsFunc(&connectionName, &query)
	if err := fn(nil, []string{"orders-db", "select", "*", "from", "orders"}); err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if connectionName != "orders-db" {
		t.Fatalf("expected connection orders-db; got %v", connectionName)
	}
	if query != "select * from orders" {
		t.Fatalf("expected SQL joined by spaces; got %v", query)
	}
	if err := fn(nil, []string{"orders-db"}); err == nil {
		t.Fatal("expected an error for missing SQL args")
	}
}

func TestAddFlagUnregisteredNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an unregistered flag name")
		}
	}()
	var s string
	switches.addFlag(runCmd, &s, "no-such-flag", "", false)
}
