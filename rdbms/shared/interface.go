package shared

import (
	"context"
	"database/sql"
)

// Connector abstracts the SQL access needed by pipe components.
type Connector interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	Close()
	GetType() string
}

// SqlResultHandler receives the header and each row of an ad-hoc query.
type SqlResultHandler interface {
	HandleHeader(i []interface{}) error
	HandleRow(i []interface{}) error
}

// ConnectionGetter loads saved connection details by logical name.
type ConnectionGetter interface {
	LoadConnection(name string) (ConnectionDetails, error)
}
