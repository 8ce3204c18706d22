package rdbms

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/xo/dburl"
	_ "modernc.org/sqlite"

	"github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/pipeerr"
	"github.com/dmorley/colsnap/rdbms/shared"
)

// supportedDsnConnectionTypes holds the connection types routed through dburl DSN parsing.
var supportedDsnConnectionTypes = map[string]struct{}{
	constants.ConnectionTypePostgres:  {},
	constants.ConnectionTypeMysql:     {},
	constants.ConnectionTypeSqlServer: {},
}

// OpenDbConnection opens a database connection using the supplied ConnectionDetails.
// The session is pinged before use so auth and network failures surface here,
// not on the first extraction query.
func OpenDbConnection(log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details in c.Data!
	switch {
	case c.Type == constants.ConnectionTypeSqlite:
		return newSqliteConnection(log, c)
	default:
		if _, ok := supportedDsnConnectionTypes[c.Type]; !ok {
			return nil, pipeerr.New(pipeerr.ConnectionError, "unsupported database type %q", c.Type)
		}
		return newConnectionWithDsn(log, c)
	}
}

func newConnectionWithDsn(log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error) {
	log.Info("Opening database connection: ", c)
	u, err := dburl.Parse(c.Dsn())
	if err != nil { // if the DSN could not be parsed...
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, err, fmt.Sprintf("error parsing DSN for connection %q", c.LogicalName))
	}
	conn := &shared.DbConnection{DbType: c.Type}
	conn.DbSql, err = sql.Open(u.Driver, u.DSN)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, err, "error opening database connection")
	}
	if err = conn.DbSql.Ping(); err != nil { // test the connection.
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, err, "error testing database connection")
	}
	log.Info("Successful connection to: ", c)
	return conn, nil
}

// newSqliteConnection opens an in-process sqlite database.
// modernc.org/sqlite registers driver name "sqlite" and the DSN is a file path,
// so this bypasses dburl.
func newSqliteConnection(log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error) {
	dsn := c.Dsn()
	if dsn == "" {
		return nil, pipeerr.New(pipeerr.ConnectionError, "missing database file path for sqlite connection %q", c.LogicalName)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, err, "error opening sqlite database")
	}
	if err = db.Ping(); err != nil {
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, err, "error testing sqlite database")
	}
	log.Info("Successful connection to sqlite database ", dsn)
	return &shared.DbConnection{DbSql: db, DbType: constants.ConnectionTypeSqlite}, nil
}
