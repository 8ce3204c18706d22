package constants

const (
	ChanSize                     = 20000
	StatsCaptureFrequencySeconds = 5
	TimeFormatYearSeconds        = "20060102T150405" // used for human readable file names

	EnvVarPrefix = "COLSNAP" // prefix for environment variables

	ConnectionTypePostgres  = "postgres"
	ConnectionTypeMysql     = "mysql"
	ConnectionTypeSqlServer = "sqlserver"
	ConnectionTypeSqlite    = "sqlite"
	ConnectionTypeMock      = "mock"

	OutputFormatParquet = "parquet"
	OutputFormatCsv     = "csv"

	// Declared column types used in table specifications.
	ColumnTypeString    = "string"
	ColumnTypeInteger   = "integer"
	ColumnTypeFloat     = "float"
	ColumnTypeBoolean   = "boolean"
	ColumnTypeTimestamp = "timestamp"
)
