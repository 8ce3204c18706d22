package components

import (
	"fmt"
	"sync/atomic"

	c "github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/rdbms/shared"
	s "github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
)

type TableInputConfig struct {
	Log            logger.Logger
	Name           string
	Db             shared.Connector
	Spec           tablespec.TableSpec // table name plus ordered column list driving the SELECT.
	StepWatcher    *s.StepWatcher      // optional ptr to object that can gather step stats.
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewTableInput extracts rows for one table specification onto the output channel.
// The generated SELECT projects exactly the specified columns in specification order
// and the output records are keyed by the specified column names, so a table with
// extra physical columns never leaks them downstream.
func NewTableInput(i interface{}) (chan stream.Record, chan ControlAction) {
	cfg := i.(*TableInputConfig)
	if err := cfg.Spec.Validate(); err != nil {
		cfg.Log.Panic(cfg.Name, " invalid table specification: ", err)
	}
	outputChan := make(chan stream.Record, int(c.ChanSize))
	controlChan := make(chan ControlAction, 1) // make a control channel that receives a chan error.
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		// Add to wait group to say we have started.
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		extractTable(cfg.Log, cfg.Name, cfg.Db, cfg.StepWatcher, cfg.Spec, outputChan, controlChan)
	}()
	return outputChan, controlChan
}

// extractTable executes the spec's SELECT and produces one stream.Record per row.
func extractTable(log logger.Logger,
	name string,
	db shared.Connector,
	stepWatcher *s.StepWatcher,
	spec tablespec.TableSpec,
	outputChan chan stream.Record,
	controlChan chan ControlAction,
) {
	rowCount := int64(0)
	if stepWatcher != nil { // if the caller supplied a stats watcher...
		stepWatcher.StartWatching(&rowCount, &outputChan)
		defer stepWatcher.StopWatching()
	}
	sqltext := spec.SelectSql()
	log.Info(name, " executing SQL: ", sqltext)
	rows, err := db.Query(sqltext)
	if err != nil {
		log.Panic(fmt.Sprintf("%v received error during database query using SQL: '%v' %v", name, sqltext, err))
	}
	defer func() { _ = rows.Close() }()
	// Set up scan targets, one per specified column.
	colNames := spec.ColumnNames()
	numCols := len(colNames)
	scanPtrs := make([]interface{}, numCols)
	scanVals := make([]interface{}, numCols)
	for idx := 0; idx < numCols; idx++ {
		scanPtrs[idx] = &scanVals[idx]
	}
	log.Debug(name, " looping over result set...")
	var controlAction ControlAction
	for rows.Next() {
		if err := rows.Scan(scanPtrs...); err != nil {
			log.Panic(name, " unable to scan row: ", err)
		}
		// Key the record by the specified column names, not driver-reported names.
		row := stream.NewRecord()
		for idx := range scanVals {
			row.SetData(colNames[idx], scanVals[idx])
		}
		log.Trace(name, " producing row onto outputChan: ", row)
		if rowSentOK := safeSend(row, outputChan, controlChan, sendNilControlResponse); !rowSentOK {
			log.Info(name, " shutdown")
			return
		}
		atomic.AddInt64(&rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
		// Check for shutdown requests.
		select {
		case controlAction = <-controlChan: // if we have been asked to shutdown...
			var errResponse error
			if err := rows.Close(); err != nil { // if there was an error closing the row set...
				errResponse = fmt.Errorf("%v error closing SQL result set: %v", name, err)
			}
			controlAction.ResponseChan <- errResponse // confirm shutdown with the above error which may be nil.
			log.Info(name, " shutdown")
			return
		default: // else we can continue...
		}
	}
	if err := rows.Err(); err != nil { // if the result set broke mid fetch...
		log.Panic(fmt.Sprintf("%v received error while fetching rows using SQL: '%v' %v", name, sqltext, err))
	}
	close(outputChan) // end gracefully; tell downstream components that we're done.
	log.Info(name, " complete")
}
