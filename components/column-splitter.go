package components

import (
	"strings"
	"sync/atomic"

	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
)

type ColumnSplitterConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	FieldName      string // the string column to split.
	Delimiter      string // literal delimiter, not a regexp.
	ResultColumns  string // CSV list of new column names; fixes the part count.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewColumnSplitter splits the string value of FieldName on a literal Delimiter into
// the fixed set of ResultColumns. Rows with fewer parts than result columns fill the
// remainder with empty strings; surplus parts stay in the last column. A NULL input
// value produces NULL in every result column.
func NewColumnSplitter(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*ColumnSplitterConfig)
	if cfg.FieldName == "" || cfg.Delimiter == "" || cfg.ResultColumns == "" {
		cfg.Log.Panic(cfg.Name, " missing column splitter configuration; please supply fieldName, delimiter and resultColumns")
	}
	resultColumns := h.CsvToStringSliceTrimSpaces(cfg.ResultColumns)
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		rowCount := int64(0)
		if cfg.StepWatcher != nil { // if we have been given a StepWatcher that can watch our rowCount and output channel length...
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		cfg.Log.Info(cfg.Name, " is running")
		var controlAction ControlAction
		for { // for each row of input...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					cfg.InputChan = nil // disable this case.
				} else { // else we have input to process...
					if rec.DataIsNull(cfg.FieldName) { // if the input value is NULL...
						for _, col := range resultColumns {
							rec.SetData(col, nil)
						}
					} else {
						parts := strings.SplitN(rec.GetDataAsString(cfg.Log, cfg.FieldName), cfg.Delimiter, len(resultColumns))
						for idx, col := range resultColumns {
							if idx < len(parts) {
								rec.SetData(col, parts[idx])
							} else { // else the row was short of parts...
								rec.SetData(col, "")
							}
						}
					}
					if rowSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !rowSentOK {
						cfg.Log.Info(cfg.Name, " shutdown")
						return
					}
					atomic.AddInt64(&rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
				}
			case controlAction = <-controlChan: // if we were asked to shutdown...
			}
			if cfg.InputChan == nil || controlAction.Action == Shutdown {
				break
			}
		}
		if controlAction.Action == Shutdown { // if we were asked to shutdown...
			controlAction.ResponseChan <- nil // respond that we're done with a nil error.
			cfg.Log.Info(cfg.Name, " shutdown")
			return
		} else { // else we ran out of rows to process...
			close(outputChan) // we're done so close the channel we created.
			cfg.Log.Info(cfg.Name, " complete")
		}
	}()
	return
}
