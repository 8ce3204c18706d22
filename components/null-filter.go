package components

import (
	"sync/atomic"

	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
)

type NullFilterConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	FieldNames     string // CSV list of columns to check for NULL.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewNullFilter drops rows holding a NULL in any of the named columns.
// Rows already free of NULLs pass through unchanged, so applying the
// filter twice yields the same output as applying it once.
func NewNullFilter(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*NullFilterConfig)
	if cfg.FieldNames == "" {
		cfg.Log.Panic(cfg.Name, " missing null filter configuration; please supply fieldNames")
	}
	fieldNames := h.CsvToStringSliceTrimSpaces(cfg.FieldNames)
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
					hasNull := false
					for _, fieldName := range fieldNames {
						if rec.DataIsNull(fieldName) {
							hasNull = true
							break
						}
					}
					if hasNull { // if the row holds a NULL in a checked column...
						cfg.Log.Trace(cfg.Name, " dropping row with NULL: ", rec)
					} else {
						if rowSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !rowSentOK {
							cfg.Log.Info(cfg.Name, " shutdown")
							return
						}
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
