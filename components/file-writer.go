package components

import (
	"strings"
	"sync/atomic"

	c "github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/file"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
)

type FileWriterConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	Spec           tablespec.TableSpec // declared columns drive the output schema.
	OutputDir      string
	Format         string // one of constants.OutputFormatParquet, constants.OutputFormatCsv.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewFileWriter drains its input channel into one output file per table and
// produces a single summary record (table, file, rows) when the input closes.
// An empty input still produces a valid zero-row file with the correct schema.
func NewFileWriter(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*FileWriterConfig)
	if cfg.Format != c.OutputFormatParquet && cfg.Format != c.OutputFormatCsv {
		cfg.Log.Panic(cfg.Name, " unsupported output format ", cfg.Format)
	}
	outputChan = make(chan stream.Record, 1)
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
		switch cfg.Format {
		case c.OutputFormatParquet:
			writeParquet(cfg, outputChan, controlChan, &rowCount)
		case c.OutputFormatCsv:
			writeCsv(cfg, outputChan, controlChan, &rowCount)
		}
	}()
	return
}

func writeParquet(cfg *FileWriterConfig, outputChan chan stream.Record, controlChan chan ControlAction, rowCount *int64) {
	pfo, err := file.NewParquetFileOutput(cfg.Log, cfg.OutputDir, cfg.Spec)
	if err != nil {
		cfg.Log.Panic(cfg.Name, " ", err)
	}
	var controlAction ControlAction
	for { // for each row of input...
		select {
		case rec, ok := <-cfg.InputChan:
			if !ok { // if the input channel was closed...
				cfg.InputChan = nil // disable this case.
			} else { // else we have input to process...
				if err := pfo.WriteRecord(rec); err != nil {
					pfo.Abort()
					cfg.Log.Panic(cfg.Name, " ", err)
				}
				atomic.AddInt64(rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
			}
		case controlAction = <-controlChan: // if we were asked to shutdown...
		}
		if cfg.InputChan == nil || controlAction.Action == Shutdown {
			break
		}
	}
	if controlAction.Action == Shutdown { // if we were asked to shutdown...
		pfo.Abort() // discard the temp file; a partial table must not be renamed into place.
		controlAction.ResponseChan <- nil
		cfg.Log.Info(cfg.Name, " shutdown")
		return
	}
	fileName, rows, err := pfo.Close()
	if err != nil {
		cfg.Log.Panic(cfg.Name, " ", err)
	}
	sendWriterSummary(cfg, outputChan, controlChan, fileName, rows)
	close(outputChan)
	cfg.Log.Info(cfg.Name, " complete")
}

func writeCsv(cfg *FileWriterConfig, outputChan chan stream.Record, controlChan chan ControlAction, rowCount *int64) {
	cfo := file.NewCSVFileOutput(cfg.Log, cfg.OutputDir, cfg.Spec, 0, 0, false)
	defer cfo.Cleanup()
	var controlAction ControlAction
	for { // for each row of input...
		select {
		case rec, ok := <-cfg.InputChan:
			if !ok { // if the input channel was closed...
				cfg.InputChan = nil // disable this case.
			} else { // else we have input to process...
				cfo.MustWriteRecord(rec)
				atomic.AddInt64(rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
			}
		case controlAction = <-controlChan: // if we were asked to shutdown...
		}
		if cfg.InputChan == nil || controlAction.Action == Shutdown {
			break
		}
	}
	if controlAction.Action == Shutdown { // if we were asked to shutdown...
		controlAction.ResponseChan <- nil
		cfg.Log.Info(cfg.Name, " shutdown")
		return
	}
	cfo.EnsureFileExists() // a zero-row table still gets a file with the header.
	cfo.Cleanup()
	sendWriterSummary(cfg, outputChan, controlChan, strings.Join(cfo.ListOfOutputFiles, ","), int64(cfo.TotalRowCount()))
	close(outputChan)
	cfg.Log.Info(cfg.Name, " complete")
}

func sendWriterSummary(cfg *FileWriterConfig, outputChan chan stream.Record, controlChan chan ControlAction, fileName string, rows int64) {
	rec := stream.NewRecord()
	rec.SetData("table", cfg.Spec.Name)
	rec.SetData("file", fileName)
	rec.SetData("rows", rows)
	safeSend(rec, outputChan, controlChan, sendNilControlResponse)
}
