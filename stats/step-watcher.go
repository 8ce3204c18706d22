package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stream"
)

// StepWatcher captures throughput stats for one pipe step.
// The step calls StartWatching() when it begins consuming or producing rows
// and StopWatching() when it completes.
type StepWatcher struct {
	log             logger.Logger
	stepName        string
	rowCountPtr     *int64 // ptr to the rowCount owned by the step being watched.
	chanPtr         *chan stream.Record
	chanLen         int64
	startTime       time.Time
	rowsPerSecDelta int64
	rowsPerSecAvg   int64
	totalRows       int64
	priorRowCount   int64     // allows delta rows per sec between ticker timeouts.
	priorTime       time.Time // allows delta rows per sec between ticker timeouts.
	ticker          *time.Ticker
	tickerDone      chan struct{}
	isRunning       h.AtomBool
}

// Stats is a point-in-time snapshot of one step's counters.
type Stats struct {
	StepName           string `json:"stepName"`
	StatusText         string `json:"statusText"`
	ElapsedTimeSec     int    `json:"elapsedTimeSec"`
	TotalRowsProcessed int    `json:"totalRowsProcessed"`
	RowsPerSecondAvg   int    `json:"rowsPerSecondAvg"`
	RowsPerSecondDelta int    `json:"rowsPerSecondDelta"`
	OutputBufferLen    int    `json:"outputBufferLen"`
}

func NewStepWatcher(log logger.Logger, stepName string) *StepWatcher {
	return &StepWatcher{log: log, stepName: stepName, tickerDone: make(chan struct{})}
}

// StartWatching saves pointers to the step's row counter and output channel
// then recalculates stats on a ticker until StopWatching is called.
func (w *StepWatcher) StartWatching(rowCountPtr *int64, chanPtr *chan stream.Record) {
	w.rowCountPtr = rowCountPtr
	w.chanPtr = chanPtr
	w.startTime = time.Now()
	w.priorTime = w.startTime
	w.isRunning.Set(true)
	w.totalRows = 0
	w.CalculateStats()
	w.ticker = time.NewTicker(time.Second * c.StatsCaptureFrequencySeconds)
	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.CalculateStats()
			case <-w.tickerDone:
				return
			}
		}
	}()
}

func (w *StepWatcher) StopWatching() {
	w.ticker.Stop()
	w.tickerDone <- struct{}{} // stop the goroutine that calculates stats.
	w.CalculateStats()         // force final stats calculation.
	w.isRunning.Set(false)
	atomic.StoreInt64(&w.chanLen, 0)
}

func (w *StepWatcher) CalculateStats() {
	deltaTime := int64(time.Since(w.priorTime).Seconds())
	if deltaTime < 1 { // if we would divide by 0...
		deltaTime = 1
	}
	rowCount := atomic.AddInt64(w.rowCountPtr, 0)
	deltaRowCount := rowCount - w.priorRowCount
	atomic.StoreInt64(&w.rowsPerSecDelta, deltaRowCount/deltaTime)
	atomic.StoreInt64(&w.chanLen, int64(len(*w.chanPtr)))
	w.log.Debug("STATS: ", w.stepName, " processing ", w.rowsPerSecDelta, " rows per sec. Output channel length ", atomic.AddInt64(&w.chanLen, 0))
	atomic.StoreInt64(&w.priorRowCount, rowCount)
	w.priorTime = time.Now()
	atomic.AddInt64(&w.totalRows, deltaRowCount) // steps may restart so totals accumulate via deltas.
	atomic.StoreInt64(&w.rowsPerSecAvg,
		atomic.AddInt64(&w.totalRows, 0)/getNumSecondsSinceTimeOrOne(w.startTime))
}

// RenderStats gets a struct filled with stats at the point in time it is called.
func (w *StepWatcher) RenderStats() Stats {
	statusText := "complete"
	if w.isRunning.Get() {
		statusText = "running"
	}
	return Stats{
		StepName:           w.stepName,
		StatusText:         statusText,
		ElapsedTimeSec:     int(time.Since(w.startTime).Seconds()),
		TotalRowsProcessed: int(atomic.AddInt64(&w.totalRows, 0)),
		RowsPerSecondAvg:   int(atomic.AddInt64(&w.rowsPerSecAvg, 0)),
		RowsPerSecondDelta: int(atomic.AddInt64(&w.rowsPerSecDelta, 0)),
		OutputBufferLen:    int(atomic.AddInt64(&w.chanLen, 0)),
	}
}

// String formats the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v "+
			"elapsedTimeSec=%v "+
			"totalRowsProcessed=%v "+
			"rowsPerSecondAvg=%v "+
			"rowsPerSecondDelta=%v "+
			"outputBufferLen=%v",
		s.StepName, s.StatusText,
		s.ElapsedTimeSec,
		s.TotalRowsProcessed,
		s.RowsPerSecondAvg,
		s.RowsPerSecondDelta,
		s.OutputBufferLen,
	)
}

func getNumSecondsSinceTimeOrOne(t time.Time) (seconds int64) {
	seconds = int64(time.Since(t).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return
}
