package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/dmorley/colsnap/logger"
)

type StatsFetcher interface {
	GetStats() []Stats
}

var DefaultStatsDumpFrequencySeconds = 5 // may be overridden via option SetStatsDumpFrequency below.

// PipeStatsManager collects the StepWatcher of every step in a running pipe
// and dumps their stats periodically while the pipe runs.
type PipeStatsManager struct {
	ticker              *time.Ticker
	tickerDone          chan struct{}
	tickerIsRunningFlag int32
	tickerFrequency     int
	mu                  sync.Mutex
	log                 logger.Logger
	mapStepStats        *ordered_map.OrderedMap // StepWatcher per step, in step creation order.
}

// SetStatsDumpFrequency returns a function that can be supplied as an option to NewPipeStats().
// A frequency of 0 disables stats dumping.
func SetStatsDumpFrequency(seconds int) func(m *PipeStatsManager) {
	return func(m *PipeStatsManager) {
		m.tickerFrequency = seconds
	}
}

func NewPipeStats(log logger.Logger, options ...func(m *PipeStatsManager)) *PipeStatsManager {
	m := &PipeStatsManager{log: log, tickerFrequency: DefaultStatsDumpFrequencySeconds}
	for _, option := range options {
		option(m)
	}
	m.tickerDone = make(chan struct{})
	m.mapStepStats = ordered_map.NewOrderedMap()
	return m
}

// AddStepWatcher creates a StepWatcher for the named step and registers it for dumping.
func (m *PipeStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw := NewStepWatcher(m.log, stepName)
	m.mapStepStats.Set(stepName, sw)
	return sw
}

func (m *PipeStatsManager) StartDumping() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if atomic.AddInt32(&m.tickerIsRunningFlag, 0) == 0 { // if we're not already dumping stats...
		if m.tickerFrequency > 0 { // if stats dumping is enabled...
			m.ticker = time.NewTicker(time.Second * time.Duration(m.tickerFrequency))
			atomic.StoreInt32(&m.tickerIsRunningFlag, 1)
			go func() {
				m.log.Debug("stats dumper ticker started")
				for {
					select {
					case <-m.tickerDone:
						m.log.Debug("stats dumper ticker stopped")
						return
					case <-m.ticker.C:
						m.logStats()
					}
				}
			}()
		} else {
			m.log.Debug("stats dumper disabled")
		}
	} else {
		m.log.Debug("stats dumper ticker already running")
	}
}

// StopDumping stops the ticker and dumps final stats,
// only if the ticker was running via a call to StartDumping().
func (m *PipeStatsManager) StopDumping() {
	m.mu.Lock()
	if atomic.AddInt32(&m.tickerIsRunningFlag, 0) > 0 { // if we started to dump stats...
		atomic.StoreInt32(&m.tickerIsRunningFlag, 0)
		m.ticker.Stop()
		m.tickerDone <- struct{}{} // cause the goroutine to exit (we can't close ticker.C)
		iter := m.mapStepStats.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			kv.Value.(*StepWatcher).CalculateStats() // calculate stats for the last time per step.
		}
		m.logStats()
	}
	m.mu.Unlock()
}

func (m *PipeStatsManager) logStats() {
	iter := m.mapStepStats.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		m.log.Info(kv.Value.(*StepWatcher).RenderStats().String())
	}
}

// GetStats implements interface StatsFetcher.
func (m *PipeStatsManager) GetStats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	iter := m.mapStepStats.IterFunc()
	statsList := make([]Stats, 0)
	for kv, ok := iter(); ok; kv, ok = iter() {
		statsList = append(statsList, kv.Value.(*StepWatcher).RenderStats())
	}
	return statsList
}
