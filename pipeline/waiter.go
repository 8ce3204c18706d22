package pipeline

import (
	"sync"
)

type StepStatus uint32

const (
	StepStatusStarting StepStatus = iota + 1
	StepStatusRunning
	StepStatusDone
)

// chainWaiter is a wrapper around sync.WaitGroup for one table's component chain.
// It hands out per-step waiters implementing the ComponentWaiter interface and
// records each step's last known status.
type chainWaiter struct {
	wg              sync.WaitGroup
	mapStepStatuses map[string]StepStatus
	mu              sync.RWMutex
}

func newChainWaiter() *chainWaiter {
	return &chainWaiter{mapStepStatuses: make(map[string]StepStatus)}
}

// newStepWaiter returns a *stepWaiter which provides access to the chainWaiter for a given step.
func (cw *chainWaiter) newStepWaiter(stepName string) *stepWaiter {
	cw.StoreStatus(stepName, StepStatusStarting)
	return &stepWaiter{stepName: stepName, cw: cw}
}

func (cw *chainWaiter) StoreStatus(stepName string, status StepStatus) {
	cw.mu.Lock()
	cw.mapStepStatuses[stepName] = status
	cw.mu.Unlock()
}

func (cw *chainWaiter) LoadStatus(stepName string) (retval StepStatus, ok bool) {
	cw.mu.RLock()
	retval, ok = cw.mapStepStatuses[stepName]
	cw.mu.RUnlock()
	return
}

func (cw *chainWaiter) Wait() {
	cw.wg.Wait()
}

// stepWaiter updates the parent waitGroup and records the step's status
// when Add() and Done() are called. It implements the ComponentWaiter interface.
type stepWaiter struct {
	cw       *chainWaiter
	stepName string
}

func (s *stepWaiter) Add() {
	s.cw.wg.Add(1)
	s.cw.StoreStatus(s.stepName, StepStatusRunning)
}

func (s *stepWaiter) Done() {
	s.cw.wg.Done()
	s.cw.StoreStatus(s.stepName, StepStatusDone)
}
