package bridge

import (
	"sync"

	"glidecode/orchestrator"
)

// activeRun tracks the input channel and release callback for one in-flight
// orchestrator run, so a later tool_approval/tool_result request for the
// same session can forward a LoopInput into the orchestrator that is still
// awaiting it, and so the run's session lock is released exactly once, on
// LoopEventFinished.
type activeRun struct {
	input   chan<- orchestrator.LoopInput
	release func()
}

// activeRuns maps sessionId to its in-flight run. Unlike sessionLocks (which
// enforces at-most-one-orchestrator and is long-lived), this map only ever
// holds entries for the duration of a single run.
type activeRuns struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

func newActiveRuns() *activeRuns {
	return &activeRuns{runs: make(map[string]*activeRun)}
}

func (a *activeRuns) register(sessionId string, run *activeRun) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs[sessionId] = run
}

func (a *activeRuns) unregister(sessionId string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runs, sessionId)
}

func (a *activeRuns) get(sessionId string) (*activeRun, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	run, ok := a.runs[sessionId]
	return run, ok
}
