package orchestrator

import (
	"glidecode/common"
	"glidecode/utils"
)

const (
	explorationWarnThreshold    = 15
	explorationEscalateThreshold = 30

	repeatedFailureThreshold = 3
)

// explorationBudget tracks consecutive iterations where every tool call in
// the turn was read-only (ReadOnly category), per spec.md §4.6 step 8.
// Grounded on dev/llm_loop.go's NumSinceLastFeedback counter, which resets
// to zero whenever feedback is injected; here the reset condition is "any
// mutating call" instead of "feedback requested".
type explorationBudget struct {
	consecutiveReadOnlyIterations int
}

// observe updates the budget from one iteration's tool calls and reports
// whether a warning or escalation event should be emitted this iteration.
// warnAt/escalateAt override the package defaults; pass explorationWarnThreshold
// and explorationEscalateThreshold directly when no per-session override applies.
func (b *explorationBudget) observe(categories []common.ToolCategory, warnAt, escalateAt int) (warn, escalate bool) {
	allReadOnly := len(categories) > 0
	for _, c := range categories {
		if c != common.ToolCategoryReadOnly {
			allReadOnly = false
			break
		}
	}

	if !allReadOnly {
		b.consecutiveReadOnlyIterations = 0
		return false, false
	}

	b.consecutiveReadOnlyIterations++
	switch b.consecutiveReadOnlyIterations {
	case warnAt:
		return true, false
	case escalateAt:
		return false, true
	default:
		return false, false
	}
}

// failureTracker implements spec.md §4.6 step 10: a per-turn signature ->
// count map that breaks the turn once any (tool_name, stable_hash_of_args)
// pair has failed repeatedly, preventing infinite retry loops. One tracker
// is built per run and shared by all of that run's iterations.
type failureTracker struct {
	counts map[string]int
}

func newFailureTracker() *failureTracker {
	return &failureTracker{counts: make(map[string]int)}
}

// recordFailure records one failed call and reports whether its signature
// has now reached the repeat threshold.
func (f *failureTracker) recordFailure(toolName string, rawArgs []byte) bool {
	sig := toolName + ":" + utils.Hash256(string(rawArgs))
	f.counts[sig]++
	return f.counts[sig] >= repeatedFailureThreshold
}
