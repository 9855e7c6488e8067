package orchestrator

import (
	"regexp"
	"strings"
)

// Plan is the structure extracted from assistant text while in Plan work
// mode. It generalizes the shape of the teacher's DevPlan (dev/build_dev_plan.go:
// Analysis + ordered Steps) to a plain markdown plan parsed out of free
// assistant text, since this system asks the model to write its plan as
// prose rather than calling a dedicated record-plan tool.
type Plan struct {
	Summary string
	Steps   []string
}

var (
	planHeadingRe = regexp.MustCompile(`(?im)^#{1,3}\s*plan\b.*$`)
	planStepRe    = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+[.)])\s+(.+)$`)
)

// parsePlan looks for a "# Plan" (or "## Plan") heading in text and, if
// found, collects the following list items as steps. Returns nil if the
// text has no recognizable plan structure, per spec.md §4.6 step 5's "if
// present" condition.
func parsePlan(text string) *Plan {
	loc := planHeadingRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}

	body := text[loc[1]:]
	matches := planStepRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	steps := make([]string, 0, len(matches))
	for _, m := range matches {
		steps = append(steps, strings.TrimSpace(m[1]))
	}

	summary := strings.TrimSpace(text[:loc[0]])
	return &Plan{Summary: summary, Steps: steps}
}
