package logic

import (
	"fmt"
	"sort"
	"strings"
)

// Report is the outcome of validating a survey's rule set. Errors are
// structural problems the editing UI should surface; Warnings are advisory
// and never affect validity. Validation is itself advisory: an invalid rule
// set may still be persisted, and the evaluation engine degrades safely
// around it.
type Report struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether the rule set passed every structural check.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a survey's full rule set against its ordered question list.
// It reports dangling references, ordering violations, missing required
// fields, self-loops, and Skip/JumpTo cycles. It never returns an error and
// never mutates its inputs.
func Validate(rules []*Rule, questions []Question) Report {
	var report Report
	if len(rules) == 0 {
		return report
	}

	orderOf := make(map[string]int, len(questions))
	for _, q := range questions {
		orderOf[q.ID] = q.Order
	}

	for _, rule := range rules {
		srcOrder, srcOK := orderOf[rule.SourceQuestionID]
		if !srcOK {
			report.errorf("rule %s: source question %s does not exist", rule.ID, rule.SourceQuestionID)
		}

		if rule.Action.RequiresTarget() {
			if rule.TargetQuestionID == "" {
				report.errorf("rule %s: action %s requires a target question", rule.ID, rule.Action)
			} else if _, ok := orderOf[rule.TargetQuestionID]; !ok {
				report.errorf("rule %s: target question %s does not exist", rule.ID, rule.TargetQuestionID)
			}
		}

		// A question cannot branch on an answer that has not been collected yet.
		if ownOrder, ok := orderOf[rule.QuestionID]; ok && srcOK && srcOrder >= ownOrder {
			report.errorf("rule %s: source question %s must come before question %s in survey order",
				rule.ID, rule.SourceQuestionID, rule.QuestionID)
		}

		if rule.Operator.RequiresValue() {
			if strings.TrimSpace(rule.ConditionValue) == "" {
				report.errorf("rule %s: operator %s requires a condition value", rule.ID, rule.Operator)
			}
		} else if strings.TrimSpace(rule.ConditionValue) != "" {
			report.warnf("rule %s: condition value is ignored by operator %s", rule.ID, rule.Operator)
		}

		if isRedirect(rule.Action) && rule.TargetQuestionID == rule.QuestionID {
			report.errorf("rule %s: %s target is the rule's own question %s", rule.ID, rule.Action, rule.QuestionID)
		}
	}

	detectCycles(rules, questions, &report)
	return report
}

func isRedirect(a Action) bool {
	return a == ActionSkip || a == ActionJumpTo
}

// detectCycles runs depth-first search with recursion-stack tracking over the
// directed graph of Skip/JumpTo edges (question -> target). Each back-edge is
// reported once with the questions on the offending path.
func detectCycles(rules []*Rule, questions []Question, report *Report) {
	edges := make(map[string][]string)
	for _, rule := range rules {
		// Self-loops are already reported individually.
		if isRedirect(rule.Action) && rule.TargetQuestionID != "" && rule.TargetQuestionID != rule.QuestionID {
			edges[rule.QuestionID] = append(edges[rule.QuestionID], rule.TargetQuestionID)
		}
	}
	if len(edges) == 0 {
		return
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	seen := make(map[string]bool) // dedupes identical cycle reports

	var visit func(id string, path []string)
	visit = func(id string, path []string) {
		if onStack[id] {
			cycle := append(append([]string(nil), path...), id)
			msg := "cycle detected: " + strings.Join(cycle, " -> ")
			if !seen[msg] {
				seen[msg] = true
				report.errorf("%s", msg)
			}
			return
		}
		if visited[id] {
			return
		}
		visited[id] = true
		onStack[id] = true
		for _, next := range edges[id] {
			visit(next, append(path, id))
		}
		onStack[id] = false
	}

	// Walk in survey order so reports are deterministic.
	ordered := append([]Question(nil), questions...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for _, q := range ordered {
		if !visited[q.ID] {
			visit(q.ID, nil)
		}
	}
	// Edges can originate from questions missing from the list; those are
	// already reported as dangling, but walk them anyway so their cycles show.
	for id := range edges {
		if !visited[id] {
			visit(id, nil)
		}
	}
}
