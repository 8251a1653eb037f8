package logic

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
)

// Config controls engine behavior.
type Config struct {
	// ShowImpliesHidden makes a question that carries at least one Show rule
	// default to hidden unless a Show rule fires. When false (the default),
	// questions stay visible whenever no rule matches.
	ShowImpliesHidden bool

	// ExpressionCostLimit caps CEL evaluation cost for Expression rules so a
	// pathological condition cannot stall survey rendering.
	ExpressionCostLimit uint64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ShowImpliesHidden:   false,
		ExpressionCostLimit: 1_000_000,
	}
}

// Engine evaluates conditional question logic. It owns the CEL environment
// for Expression rules and a cache of compiled programs; per-respondent state
// lives in Sessions. Safe for concurrent use by multiple sessions.
type Engine struct {
	cfg      Config
	env      *cel.Env
	programs map[string]cel.Program // expression source -> compiled program
	mu       sync.RWMutex
}

// NewEngine creates an engine. Expression rules see two variables: `answer`,
// the source question's answer, and `answers`, every recorded answer keyed by
// question ID.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ExpressionCostLimit == 0 {
		cfg.ExpressionCostLimit = DefaultConfig().ExpressionCostLimit
	}

	env, err := cel.NewEnv(
		cel.Variable("answer", cel.DynType),
		cel.Variable("answers", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// CompileExpression checks that a CEL condition compiles, for editor-side
// validation before an Expression rule is persisted. The compiled program is
// kept for later evaluation.
func (e *Engine) CompileExpression(expression string) error {
	_, err := e.program(expression)
	return err
}

// program returns the compiled program for an expression, compiling on first
// use. The cache is keyed by the expression source, so edited rules can never
// observe a stale program.
func (e *Engine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(e.cfg.ExpressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// evalExpression evaluates a CEL condition. Compile failures, evaluation
// failures, and non-boolean results all degrade to false; a bad rule must not
// break rendering.
func (e *Engine) evalExpression(expression string, vars map[string]any) bool {
	prog, err := e.program(expression)
	if err != nil {
		return false
	}
	out, _, err := prog.Eval(vars)
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Session is one respondent's evaluation pass: an immutable snapshot of the
// survey's ordered questions and rules plus the answers recorded so far.
// Evaluation never mutates the snapshot. Sessions are not safe for concurrent
// use; evaluation runs synchronously within a single request.
type Session struct {
	engine    *Engine
	questions []Question
	ruleIndex map[string][]*Rule // question ID -> rules, ascending priority
	allRules  []*Rule            // every rule, survey order then priority
	answers   AnswerProvider
	answerMap map[string]any // lazy, for Expression rules
	ended     bool
}

// NewSession snapshots the inputs into an evaluation session. Questions are
// ordered by their Order field; rules per question by ascending Priority with
// input order breaking ties.
func (e *Engine) NewSession(questions []Question, rules []*Rule, answers AnswerProvider) *Session {
	qs := append([]Question(nil), questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })

	index := make(map[string][]*Rule)
	for _, r := range rules {
		index[r.QuestionID] = append(index[r.QuestionID], r)
	}
	for id := range index {
		rs := index[id]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Priority < rs[j].Priority })
	}

	all := append([]*Rule(nil), rules...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority < all[j].Priority })

	if answers == nil {
		answers = AnswerMap(nil)
	}

	return &Session{
		engine:    e,
		questions: qs,
		ruleIndex: index,
		allRules:  all,
		answers:   answers,
	}
}

// Ended reports whether an EndSurvey rule has fired in this session.
func (s *Session) Ended() bool {
	return s.ended
}

// Evaluate computes the decision for one question. Rules attached to the
// question are tried in ascending priority; the first rule whose condition
// holds determines the outcome and no later rule is consulted. With no match
// the question falls through to its default visibility. Once any evaluation
// triggers EndSurvey, every subsequent call reports Ended for the rest of the
// session.
func (s *Session) Evaluate(questionID string) Decision {
	if s.ended {
		return Decision{QuestionID: questionID, State: StateEnded}
	}
	d := s.decide(questionID)
	if d.State == StateEnded {
		s.ended = true
	}
	return d
}

// decide is Evaluate without the end-of-survey latch. VisibleQuestions and
// Next use it so that repeated calls over the same snapshot stay idempotent.
func (s *Session) decide(questionID string) Decision {
	rules := s.ruleIndex[questionID]

	for _, rule := range rules {
		if !s.conditionHolds(rule) {
			continue
		}

		switch rule.Action {
		case ActionShow:
			return Decision{QuestionID: questionID, State: StateVisible, RuleID: rule.ID}
		case ActionHide:
			return Decision{QuestionID: questionID, State: StateHidden, RuleID: rule.ID}
		case ActionSkip, ActionJumpTo:
			// The validator catches bad targets, but a stale snapshot can
			// still carry one; degrade to the default sequential decision.
			if !s.questionExists(rule.TargetQuestionID) || rule.TargetQuestionID == questionID {
				return s.defaultDecision(questionID, rules)
			}
			state := StateSkipped
			if rule.Action == ActionJumpTo {
				state = StateJumped
			}
			return Decision{QuestionID: questionID, State: state, Target: rule.TargetQuestionID, RuleID: rule.ID}
		case ActionEndSurvey:
			return Decision{QuestionID: questionID, State: StateEnded, RuleID: rule.ID}
		}
	}

	return s.defaultDecision(questionID, rules)
}

// defaultDecision is the no-rule-matched outcome: visible with sequential
// flow, or hidden when ShowImpliesHidden is set and the question is gated by
// Show rules.
func (s *Session) defaultDecision(questionID string, rules []*Rule) Decision {
	if s.engine.cfg.ShowImpliesHidden {
		for _, r := range rules {
			if r.Action == ActionShow {
				return Decision{QuestionID: questionID, State: StateHidden}
			}
		}
	}
	return Decision{QuestionID: questionID, State: StateVisible}
}

// conditionHolds evaluates a rule's condition against the answer snapshot.
func (s *Session) conditionHolds(rule *Rule) bool {
	answer, _ := s.answers.Answer(rule.SourceQuestionID)
	if rule.Operator == OperatorExpression {
		return s.engine.evalExpression(rule.ConditionValue, map[string]any{
			"answer":  answer,
			"answers": s.answerSnapshot(),
		})
	}
	return evalOperator(rule.Operator, answer, rule.ConditionValue)
}

// answerSnapshot materializes the provider's answers for the survey's
// questions, built once per session for Expression rules.
func (s *Session) answerSnapshot() map[string]any {
	if s.answerMap == nil {
		s.answerMap = make(map[string]any, len(s.questions))
		for _, q := range s.questions {
			if v, ok := s.answers.Answer(q.ID); ok {
				s.answerMap[q.ID] = v
			}
		}
	}
	return s.answerMap
}

func (s *Session) questionExists(id string) bool {
	for _, q := range s.questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// VisibleQuestions returns, in survey order, the questions a respondent
// should currently see. A question whose decision ends the survey cuts the
// list off at that point.
func (s *Session) VisibleQuestions() []string {
	visible := make([]string, 0, len(s.questions))
	for _, q := range s.questions {
		d := s.decide(q.ID)
		if d.State == StateEnded {
			break
		}
		if d.State == StateVisible {
			visible = append(visible, q.ID)
		}
	}
	return visible
}

// Next resolves the question to present after currentQuestionID. A matched
// Skip/JumpTo redirects to its target; EndSurvey (or an already-ended
// session) yields no next question; otherwise flow advances to the next
// visible question in survey order. The second return is false when the
// survey is over.
func (s *Session) Next(currentQuestionID string) (string, bool) {
	if s.ended {
		return "", false
	}

	d := s.Evaluate(currentQuestionID)
	switch d.State {
	case StateEnded:
		return "", false
	case StateSkipped, StateJumped:
		return d.Target, true
	}

	idx := -1
	for i, q := range s.questions {
		if q.ID == currentQuestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}

	for _, q := range s.questions[idx+1:] {
		next := s.decide(q.ID)
		if next.State == StateEnded {
			return "", false
		}
		if next.State == StateVisible {
			return q.ID, true
		}
	}
	return "", false
}

// ShouldEnd reports whether any EndSurvey rule's condition holds against the
// current answers, in priority order. It does not latch the session.
func (s *Session) ShouldEnd() bool {
	for _, rule := range s.allRules {
		if rule.Action != ActionEndSurvey {
			continue
		}
		if s.conditionHolds(rule) {
			return true
		}
	}
	return false
}
