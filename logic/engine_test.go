package logic

import "testing"

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func surveyQuestions(ids ...string) []Question {
	questions := make([]Question, len(ids))
	for i, id := range ids {
		questions[i] = Question{ID: id, SurveyID: "s1", Order: i + 1}
	}
	return questions
}

func TestEvaluateDefaultVisible(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	session := engine.NewSession(surveyQuestions("q1", "q2"), nil, AnswerMap{})

	d := session.Evaluate("q2")
	if d.State != StateVisible {
		t.Errorf("question with no rules should be visible, got %s", d.State)
	}
	if d.RuleID != "" {
		t.Errorf("default decision should carry no rule ID, got %q", d.RuleID)
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "low", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "Yes", Action: ActionHide, TargetQuestionID: "q2", Priority: 2},
		{ID: "high", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "Yes", Action: ActionShow, TargetQuestionID: "q2", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2"), rules, AnswerMap{"q1": "Yes"})

	d := session.Evaluate("q2")
	if d.State != StateVisible || d.RuleID != "high" {
		t.Errorf("priority 1 rule should win: got state %s from rule %q", d.State, d.RuleID)
	}
}

func TestEvaluateFallsThroughNonMatchingRules(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "miss", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "Yes", Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
		{ID: "hit", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "No", Action: ActionSkip, TargetQuestionID: "q3", Priority: 2},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "No"})

	d := session.Evaluate("q2")
	if d.State != StateSkipped || d.Target != "q3" || d.RuleID != "hit" {
		t.Errorf("expected skip to q3 from rule hit, got %+v", d)
	}
}

func TestEvaluateHide(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorNotEquals, ConditionValue: "Yes", Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2"), rules, AnswerMap{"q1": "No"})

	if d := session.Evaluate("q2"); d.State != StateHidden {
		t.Errorf("expected hidden, got %s", d.State)
	}
}

func TestEvaluateJumpTo(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q1", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "skip ahead", Action: ActionJumpTo, TargetQuestionID: "q4", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3", "q4"), rules, AnswerMap{"q1": "skip ahead"})

	d := session.Evaluate("q1")
	if d.State != StateJumped || d.Target != "q4" {
		t.Errorf("expected jump to q4, got %+v", d)
	}
}

func TestEvaluateInvalidTargetFallsBackToDefault(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q1", SourceQuestionID: "q1", Operator: OperatorIsAnswered, Action: ActionJumpTo, TargetQuestionID: "gone", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2"), rules, AnswerMap{"q1": "x"})

	d := session.Evaluate("q1")
	if d.State != StateVisible {
		t.Errorf("jump to a removed question should degrade to visible, got %s", d.State)
	}

	if next, ok := session.Next("q1"); !ok || next != "q2" {
		t.Errorf("flow should stay sequential, got (%q, %v)", next, ok)
	}
}

func TestEvaluateEndSurveyLatches(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "Done", Action: ActionEndSurvey, Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "Done"})

	if d := session.Evaluate("q2"); d.State != StateEnded || d.RuleID != "r1" {
		t.Fatalf("expected ended from r1, got %+v", d)
	}
	if !session.Ended() {
		t.Error("session should report ended")
	}
	// Every later evaluation, even of rule-free questions, reports ended.
	if d := session.Evaluate("q3"); d.State != StateEnded {
		t.Errorf("post-end evaluation should report ended, got %s", d.State)
	}
	if _, ok := session.Next("q2"); ok {
		t.Error("no next question after end of survey")
	}
}

func TestVisibleQuestionsIdempotent(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "No", Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "No"})

	first := session.VisibleQuestions()
	second := session.VisibleQuestions()
	if len(first) != 2 || first[0] != "q1" || first[1] != "q3" {
		t.Errorf("expected [q1 q3], got %v", first)
	}
	if len(second) != len(first) {
		t.Errorf("repeated calls must agree: %v then %v", first, second)
	}
}

func TestVisibleQuestionsStopsAtEndSurvey(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorIsAnswered, Action: ActionEndSurvey, Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "x"})

	visible := session.VisibleQuestions()
	if len(visible) != 1 || visible[0] != "q1" {
		t.Errorf("questions past an end-of-survey decision should not appear, got %v", visible)
	}
	// The walk itself must not latch the session.
	if session.Ended() {
		t.Error("VisibleQuestions must not mark the session ended")
	}
}

func TestVisibleQuestionsSkippedStillListed(t *testing.T) {
	// Skip and JumpTo affect navigation, not the rendered list, so a skipped
	// question does not hide the questions it would bypass.
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorIsAnswered, Action: ActionSkip, TargetQuestionID: "q3", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "x"})

	visible := session.VisibleQuestions()
	if len(visible) != 2 || visible[0] != "q1" || visible[1] != "q3" {
		t.Errorf("expected [q1 q3], got %v", visible)
	}
}

func TestNextSequential(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), nil, AnswerMap{})

	if next, ok := session.Next("q1"); !ok || next != "q2" {
		t.Errorf("expected q2, got (%q, %v)", next, ok)
	}
	if next, ok := session.Next("q3"); ok {
		t.Errorf("last question has no next, got %q", next)
	}
}

func TestNextSkipsHiddenQuestions(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "No", Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "No"})

	if next, ok := session.Next("q1"); !ok || next != "q3" {
		t.Errorf("hidden q2 should be passed over, got (%q, %v)", next, ok)
	}
}

func TestNextFollowsRedirect(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q1", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "jump", Action: ActionJumpTo, TargetQuestionID: "q4", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3", "q4"), rules, AnswerMap{"q1": "jump"})

	if next, ok := session.Next("q1"); !ok || next != "q4" {
		t.Errorf("expected redirect to q4, got (%q, %v)", next, ok)
	}
}

func TestNextUnknownQuestion(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	session := engine.NewSession(surveyQuestions("q1", "q2"), nil, AnswerMap{})

	if next, ok := session.Next("ghost"); ok {
		t.Errorf("unknown current question should yield no next, got %q", next)
	}
}

func TestNextStopsAtDownstreamEnd(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorIsAnswered, Action: ActionEndSurvey, Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "x"})

	if next, ok := session.Next("q1"); ok {
		t.Errorf("advancing into an end-of-survey decision should finish, got %q", next)
	}
}

func TestShowImpliesHidden(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowImpliesHidden = true
	engine := newTestEngine(t, cfg)
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "Yes", Action: ActionShow, TargetQuestionID: "q2", Priority: 1},
	}

	// Show rule does not fire: the gated question stays hidden.
	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "No"})
	if d := session.Evaluate("q2"); d.State != StateHidden {
		t.Errorf("gated question should default to hidden, got %s", d.State)
	}
	// Ungated questions are unaffected.
	if d := session.Evaluate("q3"); d.State != StateVisible {
		t.Errorf("ungated question should stay visible, got %s", d.State)
	}

	// Show rule fires: the question appears.
	session = engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "Yes"})
	if d := session.Evaluate("q2"); d.State != StateVisible {
		t.Errorf("matched Show rule should make the question visible, got %s", d.State)
	}
}

func TestShowImpliesHiddenOffByDefault(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "Yes", Action: ActionShow, TargetQuestionID: "q2", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2"), rules, AnswerMap{"q1": "No"})

	if d := session.Evaluate("q2"); d.State != StateVisible {
		t.Errorf("without the gating mode an unmatched Show rule leaves the question visible, got %s", d.State)
	}
}

func TestShouldEnd(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q3", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "quit", Action: ActionEndSurvey, Priority: 1},
	}

	session := engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "quit"})
	if !session.ShouldEnd() {
		t.Error("expected ShouldEnd to be true")
	}
	if session.Ended() {
		t.Error("ShouldEnd must not latch the session")
	}

	session = engine.NewSession(surveyQuestions("q1", "q2", "q3"), rules, AnswerMap{"q1": "continue"})
	if session.ShouldEnd() {
		t.Error("expected ShouldEnd to be false")
	}
}

func TestExpressionOperator(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorExpression, ConditionValue: `answer == "Yes" && answers["q0"] == "ok"`, Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
	}
	questions := []Question{
		{ID: "q0", Order: 1}, {ID: "q1", Order: 2}, {ID: "q2", Order: 3},
	}

	session := engine.NewSession(questions, rules, AnswerMap{"q0": "ok", "q1": "Yes"})
	if d := session.Evaluate("q2"); d.State != StateHidden {
		t.Errorf("expression should match and hide q2, got %s", d.State)
	}

	session = engine.NewSession(questions, rules, AnswerMap{"q0": "nope", "q1": "Yes"})
	if d := session.Evaluate("q2"); d.State != StateVisible {
		t.Errorf("expression should not match, got %s", d.State)
	}
}

func TestExpressionFailuresDegradeToFalse(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	testCases := []struct {
		name       string
		expression string
	}{
		{"compile error", `answer ==`},
		{"non-boolean result", `"just a string"`},
		{"missing answer key", `answers["absent"] == "x"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rules := []*Rule{
				{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorExpression, ConditionValue: tc.expression, Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
			}
			session := engine.NewSession(surveyQuestions("q1", "q2"), rules, AnswerMap{"q1": "Yes"})
			if d := session.Evaluate("q2"); d.State != StateHidden {
				return
			}
			t.Error("a failing expression must never match")
		})
	}
}

func TestCompileExpression(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	if err := engine.CompileExpression(`answer == "Yes"`); err != nil {
		t.Errorf("valid expression should compile: %v", err)
	}
	if err := engine.CompileExpression(`answer ==`); err == nil {
		t.Error("expected a compile error")
	}
}

func TestSessionWithNilAnswers(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	rules := []*Rule{
		{ID: "r1", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorIsNotAnswered, Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
	}
	session := engine.NewSession(surveyQuestions("q1", "q2"), rules, nil)

	if d := session.Evaluate("q2"); d.State != StateHidden {
		t.Errorf("unanswered source should hide q2, got %s", d.State)
	}
}

func TestSessionOrdersQuestionsByOrderField(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	questions := []Question{
		{ID: "q3", Order: 3}, {ID: "q1", Order: 1}, {ID: "q2", Order: 2},
	}
	session := engine.NewSession(questions, nil, AnswerMap{})

	visible := session.VisibleQuestions()
	if len(visible) != 3 || visible[0] != "q1" || visible[1] != "q2" || visible[2] != "q3" {
		t.Errorf("expected survey order [q1 q2 q3], got %v", visible)
	}
	if next, ok := session.Next("q1"); !ok || next != "q2" {
		t.Errorf("expected q2 after q1, got (%q, %v)", next, ok)
	}
}

// A small branching survey exercising several rule kinds together: q1 gates
// q2, q2's answer can jump past q3, and a sentinel answer ends the survey.
func TestBranchingScenario(t *testing.T) {
	questions := surveyQuestions("q1", "q2", "q3", "q4")
	rules := []*Rule{
		{ID: "gate", QuestionID: "q2", SourceQuestionID: "q1", Operator: OperatorNotEquals, ConditionValue: "Yes", Action: ActionHide, TargetQuestionID: "q2", Priority: 1},
		{ID: "jump", QuestionID: "q2", SourceQuestionID: "q2", Operator: OperatorEquals, ConditionValue: "expert", Action: ActionJumpTo, TargetQuestionID: "q4", Priority: 2},
		{ID: "bail", QuestionID: "q3", SourceQuestionID: "q1", Operator: OperatorEquals, ConditionValue: "abort", Action: ActionEndSurvey, Priority: 1},
	}
	engine := newTestEngine(t, DefaultConfig())

	t.Run("gate hides q2", func(t *testing.T) {
		session := engine.NewSession(questions, rules, AnswerMap{"q1": "No"})
		visible := session.VisibleQuestions()
		if len(visible) != 3 || visible[0] != "q1" || visible[1] != "q3" || visible[2] != "q4" {
			t.Errorf("expected [q1 q3 q4], got %v", visible)
		}
	})

	t.Run("expert answer jumps past q3", func(t *testing.T) {
		session := engine.NewSession(questions, rules, AnswerMap{"q1": "Yes", "q2": "expert"})
		if next, ok := session.Next("q2"); !ok || next != "q4" {
			t.Errorf("expected q4, got (%q, %v)", next, ok)
		}
	})

	t.Run("abort ends the survey at q3", func(t *testing.T) {
		session := engine.NewSession(questions, rules, AnswerMap{"q1": "abort"})
		visible := session.VisibleQuestions()
		if len(visible) != 1 || visible[0] != "q1" {
			t.Errorf("expected [q1], got %v", visible)
		}
		if !session.ShouldEnd() {
			t.Error("expected ShouldEnd")
		}
	})
}
