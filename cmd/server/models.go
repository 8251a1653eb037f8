package main

import (
	"github.com/farid-asgarli/Survey-sub002/logic"
)

// API request and response models.

// CreateRuleRequest is the body for adding a logic rule to a question.
type CreateRuleRequest struct {
	SourceQuestionID string `json:"sourceQuestionId"`
	Operator         string `json:"operator"`
	ConditionValue   string `json:"conditionValue"`
	Action           string `json:"action"`
	TargetQuestionID string `json:"targetQuestionId,omitempty"`
	Priority         int    `json:"priority,omitempty"`
}

// UpdateRuleRequest is the body for replacing an existing rule.
type UpdateRuleRequest struct {
	SourceQuestionID string `json:"sourceQuestionId"`
	Operator         string `json:"operator"`
	ConditionValue   string `json:"conditionValue"`
	Action           string `json:"action"`
	TargetQuestionID string `json:"targetQuestionId,omitempty"`
	Priority         int    `json:"priority"`
}

// ReorderRequest carries the new rule ordering for a question. Ascending
// priority will follow the sequence exactly.
type ReorderRequest struct {
	RuleIDs []string `json:"ruleIds"`
}

// RulesListResponse wraps a rule list.
type RulesListResponse struct {
	Rules []*logic.Rule `json:"rules"`
}

// LogicMapResponse groups a survey's rules by the question they affect.
type LogicMapResponse struct {
	Questions map[string][]*logic.Rule `json:"questions"`
}

// AnswerForEvaluation is one recorded answer in an evaluation request. Value
// may be a string, an array of strings, or a number.
type AnswerForEvaluation struct {
	QuestionID string `json:"questionId"`
	Value      any    `json:"value"`
}

// EvaluateRequest is the body for evaluating a survey's logic against a
// respondent's answers.
type EvaluateRequest struct {
	Answers           []AnswerForEvaluation `json:"answers"`
	CurrentQuestionID string                `json:"currentQuestionId,omitempty"`
}

// EvaluateResponse is the evaluation outcome: a decision per question in
// survey order, the currently visible questions, the resolved next question
// when one was asked for, and whether the survey has ended.
type EvaluateResponse struct {
	Decisions        []logic.Decision `json:"decisions"`
	VisibleQuestions []string         `json:"visibleQuestions"`
	NextQuestionID   string           `json:"nextQuestionId,omitempty"`
	ShouldEnd        bool             `json:"shouldEnd"`
}
