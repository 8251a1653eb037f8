package logic

import "time"

// Operator identifies the comparison applied to a source question's answer.
type Operator string

const (
	OperatorEquals              Operator = "Equals"
	OperatorNotEquals           Operator = "NotEquals"
	OperatorContains            Operator = "Contains"
	OperatorNotContains         Operator = "NotContains"
	OperatorGreaterThan         Operator = "GreaterThan"
	OperatorLessThan            Operator = "LessThan"
	OperatorGreaterThanOrEquals Operator = "GreaterThanOrEquals"
	OperatorLessThanOrEquals    Operator = "LessThanOrEquals"
	OperatorIsEmpty             Operator = "IsEmpty"
	OperatorIsNotEmpty          Operator = "IsNotEmpty"
	OperatorIsAnswered          Operator = "IsAnswered"
	OperatorIsNotAnswered       Operator = "IsNotAnswered"

	// OperatorExpression treats the rule's condition value as a CEL expression
	// evaluated with `answer` (the source answer) and `answers` (all recorded
	// answers keyed by question ID) in scope.
	OperatorExpression Operator = "Expression"
)

// RequiresValue reports whether the operator compares against a condition value.
// The presence operators test only whether an answer was recorded.
func (o Operator) RequiresValue() bool {
	switch o {
	case OperatorIsEmpty, OperatorIsNotEmpty, OperatorIsAnswered, OperatorIsNotAnswered:
		return false
	}
	return true
}

// Action is the visibility or navigation effect applied when a rule's condition holds.
type Action string

const (
	ActionShow      Action = "Show"
	ActionHide      Action = "Hide"
	ActionSkip      Action = "Skip"
	ActionJumpTo    Action = "JumpTo"
	ActionEndSurvey Action = "EndSurvey"
)

// RequiresTarget reports whether the action needs a target question.
func (a Action) RequiresTarget() bool {
	return a != ActionEndSurvey
}

// Rule is a single conditional logic statement attached to a question.
// QuestionID is the question the rule affects; SourceQuestionID is the earlier
// question whose answer is tested. Rules for the same question are evaluated in
// ascending Priority order, ties broken by insertion order.
type Rule struct {
	ID               string    `json:"id" bson:"_id,omitempty"`
	QuestionID       string    `json:"questionId" bson:"questionId"`
	SourceQuestionID string    `json:"sourceQuestionId" bson:"sourceQuestionId"`
	Operator         Operator  `json:"operator" bson:"operator"`
	ConditionValue   string    `json:"conditionValue" bson:"conditionValue"`
	Action           Action    `json:"action" bson:"action"`
	TargetQuestionID string    `json:"targetQuestionId,omitempty" bson:"targetQuestionId,omitempty"`
	Priority         int       `json:"priority" bson:"priority"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Question is the slice of survey metadata the engine needs: identity, position
// in survey order, and (informationally) the question type. The full question
// entity lives with the hosting application.
type Question struct {
	ID       string `json:"id"`
	SurveyID string `json:"surveyId,omitempty"`
	Order    int    `json:"order"`
	Type     string `json:"type,omitempty"`
}

// AnswerValue is a respondent's recorded answer for one question. By convention
// it is a string, a []string (multi-select), a numeric type, or nil when the
// question has not been answered. Anything else is compared through its string
// form and never causes an error.
type AnswerValue = any

// AnswerProvider supplies the current respondent's answers during evaluation.
// The second return is false when no answer has been recorded.
type AnswerProvider interface {
	Answer(questionID string) (AnswerValue, bool)
}

// AnswerMap is the trivial AnswerProvider over a snapshot map.
type AnswerMap map[string]AnswerValue

func (m AnswerMap) Answer(questionID string) (AnswerValue, bool) {
	v, ok := m[questionID]
	return v, ok
}

// State is the evaluated outcome for a question.
type State string

const (
	StateVisible State = "Visible"
	StateHidden  State = "Hidden"
	StateSkipped State = "Skipped"
	StateJumped  State = "Jumped"
	StateEnded   State = "Ended"
)

// Decision is the engine's verdict for one question: its visibility state, the
// redirect target for Skip/JumpTo outcomes, and the rule that produced it
// (empty when the question fell through to its default).
type Decision struct {
	QuestionID string `json:"questionId"`
	State      State  `json:"state"`
	Target     string `json:"target,omitempty"`
	RuleID     string `json:"ruleId,omitempty"`
}
