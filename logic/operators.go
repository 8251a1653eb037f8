package logic

import (
	"fmt"
	"strconv"
	"strings"
)

// operatorFunc compares a source answer against a rule's condition value.
// Implementations must tolerate any answer shape and never panic; malformed
// data makes the condition false rather than failing the evaluation.
type operatorFunc func(answer AnswerValue, condition string) bool

// operatorFuncs maps each comparison operator to its implementation.
// OperatorExpression is absent on purpose: it needs the engine's CEL
// environment and is dispatched there.
var operatorFuncs = map[Operator]operatorFunc{
	OperatorEquals:              evalEquals,
	OperatorNotEquals:           func(a AnswerValue, c string) bool { return !evalEquals(a, c) },
	OperatorContains:            evalContains,
	OperatorNotContains:         func(a AnswerValue, c string) bool { return !evalContains(a, c) },
	OperatorGreaterThan:         numericCompare(func(d int) bool { return d > 0 }),
	OperatorLessThan:            numericCompare(func(d int) bool { return d < 0 }),
	OperatorGreaterThanOrEquals: numericCompare(func(d int) bool { return d >= 0 }),
	OperatorLessThanOrEquals:    numericCompare(func(d int) bool { return d <= 0 }),
	OperatorIsAnswered:          func(a AnswerValue, _ string) bool { return isAnswered(a) },
	OperatorIsNotAnswered:       func(a AnswerValue, _ string) bool { return !isAnswered(a) },
	OperatorIsEmpty:             func(a AnswerValue, _ string) bool { return !isAnswered(a) },
	OperatorIsNotEmpty:          func(a AnswerValue, _ string) bool { return isAnswered(a) },
}

// evalOperator applies op to the answer. Unknown operators evaluate to false.
func evalOperator(op Operator, answer AnswerValue, condition string) bool {
	fn, ok := operatorFuncs[op]
	if !ok {
		return false
	}
	return fn(answer, condition)
}

// isAnswered reports whether a value counts as a recorded answer: non-nil,
// non-blank string, non-empty list. Whitespace-only text is unanswered.
func isAnswered(v AnswerValue) bool {
	switch a := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(a) != ""
	case []string:
		return len(a) > 0
	case []any:
		return len(a) > 0
	default:
		return true
	}
}

// normalizeAnswer renders an answer as the string it is compared through.
// Multi-select answers serialize to their comma-joined stored form.
func normalizeAnswer(v AnswerValue) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	case []string:
		return strings.Join(a, ",")
	case []any:
		parts := make([]string, len(a))
		for i, e := range a {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ",")
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(a), 'f', -1, 32)
	default:
		return fmt.Sprint(a)
	}
}

// answerList extracts a multi-select answer, if the value is one.
func answerList(v AnswerValue) ([]string, bool) {
	switch a := v.(type) {
	case []string:
		return a, true
	case []any:
		parts := make([]string, len(a))
		for i, e := range a {
			parts[i] = fmt.Sprint(e)
		}
		return parts, true
	}
	return nil, false
}

// evalEquals is case-sensitive string equality. A one-element list compares as
// its single value; longer lists compare against the serialized form exactly,
// with no implicit any-element match.
func evalEquals(answer AnswerValue, condition string) bool {
	if list, ok := answerList(answer); ok && len(list) == 1 {
		return list[0] == condition
	}
	return normalizeAnswer(answer) == condition
}

// evalContains is element membership for multi-select answers and substring
// containment for scalar text.
func evalContains(answer AnswerValue, condition string) bool {
	if list, ok := answerList(answer); ok {
		for _, v := range list {
			if v == condition {
				return true
			}
		}
		return false
	}
	return strings.Contains(normalizeAnswer(answer), condition)
}

// numericCompare builds an operator that parses both sides as floats and tests
// the comparison outcome. Either side failing to parse makes the rule false.
func numericCompare(match func(cmp int) bool) operatorFunc {
	return func(answer AnswerValue, condition string) bool {
		lhs, err1 := strconv.ParseFloat(strings.TrimSpace(normalizeAnswer(answer)), 64)
		rhs, err2 := strconv.ParseFloat(strings.TrimSpace(condition), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch {
		case lhs > rhs:
			return match(1)
		case lhs < rhs:
			return match(-1)
		default:
			return match(0)
		}
	}
}
