package logic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, question_id, source_question_id, operator, condition_value, action, target_question_id, priority, created_at, updated_at`

func scanRule(scan func(dest ...any) error) (*Rule, error) {
	var r Rule
	var target sql.NullString
	err := scan(
		&r.ID,
		&r.QuestionID,
		&r.SourceQuestionID,
		&r.Operator,
		&r.ConditionValue,
		&r.Action,
		&target,
		&r.Priority,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.TargetQuestionID = target.String
	return &r, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM question_logic
		WHERE id = $1
	`, id)

	rule, err := scanRule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresRuleStore) ListByQuestion(ctx context.Context, questionID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM question_logic
		WHERE question_id = $1
		ORDER BY priority ASC, created_at ASC
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return collectRules(rows)
}

func (s *PostgresRuleStore) ListBySurvey(ctx context.Context, surveyID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ql.id, ql.question_id, ql.source_question_id, ql.operator, ql.condition_value,
		       ql.action, ql.target_question_id, ql.priority, ql.created_at, ql.updated_at
		FROM question_logic ql
		JOIN questions q ON q.id = ql.question_id
		WHERE q.survey_id = $1
		ORDER BY q.order_index ASC, ql.priority ASC, ql.created_at ASC
	`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list survey rules: %w", err)
	}
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

func (s *PostgresRuleStore) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if rule.Priority == 0 {
		// Append after the question's existing rules.
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(priority), 0) + 1 FROM question_logic WHERE question_id = $1
		`, rule.QuestionID).Scan(&rule.Priority)
		if err != nil {
			return fmt.Errorf("failed to assign priority: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO question_logic (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rule.ID, rule.QuestionID, rule.SourceQuestionID, rule.Operator, rule.ConditionValue,
		rule.Action, nullable(rule.TargetQuestionID), rule.Priority, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE question_logic
		SET source_question_id = $1, operator = $2, condition_value = $3,
		    action = $4, target_question_id = $5, priority = $6, updated_at = $7
		WHERE id = $8
	`, rule.SourceQuestionID, rule.Operator, rule.ConditionValue, rule.Action,
		nullable(rule.TargetQuestionID), rule.Priority, rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}
	return nil
}

func (s *PostgresRuleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM question_logic WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// Reorder resequences a question's priorities inside one transaction, so a
// failed reorder leaves the previous sequence intact.
func (s *PostgresRuleStore) Reorder(ctx context.Context, questionID string, orderedIDs []string) ([]*Rule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reorder: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM question_logic WHERE question_id = $1 FOR UPDATE
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock rules: %w", err)
	}

	current := make(map[string]*Rule)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan rule id: %w", err)
		}
		current[id] = nil
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating rule ids: %w", err)
	}
	rows.Close()

	if err := checkReorderSet(current, orderedIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE question_logic SET priority = $1, updated_at = $2 WHERE id = $3
		`, i+1, now, id); err != nil {
			return nil, fmt.Errorf("failed to resequence rule %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reorder: %w", err)
	}

	return s.ListByQuestion(ctx, questionID)
}

// PostgresQuestionStore implements QuestionProvider over the questions table.
type PostgresQuestionStore struct {
	db *sql.DB
}

// NewPostgresQuestionStore creates a PostgreSQL-backed QuestionProvider.
func NewPostgresQuestionStore(db *sql.DB) *PostgresQuestionStore {
	return &PostgresQuestionStore{db: db}
}

func (s *PostgresQuestionStore) Questions(ctx context.Context, surveyID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, survey_id, order_index, type
		FROM questions
		WHERE survey_id = $1
		ORDER BY order_index ASC
	`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.Order, &q.Type); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}
