package logic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RuleStore is the persistence boundary for logic rules. Implementations own
// storage concerns entirely; the engine only ever sees immutable snapshots
// fetched through this interface. Storage errors propagate to the caller
// as-is, retries are the caller's business.
type RuleStore interface {
	// Get retrieves a rule by ID.
	Get(ctx context.Context, id string) (*Rule, error)

	// ListByQuestion returns a question's rules in ascending priority order.
	ListByQuestion(ctx context.Context, questionID string) ([]*Rule, error)

	// ListBySurvey returns every rule in the survey, grouped by question in
	// survey order and by ascending priority within a question.
	ListBySurvey(ctx context.Context, surveyID string) ([]*Rule, error)

	// Create stores a new rule. A missing ID is generated; a zero Priority
	// places the rule after the question's existing rules.
	Create(ctx context.Context, rule *Rule) error

	// Update replaces an existing rule.
	Update(ctx context.Context, rule *Rule) error

	// Delete removes a rule.
	Delete(ctx context.Context, id string) error

	// Reorder resequences a question's rule priorities to match orderedIDs
	// exactly (ascending from 1). Every current rule ID must appear exactly
	// once; otherwise nothing changes. Returns the rules in their new order.
	Reorder(ctx context.Context, questionID string, orderedIDs []string) ([]*Rule, error)
}

// QuestionProvider supplies the ordered question list for a survey. Backed by
// whatever owns the survey schema; the engine and validator only consume it.
type QuestionProvider interface {
	Questions(ctx context.Context, surveyID string) ([]Question, error)
}

// InMemoryRuleStore implements RuleStore over a map, for tests and embedded
// use. Thread-safe with an RWMutex.
type InMemoryRuleStore struct {
	rules    map[string]*Rule
	surveyOf map[string]string // question ID -> survey ID, for ListBySurvey
	seq      int               // insertion order, breaks priority ties
	order    map[string]int
	mu       sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules:    make(map[string]*Rule),
		surveyOf: make(map[string]string),
		order:    make(map[string]int),
	}
}

// RegisterQuestion associates a question with a survey so ListBySurvey can
// group rules. The SQL and Mongo stores get this from their schema instead.
func (s *InMemoryRuleStore) RegisterQuestion(questionID, surveyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveyOf[questionID] = surveyID
}

func (s *InMemoryRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	c := *rule
	return &c, nil
}

func (s *InMemoryRuleStore) ListByQuestion(ctx context.Context, questionID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(r *Rule) bool { return r.QuestionID == questionID }), nil
}

func (s *InMemoryRuleStore) ListBySurvey(ctx context.Context, surveyID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(r *Rule) bool { return s.surveyOf[r.QuestionID] == surveyID }), nil
}

// listLocked copies matching rules sorted by question, priority, insertion.
func (s *InMemoryRuleStore) listLocked(match func(*Rule) bool) []*Rule {
	var out []*Rule
	for _, r := range s.rules {
		if match(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return s.order[out[i].ID] < s.order[out[j].ID]
	})
	return out
}

func (s *InMemoryRuleStore) Create(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	if rule.Priority == 0 {
		max := 0
		for _, r := range s.rules {
			if r.QuestionID == rule.QuestionID && r.Priority > max {
				max = r.Priority
			}
		}
		rule.Priority = max + 1
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	c := *rule
	s.rules[rule.ID] = &c
	s.seq++
	s.order[rule.ID] = s.seq
	return nil
}

func (s *InMemoryRuleStore) Update(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[rule.ID]
	if !ok {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	c := *rule
	s.rules[rule.ID] = &c
	return nil
}

func (s *InMemoryRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	delete(s.rules, id)
	delete(s.order, id)
	return nil
}

func (s *InMemoryRuleStore) Reorder(ctx context.Context, questionID string, orderedIDs []string) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]*Rule)
	for _, r := range s.rules {
		if r.QuestionID == questionID {
			current[r.ID] = r
		}
	}

	if err := checkReorderSet(current, orderedIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]*Rule, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		r := current[id]
		r.Priority = i + 1
		r.UpdatedAt = now
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

// checkReorderSet verifies orderedIDs is exactly the question's rule set, so
// a reorder either fully applies or leaves priorities untouched.
func checkReorderSet(current map[string]*Rule, orderedIDs []string) error {
	if len(orderedIDs) != len(current) {
		return fmt.Errorf("reorder needs all %d rule ids, got %d", len(current), len(orderedIDs))
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := current[id]; !ok {
			return fmt.Errorf("rule %s does not belong to the question", id)
		}
		if seen[id] {
			return fmt.Errorf("rule %s appears twice in the reorder", id)
		}
		seen[id] = true
	}
	return nil
}
