package logic

import "context"

// CachedRuleStore wraps a RuleStore with a RulesCache. Per-question reads go
// through the cache; every mutation invalidates the touched question so the
// next read refills from the store. Survey-wide listings bypass the cache:
// they are editor-facing and comparatively rare.
type CachedRuleStore struct {
	store RuleStore
	cache RulesCache
}

// NewCachedRuleStore wraps store with cache.
func NewCachedRuleStore(store RuleStore, cache RulesCache) *CachedRuleStore {
	return &CachedRuleStore{store: store, cache: cache}
}

func (s *CachedRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	return s.store.Get(ctx, id)
}

func (s *CachedRuleStore) ListByQuestion(ctx context.Context, questionID string) ([]*Rule, error) {
	if cached := s.cache.Get(questionID); cached != nil {
		return cached, nil
	}

	rules, err := s.store.ListByQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(questionID, rules)
	return rules, nil
}

func (s *CachedRuleStore) ListBySurvey(ctx context.Context, surveyID string) ([]*Rule, error) {
	return s.store.ListBySurvey(ctx, surveyID)
}

func (s *CachedRuleStore) Create(ctx context.Context, rule *Rule) error {
	if err := s.store.Create(ctx, rule); err != nil {
		return err
	}
	s.cache.Invalidate(rule.QuestionID)
	return nil
}

func (s *CachedRuleStore) Update(ctx context.Context, rule *Rule) error {
	if err := s.store.Update(ctx, rule); err != nil {
		return err
	}
	s.cache.Invalidate(rule.QuestionID)
	return nil
}

func (s *CachedRuleStore) Delete(ctx context.Context, id string) error {
	// The rule's question is needed to invalidate; a miss on Get still
	// attempts the delete so the store stays authoritative.
	rule, err := s.store.Get(ctx, id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err == nil {
		s.cache.Invalidate(rule.QuestionID)
	} else {
		s.cache.InvalidateAll()
	}
	return nil
}

func (s *CachedRuleStore) Reorder(ctx context.Context, questionID string, orderedIDs []string) ([]*Rule, error) {
	rules, err := s.store.Reorder(ctx, questionID, orderedIDs)
	if err != nil {
		return nil, err
	}
	s.cache.Set(questionID, rules)
	return rules, nil
}
