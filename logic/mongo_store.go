package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRuleStore implements RuleStore over a MongoDB collection. Rules carry
// a surveyId field so ListBySurvey does not need a join.
type MongoRuleStore struct {
	collection *mongo.Collection
	surveyOf   func(ctx context.Context, questionID string) (string, error)
}

// NewMongoRuleStore creates a Mongo-backed RuleStore. surveyOf resolves a
// question's survey for new rules; pass nil when ListBySurvey is unused.
func NewMongoRuleStore(db *mongo.Database, surveyOf func(ctx context.Context, questionID string) (string, error)) *MongoRuleStore {
	return &MongoRuleStore{
		collection: db.Collection("question_logic"),
		surveyOf:   surveyOf,
	}
}

// mongoRule wraps Rule with the denormalized survey ID.
type mongoRule struct {
	Rule     `bson:",inline"`
	SurveyID string `bson:"surveyId,omitempty"`
}

func (s *MongoRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	var doc mongoRule
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	r := doc.Rule
	return &r, nil
}

func (s *MongoRuleStore) ListByQuestion(ctx context.Context, questionID string) ([]*Rule, error) {
	return s.list(ctx, bson.M{"questionId": questionID})
}

func (s *MongoRuleStore) ListBySurvey(ctx context.Context, surveyID string) ([]*Rule, error) {
	return s.list(ctx, bson.M{"surveyId": surveyID})
}

func (s *MongoRuleStore) list(ctx context.Context, filter bson.M) ([]*Rule, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "questionId", Value: 1},
		{Key: "priority", Value: 1},
		{Key: "createdAt", Value: 1},
	})
	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cur.Close(ctx)

	var rulesList []*Rule
	for cur.Next(ctx) {
		var doc mongoRule
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		r := doc.Rule
		rulesList = append(rulesList, &r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

func (s *MongoRuleStore) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if rule.Priority == 0 {
		next, err := s.nextPriority(ctx, rule.QuestionID)
		if err != nil {
			return err
		}
		rule.Priority = next
	}

	doc := mongoRule{Rule: *rule}
	if s.surveyOf != nil {
		surveyID, err := s.surveyOf(ctx, rule.QuestionID)
		if err != nil {
			return fmt.Errorf("failed to resolve survey for question %s: %w", rule.QuestionID, err)
		}
		doc.SurveyID = surveyID
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (s *MongoRuleStore) nextPriority(ctx context.Context, questionID string) (int, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "priority", Value: -1}})
	var doc mongoRule
	err := s.collection.FindOne(ctx, bson.M{"questionId": questionID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to assign priority: %w", err)
	}
	return doc.Priority + 1, nil
}

func (s *MongoRuleStore) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	update := bson.M{"$set": bson.M{
		"sourceQuestionId": rule.SourceQuestionID,
		"operator":         rule.Operator,
		"conditionValue":   rule.ConditionValue,
		"action":           rule.Action,
		"targetQuestionId": rule.TargetQuestionID,
		"priority":         rule.Priority,
		"updatedAt":        rule.UpdatedAt,
	}}
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": rule.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}
	return nil
}

func (s *MongoRuleStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// MongoQuestionStore implements QuestionProvider over a questions collection.
type MongoQuestionStore struct {
	collection *mongo.Collection
}

// NewMongoQuestionStore creates a Mongo-backed QuestionProvider.
func NewMongoQuestionStore(db *mongo.Database) *MongoQuestionStore {
	return &MongoQuestionStore{collection: db.Collection("questions")}
}

type mongoQuestion struct {
	ID       string `bson:"_id"`
	SurveyID string `bson:"surveyId"`
	Order    int    `bson:"order"`
	Type     string `bson:"type,omitempty"`
}

func (s *MongoQuestionStore) Questions(ctx context.Context, surveyID string) ([]Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}})
	cur, err := s.collection.Find(ctx, bson.M{"surveyId": surveyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer cur.Close(ctx)

	var questions []Question
	for cur.Next(ctx) {
		var doc mongoQuestion
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode question: %w", err)
		}
		questions = append(questions, Question{
			ID:       doc.ID,
			SurveyID: doc.SurveyID,
			Order:    doc.Order,
			Type:     doc.Type,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// SurveyOf resolves a question's survey, for MongoRuleStore's denormalized
// surveyId field.
func (s *MongoQuestionStore) SurveyOf(ctx context.Context, questionID string) (string, error) {
	var doc mongoQuestion
	err := s.collection.FindOne(ctx, bson.M{"_id": questionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", fmt.Errorf("question %s not found", questionID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get question: %w", err)
	}
	return doc.SurveyID, nil
}

func (s *MongoRuleStore) Reorder(ctx context.Context, questionID string, orderedIDs []string) ([]*Rule, error) {
	existing, err := s.ListByQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	current := make(map[string]*Rule, len(existing))
	for _, r := range existing {
		current[r.ID] = r
	}
	if err := checkReorderSet(current, orderedIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": bson.M{"priority": i + 1, "updatedAt": now}}))
	}
	if _, err := s.collection.BulkWrite(ctx, models); err != nil {
		return nil, fmt.Errorf("failed to resequence rules: %w", err)
	}

	return s.ListByQuestion(ctx, questionID)
}
