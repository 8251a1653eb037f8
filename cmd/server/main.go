package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/farid-asgarli/Survey-sub002/internal/config"
	"github.com/farid-asgarli/Survey-sub002/internal/logger"
	"github.com/farid-asgarli/Survey-sub002/logic"
)

// Server hosts the question-logic API over a RuleStore, a QuestionProvider,
// and the evaluation engine.
type Server struct {
	store     logic.RuleStore
	questions logic.QuestionProvider
	engine    *logic.Engine
	router    *chi.Mux

	db          *sql.DB
	mongoClient *mongo.Client
}

// NewServer wires the configured store backend, cache, and engine.
func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db
		s.store = logic.NewPostgresRuleStore(db)
		s.questions = logic.NewPostgresQuestionStore(db)

	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("failed to ping mongo: %w", err)
		}
		s.mongoClient = client
		db := client.Database(cfg.MongoDB)
		questionStore := logic.NewMongoQuestionStore(db)
		s.questions = questionStore
		s.store = logic.NewMongoRuleStore(db, questionStore.SurveyOf)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	cacheConfig := logic.CacheConfig{TTL: cfg.CacheTTL}
	var cache logic.RulesCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = logic.NewRedisRulesCache(client, cacheConfig)
		logger.Logger.Info("using redis rules cache", "addr", cfg.RedisAddr)
	} else {
		cache = logic.NewInMemoryRulesCache(cacheConfig)
	}
	s.store = logic.NewCachedRuleStore(s.store, cache)

	engine, err := logic.NewEngine(logic.Config{ShowImpliesHidden: cfg.ShowImpliesHidden})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	s.engine = engine

	s.setupRoutes()
	return s, nil
}

// Close releases backend connections.
func (s *Server) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.mongoClient != nil {
		s.mongoClient.Disconnect(context.Background())
	}
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/surveys/{surveyID}", func(r chi.Router) {
		r.Get("/logic", s.handleLogicMap)
		r.Get("/logic/validation", s.handleValidation)
		r.Post("/logic/evaluate", s.handleEvaluate)

		r.Route("/questions/{questionID}/logic", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Post("/reorder", s.handleReorderRules)
			r.Put("/{ruleID}", s.handleUpdateRule)
			r.Delete("/{ruleID}", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")

	rules, err := s.store.ListByQuestion(r.Context(), questionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []*logic.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rules})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SourceQuestionID == "" {
		respondError(w, http.StatusBadRequest, "sourceQuestionId is required", nil)
		return
	}

	rule := &logic.Rule{
		QuestionID:       questionID,
		SourceQuestionID: req.SourceQuestionID,
		Operator:         logic.Operator(req.Operator),
		ConditionValue:   req.ConditionValue,
		Action:           logic.Action(req.Action),
		TargetQuestionID: req.TargetQuestionID,
		Priority:         req.Priority,
	}

	// Expression conditions must at least compile before they are stored;
	// everything else is advisory and checked by the validation endpoint.
	if rule.Operator == logic.OperatorExpression {
		if err := s.engine.CompileExpression(rule.ConditionValue); err != nil {
			respondError(w, http.StatusBadRequest, "invalid expression", err)
			return
		}
	}

	if err := s.store.Create(r.Context(), rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to create rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")
	ruleID := chi.URLParam(r, "ruleID")

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := &logic.Rule{
		ID:               ruleID,
		QuestionID:       questionID,
		SourceQuestionID: req.SourceQuestionID,
		Operator:         logic.Operator(req.Operator),
		ConditionValue:   req.ConditionValue,
		Action:           logic.Action(req.Action),
		TargetQuestionID: req.TargetQuestionID,
		Priority:         req.Priority,
	}

	if rule.Operator == logic.OperatorExpression {
		if err := s.engine.CompileExpression(rule.ConditionValue); err != nil {
			respondError(w, http.StatusBadRequest, "invalid expression", err)
			return
		}
	}

	if err := s.store.Update(r.Context(), rule); err != nil {
		respondError(w, http.StatusNotFound, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	if err := s.store.Delete(r.Context(), ruleID); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderRules(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.RuleIDs) == 0 {
		respondError(w, http.StatusBadRequest, "ruleIds is required", nil)
		return
	}

	rules, err := s.store.Reorder(r.Context(), questionID, req.RuleIDs)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to reorder rules", err)
		return
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rules})
}

func (s *Server) handleLogicMap(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")

	rules, err := s.store.ListBySurvey(r.Context(), surveyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list survey rules", err)
		return
	}

	grouped := make(map[string][]*logic.Rule)
	for _, rule := range rules {
		grouped[rule.QuestionID] = append(grouped[rule.QuestionID], rule)
	}
	respondJSON(w, http.StatusOK, LogicMapResponse{Questions: grouped})
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")

	questions, err := s.questions.Questions(r.Context(), surveyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load questions", err)
		return
	}
	rules, err := s.store.ListBySurvey(r.Context(), surveyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list survey rules", err)
		return
	}

	report := logic.Validate(rules, questions)
	respondJSON(w, http.StatusOK, map[string]any{
		"isValid":  report.Valid(),
		"errors":   report.Errors,
		"warnings": report.Warnings,
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	questions, err := s.questions.Questions(r.Context(), surveyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load questions", err)
		return
	}
	rules, err := s.store.ListBySurvey(r.Context(), surveyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list survey rules", err)
		return
	}

	answers := logic.AnswerMap{}
	for _, a := range req.Answers {
		answers[a.QuestionID] = a.Value
	}

	session := s.engine.NewSession(questions, rules, answers)

	decisions := make([]logic.Decision, 0, len(questions))
	for _, q := range questions {
		decisions = append(decisions, session.Evaluate(q.ID))
	}

	resp := EvaluateResponse{
		Decisions:        decisions,
		VisibleQuestions: session.VisibleQuestions(),
		ShouldEnd:        session.Ended(),
	}
	if req.CurrentQuestionID != "" {
		// Resolve navigation on a fresh session so the decision loop above
		// cannot have latched an end-of-survey state prematurely.
		nav := s.engine.NewSession(questions, rules, answers)
		if next, ok := nav.Next(req.CurrentQuestionID); ok {
			resp.NextQuestionID = next
		} else {
			resp.ShouldEnd = resp.ShouldEnd || nav.Ended()
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Logger.Info("server starting", "port", cfg.HTTPPort, "backend", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Logger.Error("server shutdown error", "error", err)
	}
	logger.Logger.Info("server stopped")
}
