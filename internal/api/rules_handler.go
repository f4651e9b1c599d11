package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recon-rules/internal/models"
	"recon-rules/internal/repository"
)

// RuleStore is the rule persistence surface the handler needs
type RuleStore interface {
	Load(ctx context.Context) ([]models.Rule, error)
	Get(ctx context.Context, ruleID string) (*models.Rule, error)
	Upsert(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, ruleID string) (int, error)
	EnsureSchema(ctx context.Context) error
	SeedDefaults(ctx context.Context) (int, error)
}

// ClassificationService runs the engine over lines
type ClassificationService interface {
	RunBatch(ctx context.Context, lineIDs []string, scope models.RuleScope, origin models.RunOrigin) (*models.BatchResult, error)
	EvaluateForDebug(ctx context.Context, lineID string, scope models.RuleScope) (*models.DebugEvaluation, error)
}

// RulesHandler handles HTTP requests for rule management and runs
type RulesHandler struct {
	store   RuleStore
	service ClassificationService
	logger  *zap.Logger
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(store RuleStore, service ClassificationService, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{
		store:   store,
		service: service,
		logger:  logger,
	}
}

// List returns the full decision table ordered by priority
// GET /api/v1/rules
func (h *RulesHandler) List(c *gin.Context) {
	start := time.Now()

	rules, err := h.store.Load(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load rules", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to load rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"count":              len(rules),
		},
	})
}

// Get returns a single rule
// GET /api/v1/rules/:ruleId
func (h *RulesHandler) Get(c *gin.Context) {
	ruleID := c.Param("ruleId")
	if ruleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID is required"})
		return
	}

	rule, err := h.store.Get(c.Request.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		h.logger.Error("failed to get rule", zap.Error(err), zap.String("rule_id", ruleID))
		c.JSON(statusFor(err), gin.H{"error": "Failed to get rule"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// Upsert creates or replaces a rule
// PUT /api/v1/rules/:ruleId
func (h *RulesHandler) Upsert(c *gin.Context) {
	ruleID := c.Param("ruleId")
	if ruleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID is required"})
		return
	}

	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		h.logger.Warn("invalid rule payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule.ID = ruleID
	if err := rule.Validate(); err != nil {
		h.logger.Warn("rule validation failed", zap.Error(err), zap.String("rule_id", ruleID))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	if err := h.store.Upsert(c.Request.Context(), &rule); err != nil {
		h.logger.Error("failed to upsert rule", zap.Error(err), zap.String("rule_id", ruleID))
		c.JSON(statusFor(err), gin.H{"error": "Failed to save rule"})
		return
	}

	h.logger.Info("rule saved",
		zap.String("rule_id", ruleID),
		zap.Int("priority", rule.Priority),
		zap.Bool("enabled", rule.Enabled),
		zap.Duration("duration", time.Since(start)))

	c.JSON(http.StatusOK, gin.H{
		"rule": rule,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"operation":          "upsert",
		},
	})
}

// Delete removes a rule
// DELETE /api/v1/rules/:ruleId
func (h *RulesHandler) Delete(c *gin.Context) {
	ruleID := c.Param("ruleId")
	if ruleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID is required"})
		return
	}

	count, err := h.store.Delete(c.Request.Context(), ruleID)
	if err != nil {
		h.logger.Error("failed to delete rule", zap.Error(err), zap.String("rule_id", ruleID))
		c.JSON(statusFor(err), gin.H{"error": "Failed to delete rule"})
		return
	}

	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}

	h.logger.Info("rule deleted", zap.String("rule_id", ruleID))
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted", "deleted": count})
}

// PrepareStorage creates or migrates the rule table. Additive and safe to
// call repeatedly; also run automatically at startup.
// POST /api/v1/rules/storage
func (h *RulesHandler) PrepareStorage(c *gin.Context) {
	start := time.Now()

	if err := h.store.EnsureSchema(c.Request.Context()); err != nil {
		h.logger.Error("failed to prepare rule storage", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to prepare rule storage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Rule storage ready",
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"operation":          "prepare_storage",
		},
	})
}

// SeedDefaults installs the built-in rule set
// POST /api/v1/rules/seed
func (h *RulesHandler) SeedDefaults(c *gin.Context) {
	start := time.Now()

	count, err := h.store.SeedDefaults(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to seed default rules", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to seed default rules"})
		return
	}

	h.logger.Info("default rules seeded",
		zap.Int("count", count),
		zap.Duration("duration", time.Since(start)))

	c.JSON(http.StatusOK, gin.H{
		"message": "Default rules seeded",
		"seeded":  count,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"operation":          "seed_defaults",
		},
	})
}

// RunNow reclassifies the requested lines against the current rule set
// POST /api/v1/rules/run
func (h *RulesHandler) RunNow(c *gin.Context) {
	var req models.RunRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid run request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	scope := req.Scope
	if scope == "" {
		scope = models.ScopeImport
	}
	if !scope.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope"})
		return
	}

	start := time.Now()
	result, err := h.service.RunBatch(c.Request.Context(), req.LineIDs, scope, models.OriginRunNow)
	if err != nil {
		h.logger.Error("batch run failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to run rules"})
		return
	}

	h.logger.Info("manual batch run completed",
		zap.String("run_id", result.RunID.String()),
		zap.Int("requested", len(req.LineIDs)),
		zap.Int("classified", result.Classified),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"operation":          "run_now",
		},
	})
}

// Debug evaluates a single line without writing anything and returns the
// derived context plus the full rule-by-rule trace
// GET /api/v1/rules/debug/:lineId
func (h *RulesHandler) Debug(c *gin.Context) {
	lineID := c.Param("lineId")
	if lineID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Line ID is required"})
		return
	}

	scope := models.RuleScope(c.DefaultQuery("scope", string(models.ScopeImport)))
	if !scope.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope"})
		return
	}

	start := time.Now()
	result, err := h.service.EvaluateForDebug(c.Request.Context(), lineID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Line not found"})
			return
		}
		h.logger.Error("debug evaluation failed", zap.Error(err), zap.String("line_id", lineID))
		c.JSON(statusFor(err), gin.H{"error": "Failed to evaluate line"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"context": result.Context,
		"trace":   result.Trace,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"operation":          "debug_evaluate",
		},
	})
}

// statusFor maps storage-level errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
