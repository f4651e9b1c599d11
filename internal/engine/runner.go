package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recon-rules/internal/config"
	"recon-rules/internal/models"
)

// RuleSource supplies the decision table. The runner loads it once per batch
// and treats the snapshot as immutable for the whole run.
type RuleSource interface {
	Load(ctx context.Context) ([]models.Rule, error)
}

// ReferentialSource supplies the reference catalogs
type ReferentialSource interface {
	Load(ctx context.Context) (*models.Referentials, error)
}

// LineSource reads line bundles and persists classification mutations
type LineSource interface {
	FetchBundle(ctx context.Context, lineID string) (*models.LineBundle, error)
	ApplyMutations(ctx context.Context, mutations []models.LineMutation) error
}

// Notifier receives committed classifications
type Notifier interface {
	RuleApplied(ctx context.Context, event models.RuleAppliedEvent)
}

// RunObserver receives engine telemetry; a nil observer disables it
type RunObserver interface {
	ObserveEvaluation(scope models.RuleScope, outcome string, duration time.Duration)
	ObserveBatch(scope models.RuleScope, classified, failed int, duration time.Duration)
	ObserveRuleHit(ruleID string)
}

// Evaluation outcomes reported to the observer
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeFailed    = "failed"
)

// lockStripes bounds the per-target mutex table. Writes to lines sharing a
// counterpart must be mutually exclusive to avoid lost updates.
const lockStripes = 64

// Runner orchestrates context building, evaluation, and output application
// across a set of lines. Per-line failures are recorded and skipped; a batch
// always finishes with a tally rather than aborting on the first bad line.
type Runner struct {
	cfg       *config.EngineConfig
	logger    *zap.Logger
	rules     RuleSource
	refs      ReferentialSource
	lines     LineSource
	builder   *ContextBuilder
	evaluator *Evaluator
	applier   *Applier
	notifier  Notifier
	observer  RunObserver

	locks [lockStripes]sync.Mutex
}

// NewRunner creates a new batch runner
func NewRunner(
	cfg *config.Config,
	logger *zap.Logger,
	rules RuleSource,
	refs ReferentialSource,
	lines LineSource,
	builder *ContextBuilder,
	evaluator *Evaluator,
	applier *Applier,
	notifier Notifier,
	observer RunObserver,
) *Runner {
	return &Runner{
		cfg:       &cfg.Engine,
		logger:    logger,
		rules:     rules,
		refs:      refs,
		lines:     lines,
		builder:   builder,
		evaluator: evaluator,
		applier:   applier,
		notifier:  notifier,
		observer:  observer,
	}
}

type lineOutcome struct {
	classified bool
	failure    *models.LineFailure
}

// RunBatch classifies every requested line. Rule storage or referential
// failures abort the run before any line is touched; everything after that
// is per-line fault isolated.
func (r *Runner) RunBatch(ctx context.Context, lineIDs []string, scope models.RuleScope, origin models.RunOrigin) (*models.BatchResult, error) {
	start := time.Now()

	// A batch never outlives the configured timeout; lines left when it
	// expires are tallied as cancelled failures
	if r.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.BatchTimeout)
		defer cancel()
	}

	snapshot, refs, err := r.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	// One evaluation instant for the whole batch keeps every line's
	// day-count facts consistent for the life of the run
	now := start.UTC()

	result := &models.BatchResult{
		RunID:     uuid.New(),
		Scope:     scope,
		Origin:    origin,
		StartedAt: start,
	}

	workers := r.cfg.Workers
	if workers > len(lineIDs) {
		workers = len(lineIDs)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	outcomes := make(chan lineOutcome, len(lineIDs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lineID := range jobs {
				// Cancellation is coarse-grained: checked between lines,
				// never mid-evaluation
				if err := ctx.Err(); err != nil {
					outcomes <- lineOutcome{failure: &models.LineFailure{
						LineID: lineID,
						Stage:  "cancelled",
						Error:  err.Error(),
					}}
					continue
				}
				outcomes <- r.processLine(ctx, lineID, snapshot, refs, now, scope, origin)
			}
		}()
	}

	for _, id := range lineIDs {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		if outcome.failure != nil {
			result.Failed++
			result.Failures = append(result.Failures, *outcome.failure)
			continue
		}
		if outcome.classified {
			result.Classified++
		}
	}

	result.Duration = time.Since(start)

	if r.observer != nil {
		r.observer.ObserveBatch(scope, result.Classified, result.Failed, result.Duration)
	}

	r.logger.Info("batch run completed",
		zap.String("run_id", result.RunID.String()),
		zap.String("scope", string(scope)),
		zap.String("origin", string(origin)),
		zap.Int("lines", len(lineIDs)),
		zap.Int("classified", result.Classified),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// RunLine reclassifies a single line, used immediately after an edit.
// Returns whether a rule fired.
func (r *Runner) RunLine(ctx context.Context, lineID string, scope models.RuleScope, origin models.RunOrigin) (bool, error) {
	snapshot, refs, err := r.loadSnapshot(ctx)
	if err != nil {
		return false, err
	}

	outcome := r.processLine(ctx, lineID, snapshot, refs, time.Now().UTC(), scope, origin)
	if outcome.failure != nil {
		return false, fmt.Errorf("classify line %s at %s: %s",
			outcome.failure.LineID, outcome.failure.Stage, outcome.failure.Error)
	}

	return outcome.classified, nil
}

// EvaluateForDebug builds the context and runs a diagnostic evaluation
// without applying anything. Read-only.
func (r *Runner) EvaluateForDebug(ctx context.Context, lineID string, scope models.RuleScope) (*models.DebugEvaluation, error) {
	snapshot, refs, err := r.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	bundle, err := r.lines.FetchBundle(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("fetch line %s: %w", lineID, err)
	}

	ectx, err := r.builder.Build(bundle, refs, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	res := r.evaluator.EvaluateDiagnostic(ectx, snapshot, scope)

	return &models.DebugEvaluation{
		Context: ectx,
		Trace:   &res.Trace,
	}, nil
}

func (r *Runner) loadSnapshot(ctx context.Context) ([]models.Rule, *models.Referentials, error) {
	rules, err := r.rules.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}

	refs, err := r.refs.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load referentials: %w", err)
	}

	return rules, refs, nil
}

func (r *Runner) processLine(
	ctx context.Context,
	lineID string,
	rules []models.Rule,
	refs *models.Referentials,
	now time.Time,
	scope models.RuleScope,
	origin models.RunOrigin,
) lineOutcome {
	evalStart := time.Now()

	fail := func(stage string, err error) lineOutcome {
		r.logger.Warn("line classification failed",
			zap.String("line_id", lineID),
			zap.String("stage", stage),
			zap.Error(err))
		if r.observer != nil {
			r.observer.ObserveEvaluation(scope, OutcomeFailed, time.Since(evalStart))
		}
		return lineOutcome{failure: &models.LineFailure{
			LineID: lineID,
			Stage:  stage,
			Error:  err.Error(),
		}}
	}

	bundle, err := r.lines.FetchBundle(ctx, lineID)
	if err != nil {
		return fail("fetch", err)
	}

	ectx, err := r.builder.Build(bundle, refs, now)
	if err != nil {
		return fail("context", err)
	}

	res := r.evaluator.Evaluate(ectx, rules, scope)
	if !res.Matched() {
		// Unclassified is a valid outcome, not a failure; prior outputs
		// stay untouched
		if r.observer != nil {
			r.observer.ObserveEvaluation(scope, OutcomeUnmatched, time.Since(evalStart))
		}
		return lineOutcome{}
	}

	rule := res.Rule
	if r.observer != nil {
		r.observer.ObserveEvaluation(scope, OutcomeMatched, time.Since(evalStart))
		r.observer.ObserveRuleHit(rule.ID)
	}

	if !rule.AutoApply && !r.cfg.ApplyNonAuto {
		// The rule fired, but applying its outputs needs explicit
		// confirmation; count the match and leave the line alone
		r.logger.Debug("rule requires confirmation, outputs not applied",
			zap.String("line_id", lineID),
			zap.String("rule_id", rule.ID))
		return lineOutcome{classified: true}
	}

	mutations := r.applier.Apply(rule, ectx, refs, now)
	if len(mutations) == 0 {
		return lineOutcome{classified: true}
	}

	if err := r.persist(ctx, mutations); err != nil {
		// Not-classified-this-run: the whole unit retries on the next batch
		return fail("apply", err)
	}

	if r.notifier != nil {
		r.notifier.RuleApplied(ctx, models.RuleAppliedEvent{
			EventID: uuid.New(),
			RuleID:  rule.ID,
			LineID:  lineID,
			Origin:  origin,
			Summary: rule.Outputs.Summary(refs),
			At:      now,
		})
	}

	return lineOutcome{classified: true}
}

// persist serializes writes by target line so two originating lines mapping
// to the same counterpart cannot race each other
func (r *Runner) persist(ctx context.Context, mutations []models.LineMutation) error {
	stripes := make([]int, 0, len(mutations))
	seen := make(map[int]bool, len(mutations))
	for i := range mutations {
		s := stripeFor(mutations[i].LineID)
		if !seen[s] {
			seen[s] = true
			stripes = append(stripes, s)
		}
	}

	// Locks are always taken in stripe order to rule out deadlock between
	// concurrent workers
	sort.Ints(stripes)
	for _, s := range stripes {
		r.locks[s].Lock()
	}
	defer func() {
		for _, s := range stripes {
			r.locks[s].Unlock()
		}
	}()

	return r.lines.ApplyMutations(ctx, mutations)
}

func stripeFor(lineID string) int {
	h := fnv.New32a()
	h.Write([]byte(lineID))
	return int(h.Sum32() % lockStripes)
}
