package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recon-rules/internal/config"
	"recon-rules/internal/models"
	"recon-rules/internal/repository"
)

type fakeRuleSource struct {
	rules []models.Rule
	err   error
}

func (f *fakeRuleSource) Load(ctx context.Context) ([]models.Rule, error) {
	return f.rules, f.err
}

type fakeRefSource struct {
	refs *models.Referentials
	err  error
}

func (f *fakeRefSource) Load(ctx context.Context) (*models.Referentials, error) {
	return f.refs, f.err
}

type fakeLineSource struct {
	mu       sync.Mutex
	bundles  map[string]*models.LineBundle
	applied  []models.LineMutation
	applyErr map[string]error
}

func newFakeLineSource() *fakeLineSource {
	return &fakeLineSource{
		bundles:  make(map[string]*models.LineBundle),
		applyErr: make(map[string]error),
	}
}

func (f *fakeLineSource) add(bundle models.LineBundle) {
	f.bundles[bundle.Line.ID] = &bundle
}

func (f *fakeLineSource) FetchBundle(ctx context.Context, lineID string) (*models.LineBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bundle, ok := f.bundles[lineID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return bundle, nil
}

func (f *fakeLineSource) ApplyMutations(ctx context.Context, mutations []models.LineMutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range mutations {
		if err, ok := f.applyErr[m.LineID]; ok {
			return err
		}
	}
	f.applied = append(f.applied, mutations...)
	return nil
}

func (f *fakeLineSource) appliedFor(lineID string) []models.LineMutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LineMutation
	for _, m := range f.applied {
		if m.LineID == lineID {
			out = append(out, m)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.RuleAppliedEvent
}

func (f *fakeNotifier) RuleApplied(ctx context.Context, event models.RuleAppliedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestRunner(t *testing.T, ruleSrc *fakeRuleSource, lineSrc *fakeLineSource, notifier *fakeNotifier) *Runner {
	t.Helper()
	cfg := &config.Config{Engine: config.EngineConfig{
		Workers:         4,
		AmountTolerance: 0.01,
	}}
	logger := zap.NewNop()
	return NewRunner(
		cfg,
		logger,
		ruleSrc,
		&fakeRefSource{refs: testRefs()},
		lineSrc,
		NewContextBuilder(cfg, logger),
		NewEvaluator(logger),
		NewApplier(logger),
		notifier,
		nil,
	)
}

func TestRunBatchFaultIsolation(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})
	lines.add(models.LineBundle{Line: pivotLine("l-2")})
	lines.add(models.LineBundle{Line: pivotLine("l-3")})

	// One line with an unresolvable country, one missing entirely
	broken := models.LineBundle{Line: pivotLine("l-bad")}
	broken.Line.CountryID = "XX"
	lines.add(broken)

	notifier := &fakeNotifier{}
	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{investigateRule()}}, lines, notifier)

	result, err := runner.RunBatch(context.Background(),
		[]string{"l-1", "l-2", "l-3", "l-bad", "l-missing"},
		models.ScopeImport, models.OriginImport)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Classified)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)

	stages := make(map[string]string)
	for _, f := range result.Failures {
		stages[f.LineID] = f.Stage
	}
	assert.Equal(t, "context", stages["l-bad"])
	assert.Equal(t, "fetch", stages["l-missing"])

	// Each classified line got exactly one persisted mutation and one event
	assert.Len(t, lines.appliedFor("l-1"), 1)
	assert.Len(t, lines.appliedFor("l-2"), 1)
	assert.Len(t, lines.appliedFor("l-3"), 1)
	assert.Equal(t, 3, notifier.count())
}

func TestRunBatchRuleLoadFailureAbortsRun(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})

	runner := newTestRunner(t, &fakeRuleSource{err: repository.ErrStorageUnavailable}, lines, &fakeNotifier{})

	result, err := runner.RunBatch(context.Background(), []string{"l-1"}, models.ScopeImport, models.OriginImport)
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	assert.Nil(t, result)
	assert.Empty(t, lines.applied)
}

func TestRunBatchApplyFailureLeavesLineUnclassified(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})
	lines.add(models.LineBundle{Line: pivotLine("l-2")})
	lines.applyErr["l-2"] = errors.New("write conflict")

	notifier := &fakeNotifier{}
	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{investigateRule()}}, lines, notifier)

	result, err := runner.RunBatch(context.Background(), []string{"l-1", "l-2"}, models.ScopeImport, models.OriginImport)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Classified)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "l-2", result.Failures[0].LineID)
	assert.Equal(t, "apply", result.Failures[0].Stage)

	// No notification for the line whose write failed
	assert.Equal(t, 1, notifier.count())
	assert.Empty(t, lines.appliedFor("l-2"))
}

func TestRunBatchNoMatchIsNotAFailure(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})

	// The only rule requires the receivable side
	rule := investigateRule()
	rule.AccountSide = models.StringCondition("R")

	notifier := &fakeNotifier{}
	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{rule}}, lines, notifier)

	result, err := runner.RunBatch(context.Background(), []string{"l-1"}, models.ScopeImport, models.OriginImport)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Classified)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, lines.applied)
	assert.Equal(t, 0, notifier.count())
}

func TestRunBatchNonAutoRuleCountsWithoutWriting(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})

	rule := investigateRule()
	rule.AutoApply = false

	notifier := &fakeNotifier{}
	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{rule}}, lines, notifier)

	result, err := runner.RunBatch(context.Background(), []string{"l-1"}, models.ScopeImport, models.OriginImport)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Classified)
	assert.Empty(t, lines.applied)
	assert.Equal(t, 0, notifier.count())
}

func TestRunBatchCancelledContext(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})
	lines.add(models.LineBundle{Line: pivotLine("l-2")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{investigateRule()}}, lines, &fakeNotifier{})

	result, err := runner.RunBatch(ctx, []string{"l-1", "l-2"}, models.ScopeImport, models.OriginImport)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Classified)
	assert.Equal(t, 2, result.Failed)
	for _, f := range result.Failures {
		assert.Equal(t, "cancelled", f.Stage)
	}
	assert.Empty(t, lines.applied)
}

func TestRunBatchHonorsBatchTimeout(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})
	lines.add(models.LineBundle{Line: pivotLine("l-2")})

	cfg := &config.Config{Engine: config.EngineConfig{
		Workers:         1,
		AmountTolerance: 0.01,
		BatchTimeout:    time.Nanosecond,
	}}
	logger := zap.NewNop()
	runner := NewRunner(
		cfg,
		logger,
		&fakeRuleSource{rules: []models.Rule{investigateRule()}},
		&fakeRefSource{refs: testRefs()},
		lines,
		NewContextBuilder(cfg, logger),
		NewEvaluator(logger),
		NewApplier(logger),
		&fakeNotifier{},
		nil,
	)

	// The deadline has already passed by the time workers pick up lines, so
	// every line lands in the cancelled bucket and nothing is written
	result, err := runner.RunBatch(context.Background(), []string{"l-1", "l-2"}, models.ScopeImport, models.OriginRunNow)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Classified)
	assert.Equal(t, 2, result.Failed)
	for _, f := range result.Failures {
		assert.Equal(t, "cancelled", f.Stage)
	}
	assert.Empty(t, lines.applied)
}

func TestRunLine(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})

	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{investigateRule()}}, lines, &fakeNotifier{})

	fired, err := runner.RunLine(context.Background(), "l-1", models.ScopeImport, models.OriginEdit)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Len(t, lines.appliedFor("l-1"), 1)

	_, err = runner.RunLine(context.Background(), "l-missing", models.ScopeImport, models.OriginEdit)
	assert.Error(t, err)
}

func TestRunBatchCounterpartWrites(t *testing.T) {
	lines := newFakeLineSource()
	counterpartID := "l-2"
	bundle := models.LineBundle{
		Line: pivotLine("l-1"),
		Grouping: &models.GroupingFact{
			LineID:           "l-1",
			CounterpartID:    &counterpartID,
			CounterpartCount: 1,
			IsMatched:        true,
			AmountMatch:      true,
		},
	}
	lines.add(bundle)
	lines.add(models.LineBundle{Line: pivotLine("l-2")})

	rule := investigateRule()
	rule.ApplyTo = models.ApplyToBoth

	runner := newTestRunner(t, &fakeRuleSource{rules: []models.Rule{rule}}, lines, &fakeNotifier{})

	result, err := runner.RunBatch(context.Background(), []string{"l-1"}, models.ScopeImport, models.OriginImport)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Classified)
	assert.Len(t, lines.appliedFor("l-1"), 1)
	assert.Len(t, lines.appliedFor("l-2"), 1)
}

func TestEvaluateForDebugIsReadOnly(t *testing.T) {
	lines := newFakeLineSource()
	lines.add(models.LineBundle{Line: pivotLine("l-1")})

	notifier := &fakeNotifier{}
	rules := []models.Rule{investigateRule(), catchAllRule()}
	runner := newTestRunner(t, &fakeRuleSource{rules: rules}, lines, notifier)

	result, err := runner.EvaluateForDebug(context.Background(), "l-1", models.ScopeImport)
	require.NoError(t, err)

	require.NotNil(t, result.Context)
	assert.Equal(t, "l-1", result.Context.LineID)
	assert.Equal(t, "P", result.Context.AccountSide)

	require.NotNil(t, result.Trace)
	assert.Equal(t, "pivot-unlinked", result.Trace.WinnerID)
	// Diagnostic trace covers the full table, not just up to the winner
	assert.Len(t, result.Trace.Entries, 2)

	// Nothing was written or announced
	assert.Empty(t, lines.applied)
	assert.Equal(t, 0, notifier.count())
}
