package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adversarial-mcp/backend/internal/analytics"
	"adversarial-mcp/backend/internal/logging"
	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/selector"
	"adversarial-mcp/backend/pkg/models"
)

type llmCall struct {
	ModelID  string
	Input    string
	Action   string
	Language string
}

// scriptedLLM routes calls to a per-action function and records every call.
type scriptedLLM struct {
	mu      sync.Mutex
	calls   []llmCall
	respond func(model models.ModelConfig, input, action, language string) (string, error)
}

func (f *scriptedLLM) Call(_ context.Context, model models.ModelConfig, input, action, language string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, llmCall{ModelID: model.ID, Input: input, Action: action, Language: language})
	f.mu.Unlock()
	return f.respond(model, input, action, language)
}

func (f *scriptedLLM) callsFor(action string) []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llmCall
	for _, c := range f.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

func newSelector(t *testing.T, checkers ...string) *selector.Selector {
	t.Helper()
	if len(checkers) == 0 {
		checkers = []string{"checker"}
	}
	checkPool := make([]models.ModelConfig, 0, len(checkers))
	for _, id := range checkers {
		checkPool = append(checkPool, models.ModelConfig{ID: id})
	}
	sel, err := selector.New(selector.StrategyRoundRobin, map[models.TaskType][]models.ModelConfig{
		models.TaskGeneration: {{ID: "generator"}},
		models.TaskChecking:   checkPool,
		models.TaskFixing:     {{ID: "fixer"}},
		models.TaskFeature:    {{ID: "featurer"}},
	})
	require.NoError(t, err)
	return sel
}

func newService(t *testing.T, llm *scriptedLLM, cfg Config, checkers ...string) (*RefinementService, *repository.MemoryEntryStore) {
	t.Helper()
	store := repository.NewMemoryEntryStore()
	svc := NewRefinementService(store, llm, newSelector(t, checkers...), analytics.NopSink{}, logging.NewNop(), cfg)
	return svc, store
}

// alwaysClean generates once and reports no bugs forever after.
func alwaysClean(generated string) *scriptedLLM {
	f := &scriptedLLM{}
	f.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		if action == ActionGenerate {
			return generated, nil
		}
		return "", nil
	}
	return f
}

func TestRunWorkflow_CleanFirstCheck(t *testing.T) {
	generated := "def add(x, y):\n    return x + y"
	llm := alwaysClean(generated)
	svc, store := newService(t, llm, Config{MaxIterations: 5, IterationLimit: 3})

	result, err := svc.RunWorkflow(context.Background(), "add two numbers", "python")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Iterations, "a clean first check completes in one iteration")
	assert.Equal(t, generated, result.Code)
	assert.Empty(t, llm.callsFor(ActionFix), "no fix call may be issued")

	entry, err := store.Get(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.Equal(t, generated, entry.GeneratedCode)
}

func TestRunWorkflow_IterationsNeverExceedBudget(t *testing.T) {
	for _, maxIterations := range []int{1, 3, 7} {
		t.Run(fmt.Sprintf("max=%d", maxIterations), func(t *testing.T) {
			llm := &scriptedLLM{}
			llm.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
				switch action {
				case ActionGenerate:
					return "buggy", nil
				case ActionCheck:
					return "Line 1: still broken. Severity: Major", nil
				default:
					return "still buggy", nil
				}
			}
			svc, _ := newService(t, llm, Config{MaxIterations: maxIterations, IterationLimit: 3})

			result, err := svc.RunWorkflow(context.Background(), "anything", "python")
			require.NoError(t, err)
			assert.LessOrEqual(t, result.Iterations, maxIterations)
			assert.Equal(t, maxIterations, result.Iterations, "a never-clean report burns the whole budget")
		})
	}
}

func TestRunWorkflow_FixResolvesBugs(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, input, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "v1", nil
		case ActionCheck:
			if strings.Contains(input, "v1") {
				return "Line 1: off by one. Severity: Minor", nil
			}
			return "", nil
		case ActionFix:
			return "v2", nil
		}
		return "", nil
	}
	svc, store := newService(t, llm, Config{MaxIterations: 5, IterationLimit: 3})

	result, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.NoError(t, err)
	assert.Equal(t, "v2", result.Code)
	assert.Equal(t, 2, result.Iterations)

	entry, _ := store.Get(context.Background(), result.ID)
	assert.Contains(t, entry.BugReport, "off by one")
	assert.Equal(t, "Minor", entry.Severity)
}

func TestRunWorkflow_GenerationFailureIsFatal(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		if action == ActionGenerate {
			return "", errors.New("backend down")
		}
		return "", nil
	}
	svc, store := newService(t, llm, Config{MaxIterations: 5, IterationLimit: 3})

	_, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	// The entry is marked Failed with the error text.
	entry := findSingleEntry(t, store)
	assert.Equal(t, models.StatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorText, "backend down")
}

func TestRunWorkflow_FlakyCheckerIsSkipped(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(model models.ModelConfig, _, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "code", nil
		case ActionCheck:
			if model.ID == "flaky" {
				return "", errors.New("timeout")
			}
			return "", nil
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 5, IterationLimit: 3}, "flaky", "steady")

	result, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.NoError(t, err, "one flaky checker must not block the run")
	assert.Equal(t, 1, result.Iterations)
}

func TestRunWorkflow_AggregateReportConcatenatesCheckers(t *testing.T) {
	fixInputs := make([]string, 0, 1)
	llm := &scriptedLLM{}
	llm.respond = func(model models.ModelConfig, input, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "v1", nil
		case ActionCheck:
			if !strings.Contains(input, "v1") {
				return "", nil
			}
			if model.ID == "c1" {
				return "bug from c1", nil
			}
			return "bug from c2", nil
		case ActionFix:
			fixInputs = append(fixInputs, input)
			return "v2", nil
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 5, IterationLimit: 3}, "c1", "c2")

	_, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.NoError(t, err)
	require.Len(t, fixInputs, 1)
	assert.Contains(t, fixInputs[0], "bug from c1\n\nbug from c2")
}

func TestRunWorkflow_FixFailureKeepsCodeAndCountsIteration(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "v1", nil
		case ActionCheck:
			return "Line 1: bug. Severity: Major", nil
		case ActionFix:
			return "", errors.New("fixer offline")
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 3, IterationLimit: 3})

	result, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.NoError(t, err, "fix failures are swallowed")
	assert.Equal(t, "v1", result.Code, "previous code is kept when the fix call fails")
	assert.Equal(t, 3, result.Iterations, "iterations still count on fix failure")
}

func TestRunWorkflow_SanitizesCodeBeforeChecking(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		if action == ActionGenerate {
			return "import os\nprint(1)", nil
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 5, IterationLimit: 3})

	_, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.NoError(t, err)

	checks := llm.callsFor(ActionCheck)
	require.NotEmpty(t, checks)
	assert.NotContains(t, checks[0].Input, "import os")
}

func TestRunWorkflow_DefaultLanguage(t *testing.T) {
	llm := alwaysClean("code")
	svc, _ := newService(t, llm, Config{MaxIterations: 1, IterationLimit: 3})

	_, err := svc.RunWorkflow(context.Background(), "p", "")
	require.NoError(t, err)
	gen := llm.callsFor(ActionGenerate)
	require.Len(t, gen, 1)
	assert.Equal(t, DefaultLanguage, gen[0].Language)
}

func TestFeatureEnhanced_AppliesFeaturesOnStride(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, input, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "base", nil
		case ActionCheck:
			return "", nil
		case ActionApplyFeature:
			return input, nil
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 9, IterationLimit: 3})

	result, err := svc.GenerateFeatureEnhancedCode(context.Background(),
		"p", []string{"logging", "validation"}, "python")
	require.NoError(t, err)

	assert.Equal(t, 9, result.Iterations, "the feature path always consumes the full budget")
	assert.Equal(t, 2, result.FeaturesImplemented)

	featureCalls := llm.callsFor(ActionApplyFeature)
	require.Len(t, featureCalls, 2, "features fire at iterations 3 and 6 only")
	assert.Contains(t, featureCalls[0].Input, "Add feature: logging")
	assert.Contains(t, featureCalls[1].Input, "Add feature: validation")
}

func TestFeatureEnhanced_FeatureFailureStillAdvances(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "base", nil
		case ActionCheck:
			return "", nil
		case ActionApplyFeature:
			return "", errors.New("feature model down")
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 6, IterationLimit: 3})

	result, err := svc.GenerateFeatureEnhancedCode(context.Background(),
		"p", []string{"a", "b", "c"}, "python")
	require.NoError(t, err)

	assert.Equal(t, "base", result.Code, "code is kept when feature calls fail")
	assert.Equal(t, 2, result.FeaturesImplemented,
		"the feature index advances past failed calls; only two strides fit in six iterations")
}

func TestFeatureEnhanced_FeaturePromptFormat(t *testing.T) {
	llm := &scriptedLLM{}
	llm.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "base-code", nil
		case ActionApplyFeature:
			return "enhanced", nil
		}
		return "", nil
	}
	svc, _ := newService(t, llm, Config{MaxIterations: 3, IterationLimit: 3})

	_, err := svc.GenerateFeatureEnhancedCode(context.Background(), "p", []string{"caching"}, "python")
	require.NoError(t, err)

	featureCalls := llm.callsFor(ActionApplyFeature)
	require.Len(t, featureCalls, 1)
	assert.Equal(t, "Add feature: caching\n\nExisting code:\nbase-code", featureCalls[0].Input)
}

func TestFeatureEnhanced_FeaturesNeverExceedList(t *testing.T) {
	llm := alwaysCleanFeature()
	svc, _ := newService(t, llm, Config{MaxIterations: 20, IterationLimit: 1})

	result, err := svc.GenerateFeatureEnhancedCode(context.Background(), "p", []string{"only"}, "python")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FeaturesImplemented)
	assert.Len(t, llm.callsFor(ActionApplyFeature), 1)
}

func alwaysCleanFeature() *scriptedLLM {
	f := &scriptedLLM{}
	f.respond = func(_ models.ModelConfig, _, action, _ string) (string, error) {
		switch action {
		case ActionGenerate:
			return "base", nil
		case ActionApplyFeature:
			return "base+feature", nil
		}
		return "", nil
	}
	return f
}

type failingStore struct {
	*repository.MemoryEntryStore
	failCreate bool
	failUpdate bool
}

func (s *failingStore) Create(ctx context.Context, entry *models.RefinementEntry) error {
	if s.failCreate {
		return errors.New("database unavailable")
	}
	return s.MemoryEntryStore.Create(ctx, entry)
}

func (s *failingStore) Update(ctx context.Context, entry *models.RefinementEntry) error {
	if s.failUpdate {
		return errors.New("database unavailable")
	}
	return s.MemoryEntryStore.Update(ctx, entry)
}

func TestRunWorkflow_CreateFailureIsFatal(t *testing.T) {
	store := &failingStore{MemoryEntryStore: repository.NewMemoryEntryStore(), failCreate: true}
	svc := NewRefinementService(store, alwaysClean("code"), newSelector(t),
		analytics.NopSink{}, logging.NewNop(), Config{MaxIterations: 1, IterationLimit: 3})

	_, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestRunWorkflow_FinalPersistFailureIsFatal(t *testing.T) {
	store := &failingStore{MemoryEntryStore: repository.NewMemoryEntryStore(), failUpdate: true}
	svc := NewRefinementService(store, alwaysClean("code"), newSelector(t),
		analytics.NopSink{}, logging.NewNop(), Config{MaxIterations: 1, IterationLimit: 3})

	_, err := svc.RunWorkflow(context.Background(), "p", "python")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist")
}

// findSingleEntry digs the only entry out of an in-memory store.
func findSingleEntry(t *testing.T, store *repository.MemoryEntryStore) *models.RefinementEntry {
	t.Helper()
	entries := store.List()
	require.Len(t, entries, 1, "expected exactly one entry in the store")
	return entries[0]
}
