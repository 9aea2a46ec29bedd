// Package services contains the workflow orchestrator: the adversarial
// generate, check, fix loop and its feature-enhanced variant.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adversarial-mcp/backend/internal/analytics"
	"adversarial-mcp/backend/internal/logging"
	"adversarial-mcp/backend/internal/quality"
	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/sanitize"
	"adversarial-mcp/backend/pkg/models"
)

// DefaultLanguage is assumed when the caller omits one.
const DefaultLanguage = "python"

// Actions tagged on outbound calls.
const (
	ActionGenerate     = "generate"
	ActionCheck        = "check"
	ActionFix          = "fix"
	ActionApplyFeature = "apply_feature"
)

// Config holds the orchestrator's loop knobs, pre-validated by the config
// package.
type Config struct {
	// MaxIterations bounds the check/fix loop of every run.
	MaxIterations int
	// IterationLimit is the stride between feature-injection passes.
	IterationLimit int
}

// RefinementService drives refinement runs. A single run executes
// sequentially; independent runs may execute concurrently and share only the
// selector, limiter and cache behind the injected collaborators.
type RefinementService struct {
	store    repository.EntryStore
	llm      LLMCaller
	selector ModelSelector
	sink     analytics.Sink
	logger   logging.Logger
	cfg      Config
}

// NewRefinementService creates a new RefinementService.
func NewRefinementService(store repository.EntryStore, llm LLMCaller, sel ModelSelector, sink analytics.Sink, logger logging.Logger, cfg Config) *RefinementService {
	return &RefinementService{
		store:    store,
		llm:      llm,
		selector: sel,
		sink:     sink,
		logger:   logger,
		cfg:      cfg,
	}
}

// RunWorkflow generates code for prompt and iterates check/fix until the
// aggregate bug report is clean or the iteration budget is spent.
func (s *RefinementService) RunWorkflow(ctx context.Context, prompt, language string) (*models.RefinementResult, error) {
	if language == "" {
		language = DefaultLanguage
	}
	entry := &models.RefinementEntry{
		Prompt:   prompt,
		Language: language,
		Status:   models.StatusProcessing,
	}
	if err := s.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create refinement entry: %w", err)
	}
	start := time.Now()
	s.logger.Info("refinement run started", "entry_id", entry.ID, "language", language)

	code, err := s.generate(ctx, entry, prompt, language)
	if err != nil {
		return nil, s.failEntry(ctx, entry, start, err)
	}

	for i := 1; i <= s.cfg.MaxIterations; i++ {
		entry.IterationCount = i

		report, err := s.checkBugs(ctx, entry, code, language)
		if err != nil {
			return nil, s.failEntry(ctx, entry, start, err)
		}
		s.recordQuality(ctx, entry, code)

		if strings.TrimSpace(report) == "" {
			s.logger.Info("code judged bug-free", "entry_id", entry.ID, "iteration", i)
			break
		}
		entry.BugReport = report
		entry.Severity = severityOf(report)
		code = s.fix(ctx, entry, code, report, language)
	}

	if err := s.complete(ctx, entry, code, start); err != nil {
		return nil, err
	}
	return &models.RefinementResult{
		ID:              entry.ID,
		Code:            code,
		Iterations:      entry.IterationCount,
		DurationSeconds: entry.DurationSeconds,
	}, nil
}

// GenerateFeatureEnhancedCode runs the same loop but interleaves
// feature-injection passes every IterationLimit iterations. This path always
// consumes the full iteration budget; it never early-stops on a clean report.
func (s *RefinementService) GenerateFeatureEnhancedCode(ctx context.Context, prompt string, features []string, language string) (*models.RefinementResult, error) {
	if language == "" {
		language = DefaultLanguage
	}
	entry := &models.RefinementEntry{
		Prompt:   prompt,
		Language: language,
		Features: features,
		Status:   models.StatusProcessing,
	}
	if err := s.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create refinement entry: %w", err)
	}
	start := time.Now()
	s.logger.Info("feature-enhanced run started", "entry_id", entry.ID, "features", len(features))

	code, err := s.generate(ctx, entry, prompt, language)
	if err != nil {
		return nil, s.failEntry(ctx, entry, start, err)
	}

	featureIdx := 0
	for i := 1; i <= s.cfg.MaxIterations; i++ {
		entry.IterationCount = i

		report, err := s.checkBugs(ctx, entry, code, language)
		if err != nil {
			return nil, s.failEntry(ctx, entry, start, err)
		}
		if strings.TrimSpace(report) != "" {
			entry.BugReport = report
			entry.Severity = severityOf(report)
			code = s.fix(ctx, entry, code, report, language)
		}
		s.recordQuality(ctx, entry, code)

		if i%s.cfg.IterationLimit == 0 && featureIdx < len(features) {
			code = s.applyFeature(ctx, entry, code, features[featureIdx], language)
			// The feature index advances even when the call failed, so one
			// flaky backend cannot stall the feature queue.
			featureIdx++
			entry.FeaturesImplemented = featureIdx
		}
	}

	if err := s.complete(ctx, entry, code, start); err != nil {
		return nil, err
	}
	return &models.RefinementResult{
		ID:                  entry.ID,
		Code:                code,
		Iterations:          entry.IterationCount,
		FeaturesImplemented: entry.FeaturesImplemented,
		DurationSeconds:     entry.DurationSeconds,
	}, nil
}

// generate performs the initial generation call. Its failure is fatal to the
// run.
func (s *RefinementService) generate(ctx context.Context, entry *models.RefinementEntry, prompt, language string) (string, error) {
	model, err := s.selector.Select(models.TaskGeneration)
	if err != nil {
		return "", err
	}
	code, err := s.llm.Call(ctx, model, sanitize.Prompt(prompt), ActionGenerate, language)
	if err != nil {
		return "", fmt.Errorf("initial generation failed: %w", err)
	}
	s.logger.Debug("code generated", "entry_id", entry.ID, "model_id", model.ID, "bytes", len(code))
	return code, nil
}

// checkBugs fans the sanitized code across every checking model and
// concatenates the non-empty reports. A failing model is logged and skipped.
func (s *RefinementService) checkBugs(ctx context.Context, entry *models.RefinementEntry, code, language string) (string, error) {
	pool, err := s.selector.Pool(models.TaskChecking)
	if err != nil {
		return "", err
	}

	checked := sanitize.Code(code)
	var reports []string
	for _, model := range pool {
		report, err := s.llm.Call(ctx, model, checked, ActionCheck, language)
		if err != nil {
			s.logger.Warn("bug check failed, skipping model",
				"entry_id", entry.ID, "model_id", model.ID, "error", err)
			continue
		}
		if strings.TrimSpace(report) != "" {
			reports = append(reports, strings.TrimSpace(report))
		}
	}
	return strings.Join(reports, "\n\n"), nil
}

// fix asks a fixing model to resolve the report. On failure the previous code
// is kept and the iteration still counts.
func (s *RefinementService) fix(ctx context.Context, entry *models.RefinementEntry, code, report, language string) string {
	model, err := s.selector.Select(models.TaskFixing)
	if err != nil {
		s.logger.Warn("no fixing model available", "entry_id", entry.ID, "error", err)
		return code
	}
	fixed, err := s.llm.Call(ctx, model, buildFixPrompt(code, report), ActionFix, language)
	if err != nil {
		s.logger.Warn("fix call failed, keeping previous code",
			"entry_id", entry.ID, "model_id", model.ID, "error", err)
		return code
	}
	return fixed
}

// applyFeature asks a feature model to add the next feature. On failure the
// previous code is kept.
func (s *RefinementService) applyFeature(ctx context.Context, entry *models.RefinementEntry, code, feature, language string) string {
	model, err := s.selector.Select(models.TaskFeature)
	if err != nil {
		s.logger.Warn("no feature model available", "entry_id", entry.ID, "error", err)
		return code
	}
	out, err := s.llm.Call(ctx, model, buildFeaturePrompt(feature, code), ActionApplyFeature, language)
	if err != nil {
		s.logger.Warn("feature call failed, keeping previous code",
			"entry_id", entry.ID, "model_id", model.ID, "feature", feature, "error", err)
		return code
	}
	s.logger.Info("feature applied", "entry_id", entry.ID, "feature", feature)
	return out
}

// complete persists the final state and emits run analytics.
func (s *RefinementService) complete(ctx context.Context, entry *models.RefinementEntry, code string, start time.Time) error {
	now := time.Now().UTC()
	entry.GeneratedCode = code
	entry.Status = models.StatusCompleted
	entry.DurationSeconds = time.Since(start).Seconds()
	entry.CompletedAt = &now

	if err := s.store.Update(ctx, entry); err != nil {
		entry.Status = models.StatusFailed
		return fmt.Errorf("failed to persist refinement entry: %w", err)
	}

	s.sink.LogCompletion(ctx, analytics.Completion{
		EntryID:             entry.ID,
		Duration:            time.Since(start),
		Iterations:          entry.IterationCount,
		FeaturesImplemented: entry.FeaturesImplemented,
	})
	s.logger.Info("refinement run completed",
		"entry_id", entry.ID,
		"iterations", entry.IterationCount,
		"features_implemented", entry.FeaturesImplemented,
		"duration_seconds", entry.DurationSeconds)
	return nil
}

// failEntry marks the entry Failed with the error text, preserving whatever
// partial progress is on it, and returns the error for the caller.
func (s *RefinementService) failEntry(ctx context.Context, entry *models.RefinementEntry, start time.Time, runErr error) error {
	entry.Status = models.StatusFailed
	entry.ErrorText = runErr.Error()
	entry.DurationSeconds = time.Since(start).Seconds()
	if err := s.store.Update(ctx, entry); err != nil {
		s.logger.Error("failed to persist failed entry", "entry_id", entry.ID, "error", err)
	}
	s.logger.Error("refinement run failed", "entry_id", entry.ID, "error", runErr)
	return runErr
}

// recordQuality logs the heuristic quality metrics for the current iteration.
func (s *RefinementService) recordQuality(ctx context.Context, entry *models.RefinementEntry, code string) {
	score := quality.Score(code)
	complexity := quality.Complexity(code)
	s.sink.LogQuality(ctx, analytics.Quality{
		EntryID:    entry.ID,
		Iteration:  entry.IterationCount,
		Score:      score,
		Complexity: complexity,
	})
	s.logger.Debug("iteration quality",
		"entry_id", entry.ID,
		"iteration", entry.IterationCount,
		"quality_score", score,
		"complexity", complexity)
}

func buildFixPrompt(code, report string) string {
	return "Fix the following bugs:\n" + report + "\n\nCode:\n" + code
}

func buildFeaturePrompt(feature, code string) string {
	return "Add feature: " + feature + "\n\nExisting code:\n" + code
}

// severityOf extracts the dominant severity tag from an aggregate bug report.
func severityOf(report string) string {
	for _, sev := range []string{"Major", "Minor", "Info"} {
		if strings.Contains(report, "Severity: "+sev) {
			return sev
		}
	}
	return ""
}
