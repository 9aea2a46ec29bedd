// Package main implements the refine CLI, a one-shot refinement run that
// prints the final code to stdout without needing the server or a database.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"adversarial-mcp/backend/internal/analytics"
	"adversarial-mcp/backend/internal/cache"
	"adversarial-mcp/backend/internal/config"
	"adversarial-mcp/backend/internal/llm"
	"adversarial-mcp/backend/internal/logging"
	"adversarial-mcp/backend/internal/ratelimit"
	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/selector"
	"adversarial-mcp/backend/internal/services"
	"adversarial-mcp/backend/pkg/models"
)

var (
	configFile string
	language   string
	features   []string
	verbose    bool
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refine <prompt>",
	Short: "Generate code for a prompt and iterate check/fix until clean",
	Long: `refine runs a single refinement workflow against the configured models
and prints the final code to stdout.

Examples:
  # Plain refinement
  refine "parse a csv file and sum the second column"

  # With feature additions interleaved between fix passes
  refine --feature "input validation" --feature "logging" "parse a csv file"

  # Different language
  refine --language go "parse a csv file"`,
	Version: version,
	Args:    cobra.ExactArgs(1),
	RunE:    runRefine,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&language, "language", "", "target language (defaults to python)")
	rootCmd.Flags().StringArrayVar(&features, "feature", nil, "feature to add, repeatable, applied in order")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(verbose || cfg.Engine.Verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sel, err := selector.New(cfg.Engine.RotationStrategy, cfg.Pools())
	if err != nil {
		return fmt.Errorf("build selector: %w", err)
	}

	client := llm.NewClient(
		llm.NewHTTPTransport(),
		ratelimit.NewLimiter(cfg.Limits()),
		cache.New(),
		analytics.NopSink{},
		logger,
		time.Duration(cfg.Engine.CacheTTLSeconds)*time.Second,
	)

	// One-shot runs keep entries in memory only.
	svc := services.NewRefinementService(
		repository.NewMemoryEntryStore(), client, sel,
		analytics.NopSink{}, logger,
		services.Config{
			MaxIterations:  cfg.Engine.MaxIterations,
			IterationLimit: cfg.Engine.IterationLimit,
		},
	)

	ctx := cmd.Context()
	prompt := args[0]

	var result *models.RefinementResult
	if len(features) > 0 {
		result, err = svc.GenerateFeatureEnhancedCode(ctx, prompt, features, language)
	} else {
		result, err = svc.RunWorkflow(ctx, prompt, language)
	}
	if err != nil {
		return fmt.Errorf("refinement failed: %w", err)
	}

	logger.Info("Refinement complete",
		"id", result.ID,
		"iterations", result.Iterations,
		"features_implemented", result.FeaturesImplemented,
		"duration_seconds", result.DurationSeconds,
	)
	fmt.Fprintln(cmd.OutOrStdout(), result.Code)
	return nil
}
