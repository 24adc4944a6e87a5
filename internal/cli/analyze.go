package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"prdgen/config"
	"prdgen/internal/adapter/analyzer"
	"prdgen/internal/adapter/extractor"
	"prdgen/internal/adapter/fs"
	"prdgen/internal/adapter/llm"
	"prdgen/internal/adapter/store"
	"prdgen/internal/domain"
	"prdgen/internal/gateway"
	"prdgen/internal/planner"
	"prdgen/internal/report"
	"prdgen/internal/retry"
	"prdgen/internal/usecase"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a repository and generate PRD documentation",
	Long: `Run the full three-stage analysis against the repository and write the
resulting documents to the configured output directory.

Completed stages are skipped on rerun; pass --fresh to start from scratch.

Examples:
  prdgen analyze .                 # Analyze current directory
  prdgen analyze /path/to/project  # Analyze specific directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var fresh bool

func init() {
	analyzeCmd.Flags().BoolVar(&fresh, "fresh", false, "discard persisted stage results and start over")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()

	if err := config.EnsureWorkDir(path); err != nil {
		return fmt.Errorf("failed to create .prdgen directory: %w", err)
	}

	if fresh {
		if err := os.Remove(config.StateDBPath(path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to discard state: %w", err)
		}
	}

	st, err := store.NewBoltStore(config.StateDBPath(path))
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	model, err := llm.New(cmd.Context(), cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	gw := gateway.New(model, st, logger, cfg.Gateway.Timeout)
	retryCtl := retry.New(cfg.Retry.MaxAttempts, logger)
	retryCtl.Backoff = cfg.Retry.Backoff
	walker := fs.NewWalker(cfg.Scan.Includes, cfg.Scan.Excludes, cfg.Scan.MaxFileSizeMB)
	tokens := analyzer.NewTokenEstimator(cfg.Scan.CharsPerToken)
	extract := extractor.NewTreeSitter()

	structure := usecase.NewStructure(path, domain.PerSubstep, walker, walker,
		extract, tokens, gw, retryCtl, st, logger)
	semantic := usecase.NewSemantic(path, domain.PerModule, walker,
		planner.New(cfg.Batch.MaxTokens-cfg.Batch.ReservedTokens, cfg.Batch.SmallBatchFrac),
		gw, retryCtl, st, logger, cfg.Gateway.Concurrency)
	docgen := usecase.NewDocGen(domain.PerDomain, gw, retryCtl, st, logger, cfg.Doc.ForbiddenTerms)

	var bar *progressbar.ProgressBar
	semantic.Progress = func(done, total int, module string) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Analyzing modules[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}

	fmt.Printf("Analyzing %s with %s...\n", path, cfg.LLM.Model)

	pipeline := usecase.NewPipeline(structure, semantic, docgen, st, logger)
	manifest, err := pipeline.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	outDir := cfg.Doc.OutputDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(path, outDir)
	}
	written, err := report.NewWriter(outDir).Write(manifest)
	if err != nil {
		return fmt.Errorf("failed to write documents: %w", err)
	}

	fmt.Printf("\nAnalysis complete:\n")
	fmt.Printf("  Functional domains: %d\n", len(manifest.Domains))
	fmt.Printf("  Documents written:\n")
	for _, p := range written {
		fmt.Printf("    %s\n", p)
	}
	return nil
}
