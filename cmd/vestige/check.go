package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/panbanda/vestige/internal/cache"
	"github.com/panbanda/vestige/internal/output"
	"github.com/panbanda/vestige/internal/progress"
	"github.com/panbanda/vestige/internal/scanner"
	"github.com/panbanda/vestige/internal/vcs"
	"github.com/panbanda/vestige/pkg/analyzer"
	"github.com/panbanda/vestige/pkg/config"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
)

var checkCmd = &cobra.Command{
	Use:   "check [path...]",
	Short: "Analyze C/C++ sources for unused values",
	Long: `Check analyzes the given paths (files or directories, default ".") and
reports variables, parameters, allocations and aggregate members whose
values provably never matter. Exit code is 1 when style findings exist.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("format", "f", "", "Output format: text, json, markdown (default from config)")
	checkCmd.Flags().StringP("output", "o", "", "Write output to file instead of stdout")
	checkCmd.Flags().IntP("jobs", "j", 0, "Parallel workers (0 = auto)")
	checkCmd.Flags().Bool("changed", false, "Analyze only files changed in the git worktree")
	checkCmd.Flags().String("since", "", "Analyze only files changed since the given git revision")
	checkCmd.Flags().StringSlice("library", nil, "Additional library configuration files")
	checkCmd.Flags().Int64("max-file-size", 0, "Skip files larger than this many bytes (0 = no limit)")
	checkCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	checkCmd.Flags().Bool("no-cache", false, "Bypass the diagnostic cache")
	checkCmd.Flags().StringSlice("enable", nil, "Enable a rule regardless of config (repeatable)")
	checkCmd.Flags().StringSlice("disable", nil, "Disable a rule regardless of config (repeatable)")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRuleFlags(cmd, cfg); err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	files, err := collectFiles(cmd, cfg, paths)
	if err != nil {
		return err
	}
	if maxSize, _ := cmd.Flags().GetInt64("max-file-size"); maxSize > 0 {
		var skipped int
		files, skipped = scanner.FilterBySize(files, maxSize)
		if skipped > 0 && cfg.Output.Verbose {
			color.Yellow("Skipped %d oversized files", skipped)
		}
	}

	if len(files) == 0 {
		color.Yellow("No C/C++ source files found")
		return nil
	}

	lib := library.Default()
	libFiles, _ := cmd.Flags().GetStringSlice("library")
	if err := lib.Load(append(cfg.Library.Files, libFiles...)...); err != nil {
		return err
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	diagCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.Enabled && !noCache)
	if err != nil {
		return err
	}

	report, err := analyzeWithCache(ctx, cmd, cfg, lib, diagCache, files)
	if err != nil {
		return err
	}

	filterDisabledRules(cfg, report)

	format := cfg.Output.Format
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		format = f
	}
	outFile, _ := cmd.Flags().GetString("output")

	formatter, err := output.NewFormatter(output.ParseFormat(format), outFile, cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if cfg.Output.Verbose && formatter.Format() == output.FormatText {
		groups := scanner.NewScanner(cfg).GroupByLanguage(files)
		for lang, group := range groups {
			formatter.Info("%d %s files", len(group), lang)
		}
	}

	if err := formatter.Output(output.NewDiagnosticReport(report)); err != nil {
		return err
	}

	if report.StyleCount() > 0 {
		return errFindings
	}
	return nil
}

// collectFiles resolves the file set: explicit paths, or the subset git
// reports as changed when --changed/--since are given.
func collectFiles(cmd *cobra.Command, cfg *config.Config, paths []string) ([]string, error) {
	s := scanner.NewScanner(cfg)

	changed, _ := cmd.Flags().GetBool("changed")
	since, _ := cmd.Flags().GetString("since")

	if changed || since != "" {
		repo, err := vcs.Open(paths[0])
		if err != nil {
			return nil, err
		}

		var candidates []string
		if since != "" {
			candidates, err = repo.ChangedSince(since)
		} else {
			candidates, err = repo.ChangedFiles()
		}
		if err != nil {
			return nil, err
		}

		var files []string
		for _, f := range candidates {
			if ok, err := s.ScanFile(f); err == nil && ok {
				files = append(files, f)
			}
		}
		return files, nil
	}

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			found, err := s.ScanDir(path)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		if ok, err := s.ScanFile(path); err == nil && ok {
			files = append(files, path)
		}
	}
	return files, nil
}

// analyzeWithCache runs the analyzer over files, serving unchanged files
// from the diagnostic cache and storing fresh results back.
func analyzeWithCache(ctx context.Context, cmd *cobra.Command, cfg *config.Config, lib *library.Library, diagCache *cache.Cache, files []string) (*models.Report, error) {
	hashes := make(map[string]string, len(files))
	cached := make(map[string][]models.Diagnostic)
	var toAnalyze []string

	for _, f := range files {
		hash, err := cache.HashFile(f)
		if err != nil {
			toAnalyze = append(toAnalyze, f)
			continue
		}
		hashes[f] = hash
		if diags, ok := diagCache.Get(f, hash); ok {
			cached[f] = diags
			continue
		}
		toAnalyze = append(toAnalyze, f)
	}

	report := &models.Report{FilesTotal: len(files)}

	fresh := make(map[string][]models.Diagnostic, len(toAnalyze))
	if len(toAnalyze) > 0 {
		noProgress, _ := cmd.Flags().GetBool("no-progress")
		var tracker *progress.Tracker
		onProgress := func() {}
		if !noProgress {
			tracker = progress.NewTracker("Analyzing...", len(toAnalyze))
			onProgress = tracker.Tick
		}

		jobs, _ := cmd.Flags().GetInt("jobs")
		if jobs == 0 {
			jobs = cfg.Jobs
		}

		a := analyzer.New(
			analyzer.WithLibrary(lib),
			analyzer.WithJobs(jobs),
			analyzer.WithProgress(onProgress),
			analyzer.WithErrorHandler(func(path string, err error) {
				if cfg.Output.Verbose {
					color.Red("%s: %v", path, err)
				}
			}),
		)

		partial, err := a.AnalyzeFiles(ctx, toAnalyze)
		if tracker != nil {
			tracker.FinishSuccess()
		}
		if err != nil {
			return nil, fmt.Errorf("analysis failed: %w", err)
		}
		report.FilesFailed = partial.FilesFailed

		for _, d := range partial.Diagnostics {
			fresh[d.Location.File] = append(fresh[d.Location.File], d)
		}
		// Clean files produce no diagnostics but still deserve a cache
		// entry; failures must not be cached as clean.
		failed := failedSet(toAnalyze, partial, fresh)
		for _, f := range toAnalyze {
			if failed[f] {
				continue
			}
			if hash, ok := hashes[f]; ok {
				_ = diagCache.Set(f, hash, fresh[f])
			}
		}
	}

	for _, f := range files {
		if diags, ok := cached[f]; ok {
			report.Diagnostics = append(report.Diagnostics, diags...)
			continue
		}
		report.Diagnostics = append(report.Diagnostics, fresh[f]...)
	}
	return report, nil
}

// failedSet reconstructs which inputs failed: the analyzer reports only a
// count, so when nothing failed this is empty, otherwise the files without
// any result are treated as failed.
func failedSet(inputs []string, partial *models.Report, fresh map[string][]models.Diagnostic) map[string]bool {
	failed := make(map[string]bool)
	if partial.FilesFailed == 0 {
		return failed
	}
	succeeded := make(map[string]bool, len(fresh))
	for f := range fresh {
		succeeded[f] = true
	}
	// Files with zero diagnostics are indistinguishable from failures
	// here; skip caching all of them only when failures happened.
	for _, f := range inputs {
		if !succeeded[f] {
			failed[f] = true
		}
	}
	return failed
}

// applyRuleFlags layers --enable/--disable over the configured rule set.
func applyRuleFlags(cmd *cobra.Command, cfg *config.Config) error {
	enabled, _ := cmd.Flags().GetStringSlice("enable")
	disabled, _ := cmd.Flags().GetStringSlice("disable")

	for _, rule := range enabled {
		if !cfg.SetRule(rule, true) {
			return fmt.Errorf("unknown rule: %s", rule)
		}
	}
	for _, rule := range disabled {
		if !cfg.SetRule(rule, false) {
			return fmt.Errorf("unknown rule: %s", rule)
		}
	}
	return nil
}

// filterDisabledRules drops diagnostics whose rule is disabled in config.
func filterDisabledRules(cfg *config.Config, report *models.Report) {
	kept := report.Diagnostics[:0]
	for _, d := range report.Diagnostics {
		if cfg.RuleEnabled(string(d.Rule)) {
			kept = append(kept, d)
		}
	}
	report.Diagnostics = kept
}
