package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/panbanda/vestige/internal/output"
	"github.com/panbanda/vestige/pkg/analyzer"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
	"github.com/panbanda/vestige/pkg/parser"
	"github.com/panbanda/vestige/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-analyze files as they change",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "Delay before re-analyzing a changed file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	lib := library.Default()
	if err := lib.Load(cfg.Library.Files...); err != nil {
		return err
	}
	a := analyzer.New(analyzer.WithLibrary(lib))

	debounce, _ := cmd.Flags().GetDuration("debounce")
	w, err := watch.NewWatcher(path, cfg, debounce)
	if err != nil {
		return err
	}
	defer w.Stop()

	formatter, err := output.NewFormatter(output.FormatText, "", cfg.Output.Color)
	if err != nil {
		return err
	}

	w.SetCallback(func(changed string) {
		p := parser.New()
		defer p.Close()

		diags, err := a.AnalyzeFile(p, changed)
		if err != nil {
			formatter.Error("%s: %v", changed, err)
			return
		}

		report := &models.Report{Diagnostics: diags, FilesTotal: 1}
		filterDisabledRules(cfg, report)
		if err := formatter.Output(output.NewDiagnosticReport(report)); err != nil {
			formatter.Error("render failed: %v", err)
		}
	})

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
