package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/schollz/progressbar/v3"

	"hamup/internal/config"
	"hamup/internal/creds"
	"hamup/internal/hamster"
	"hamup/internal/result"
	"hamup/internal/run"
	"hamup/internal/scan"
)

// UploadOptions are the command-level inputs for one upload run.
type UploadOptions struct {
	Paths     []string
	Mode      scan.Mode
	Policy    result.Policy
	Overrides creds.Overrides
}

// ResolveTargets decides the run targets and mode from command arguments,
// falling back to working_path and upload_mode in the config, the way the
// original settings file was used.
func ResolveTargets(args []string, modeFlag string, cfg config.Config) ([]string, scan.Mode, error) {
	modeStr := modeFlag
	if modeStr == "" {
		modeStr = cfg.UploadMode
	}
	if modeStr == "" {
		modeStr = string(scan.ModeSingle)
	}
	mode, err := scan.ParseMode(modeStr)
	if err != nil {
		return nil, "", err
	}

	paths := args
	if len(paths) == 0 && cfg.WorkingPath != "" {
		paths = []string{cfg.WorkingPath}
	}
	if len(paths) == 0 {
		return nil, "", errors.New("no target path: pass arguments or set working_path in config")
	}
	if mode == scan.ModeGroup && len(paths) != 1 {
		return nil, "", fmt.Errorf("group mode wants exactly one folder, got %d paths", len(paths))
	}
	return paths, mode, nil
}

// Upload executes one upload run against the configured site, rendering
// progress on the terminal. Interrupt (Ctrl-C) stops starting new uploads;
// the one in flight finishes and partial results are persisted.
func Upload(ctx context.Context, cfg config.Config, opts UploadOptions) error {
	client := hamster.NewClient(cfg.SiteURL)
	store := creds.NewStore(cfg.CredsPath())

	var bar *progressbar.ProgressBar
	runner := run.NewRunner(store, client, run.Options{
		Paths:     opts.Paths,
		Mode:      opts.Mode,
		Policy:    opts.Policy,
		Overrides: opts.Overrides,
		OnProgress: func(ev run.Event) {
			if bar == nil {
				bar = newProgressBar(ev.Total)
			}
			bar.Describe(fmt.Sprintf("(%d/%d) %s:", ev.Index, ev.Total, ev.Outcome.File))
			_ = bar.Add(1)
		},
		Decide: askKeepOrOverwrite,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			logger.Info("cancellation requested, finishing the upload in flight")
			runner.Cancel()
		case <-done:
		}
	}()

	summary, err := runner.Run(ctx)
	if bar != nil {
		_ = bar.Finish() // Ignore error on finish
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		if summary != nil && len(summary.Outcomes) > 0 {
			// The run failed but some uploads went through; show them so
			// the hosted URLs are not lost with the failure.
			logger.Error("run failed after partial progress",
				slog.String("run_id", summary.RunID),
				slog.Int("collected", len(summary.Outcomes)))
			printOutcomes(summary.Outcomes)
		}
		return err
	}

	printSummary(summary)
	return nil
}

func printSummary(summary *run.Summary) {
	printOutcomes(summary.Outcomes)
	fmt.Printf("Uploaded %d/%d", summary.Succeeded, summary.Attempted)
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	if summary.SkippedUnits > 0 {
		fmt.Printf(", %d skipped", summary.SkippedUnits)
	}
	fmt.Println()
	for _, path := range summary.RecordPaths {
		fmt.Println("Results saved to", path)
	}
	if summary.State == run.StateCancelled {
		fmt.Println("Cancelled; partial results were saved.")
	}
}

func printOutcomes(outcomes []result.Outcome) {
	for _, outcome := range outcomes {
		if outcome.Success {
			fmt.Printf("  %s -> %s\n", outcome.File, outcome.URL)
		} else {
			fmt.Printf("  %s -> failed (%s: %s)\n", outcome.File, outcome.Error.Kind, outcome.Error.Message)
		}
	}
}

// askKeepOrOverwrite prompts for an existing result file. EOF on stdin is
// treated as Keep, the safe choice.
func askKeepOrOverwrite(conflictPath string) result.Policy {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s exists. [K]eep or [O]verwrite? ", conflictPath)
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return result.PolicySkip
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "k", "keep":
			return result.PolicySkip
		case "o", "overwrite":
			return result.PolicyOverwrite
		}
		fmt.Println("Please answer K or O.")
	}
}
