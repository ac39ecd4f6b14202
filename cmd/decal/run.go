package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"decal/internal/config"
	"decal/internal/deps"
	"decal/internal/encode"
	"decal/internal/logging"
	"decal/internal/media/ffmpeg"
	"decal/internal/media/magick"
	"decal/internal/media/webpanim"
	"decal/internal/pipeline"
	"decal/internal/services"
	"decal/internal/sticker"
	"decal/internal/xorpad"
)

// checkConversionTools fails fast when a required external binary is missing.
func checkConversionTools(cfg *config.Config) error {
	missing := deps.MissingRequired(deps.CheckBinaries(deps.Defaults(cfg)))
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, status := range missing {
		names = append(names, status.Name)
	}
	return fmt.Errorf("missing required tools: %s (run `decal deps` for details)", strings.Join(names, ", "))
}

func buildSplitter(cfg *config.Config) (pipeline.Splitter, error) {
	if cfg.Convert.Splitter == "magick" {
		return magick.New(cfg.MagickBinary())
	}
	return webpanim.New(), nil
}

func newConversionPool(cfg *config.Config, workers int, logger *slog.Logger) (*pipeline.Pool, error) {
	splitter, err := buildSplitter(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure splitter: %w", err)
	}
	client, err := ffmpeg.New(cfg.FFmpegBinary())
	if err != nil {
		return nil, fmt.Errorf("configure ffmpeg: %w", err)
	}
	encoder, err := encode.New(client, encode.BinaryProber{Binary: cfg.FFprobeBinary()}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure encoder: %w", err)
	}
	pool, err := pipeline.New(workers, xorpad.Default(), splitter, encoder, logger)
	if err != nil {
		return nil, fmt.Errorf("configure pipeline: %w", err)
	}
	return pool, nil
}

// runConversion drives the pool over tasks and prints the outcome summary.
func runConversion(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, tasks []sticker.ProcessTask, workers int, quiet bool) error {
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		if !quiet {
			fmt.Fprintln(out, "Nothing to convert")
		}
		return nil
	}
	if err := checkConversionTools(cfg); err != nil {
		return err
	}
	pool, err := newConversionPool(cfg, workers, logger)
	if err != nil {
		return err
	}

	var display *conversionProgress
	if !quiet && isTerminal(out) {
		display = startConversionProgress(pool, len(tasks), out)
	}
	outcomes, runErr := pool.Run(cmd.Context(), tasks)
	if display != nil {
		completed, _ := pool.Progress()
		display.Finish(completed)
	}
	if runErr != nil {
		return runErr
	}

	var failures []pipeline.Outcome
	oversize := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failures = append(failures, outcome)
			continue
		}
		if outcome.Oversize {
			oversize++
		}
	}
	converted := len(outcomes) - len(failures)

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Task.ID < failures[j].Task.ID })
		rows := make([][]string, 0, len(failures))
		for _, failure := range failures {
			rows = append(rows, []string{failure.Task.ID, services.Kind(failure.Err), failure.Err.Error()})
		}
		table := renderTable([]string{"Sticker", "Kind", "Error"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
		fmt.Fprint(out, table)
		fmt.Fprintln(out)
	}
	if oversize > 0 {
		fmt.Fprintf(out, "%d stickers stayed above the WEBM size ceiling after duration capping\n", oversize)
	}
	if !quiet {
		fmt.Fprintf(out, "Converted %d/%d stickers\n", converted, len(tasks))
	}
	logger.Info("conversion finished",
		logging.Int("converted", converted),
		logging.Int("failed", len(failures)),
		logging.Int("oversize", oversize))
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d stickers failed", len(failures), len(tasks))
	}
	return nil
}
