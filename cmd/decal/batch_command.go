package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/fetch"
	"decal/internal/logging"
	"decal/internal/sticker"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		toFormat   string
		scalePx    int
		threads    int
		noSubdir   bool
		quiet      bool
		redownload bool
	)

	cmd := &cobra.Command{
		Use:   "batch <links-file>",
		Short: "Fetch every share link listed in a file",
		Long: `Fetch every share link listed in a file, one link per line.

Blank lines and lines starting with # are skipped. Failures are reported
per link and do not stop the remaining downloads.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			format := sticker.OutputFormat("")
			if toFormat != "" && toFormat != "none" {
				format, err = sticker.ParseFormat(toFormat)
				if err != nil {
					return err
				}
			}
			links, err := readShareLinks(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(links) == 0 {
				fmt.Fprintln(out, "No share links found")
				return nil
			}
			logger, err := ctx.session()
			if err != nil {
				return err
			}
			release, err := ctx.acquireLock()
			if err != nil {
				return err
			}
			defer release()
			return ctx.withCatalog(func(store *catalog.Store) error {
				svc, err := fetch.New(cfg, store, logger)
				if err != nil {
					return err
				}
				failed := 0
				for i, link := range links {
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					started := time.Now()
					info, layout, err := svc.EnsurePack(cmd.Context(), link, redownload)
					if err != nil {
						failed++
						fmt.Fprintf(out, "[%d/%d] %s: %v\n", i+1, len(links), link, err)
						logger.Error("batch fetch failed",
							logging.String("share_link", link),
							logging.Error(err))
						continue
					}
					if format != "" {
						tasks := fetch.BuildTasks(info, layout, format, resolveScale(cmd, cfg, scalePx), cfg.Paths.OutputDir, !noSubdir)
						if err := runConversion(cmd, cfg, logger, tasks, resolveWorkers(cfg, threads), quiet); err != nil {
							failed++
							fmt.Fprintf(out, "[%d/%d] %s: %v\n", i+1, len(links), info.Title, err)
							continue
						}
					}
					if !quiet {
						fmt.Fprintf(out, "[%d/%d] %s: %d stickers in %s\n",
							i+1, len(links), info.Title, info.StickerCount, time.Since(started).Round(time.Second))
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d share links failed", failed, len(links))
				}
				if !quiet {
					fmt.Fprintf(out, "Processed %d share links\n", len(links))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&toFormat, "to", "none", "Convert fetched stickers (gif or webm)")
	cmd.Flags().IntVar(&scalePx, "scale", 0, "Long side in pixels for GIF output (0 keeps the source size)")
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "Worker count for conversion (0 uses the configured value)")
	cmd.Flags().BoolVar(&noSubdir, "no-subdir", false, "Skip the per-format output subdirectory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-link and progress output")
	cmd.Flags().BoolVar(&redownload, "redownload", false, "Download archives again even when cached copies match")
	return cmd
}

// readShareLinks loads one share link per line, skipping blanks and comments.
func readShareLinks(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer file.Close()

	var links []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		links = append(links, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	return links, nil
}
