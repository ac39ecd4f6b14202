package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/fetch"
	"decal/internal/sticker"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		assumeYes  bool
		quiet      bool
		threads    int
		noSubdir   bool
		proxyFlag  string
		redownload bool
		showOnly   bool
		toFormat   string
		scalePx    int
	)

	cmd := &cobra.Command{
		Use:   "fetch <share-link>",
		Short: "Download a sticker pack and optionally convert it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("proxy") {
				cfg.Fetch.Proxy = strings.TrimSpace(proxyFlag)
			}
			format := sticker.OutputFormat("")
			if toFormat != "" && toFormat != "none" {
				format, err = sticker.ParseFormat(toFormat)
				if err != nil {
					return err
				}
			}
			logger, err := ctx.session()
			if err != nil {
				return err
			}
			if !showOnly {
				release, err := ctx.acquireLock()
				if err != nil {
					return err
				}
				defer release()
			}
			return ctx.withCatalog(func(store *catalog.Store) error {
				svc, err := fetch.New(cfg, store, logger)
				if err != nil {
					return err
				}
				info, layout, err := svc.Resolve(cmd.Context(), args[0], redownload)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if showOnly || !quiet {
					fmt.Fprint(out, renderDetails(packDetails(info)))
					fmt.Fprintln(out)
				}
				if showOnly {
					return nil
				}
				if !assumeYes && !quiet {
					proceed, err := confirmProceed(cmd.InOrStdin(), out)
					if err != nil {
						return err
					}
					if !proceed {
						return nil
					}
				}
				if err := svc.Materialize(cmd.Context(), info, layout, redownload); err != nil {
					return err
				}
				if !quiet {
					line := fmt.Sprintf("Fetched pack %d to %s", info.PackID, layout.Root)
					if st, err := os.Stat(layout.ArchivePath()); err == nil {
						line += fmt.Sprintf(" (archive %s)", humanize.IBytes(uint64(st.Size())))
					}
					fmt.Fprintln(out, line)
				}
				if format == "" {
					return nil
				}
				tasks := fetch.BuildTasks(info, layout, format, resolveScale(cmd, cfg, scalePx), cfg.Paths.OutputDir, !noSubdir)
				return runConversion(cmd, cfg, logger, tasks, resolveWorkers(cfg, threads), quiet)
			})
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the download confirmation")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress tables and progress output (implies --yes)")
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "Worker count for conversion (0 uses the configured value)")
	cmd.Flags().BoolVar(&noSubdir, "no-subdir", false, "Skip the per-format output subdirectory")
	cmd.Flags().StringVar(&proxyFlag, "proxy", "", "Proxy URL for store requests")
	cmd.Flags().BoolVar(&redownload, "redownload", false, "Download the archive again even when the cached copy matches")
	cmd.Flags().BoolVar(&showOnly, "show", false, "Resolve and display pack details without downloading")
	cmd.Flags().StringVar(&toFormat, "to", "none", "Convert fetched stickers (gif or webm)")
	cmd.Flags().IntVar(&scalePx, "scale", 0, "Long side in pixels for GIF output (0 keeps the source size)")
	return cmd
}
