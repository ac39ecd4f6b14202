package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/fetch"
	"decal/internal/kakao"
	"decal/internal/sticker"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		toFormat string
		scalePx  int
		threads  int
		noSubdir bool
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "convert <pack>",
		Short: "Convert a fetched pack into GIF or WEBM stickers",
		Long: `Convert a fetched pack into GIF or WEBM stickers.

The pack argument accepts a numeric pack id, a share URL, or a bare share
link id. The pack must have been fetched before it can be converted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			formatValue := toFormat
			if formatValue == "" {
				formatValue = cfg.Convert.Format
			}
			format, err := sticker.ParseFormat(formatValue)
			if err != nil {
				return err
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
				row, err := resolveCachedPack(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				info := packInfoFromRow(row)
				layout := kakao.NewLayout(cfg.PacksDir(), info.Title)
				if !layout.HasRawAssets() {
					return fmt.Errorf("pack %d has no downloaded stickers, run `decal fetch` first", info.PackID)
				}
				tasks := fetch.BuildTasks(info, layout, format, resolveScale(cmd, cfg, scalePx), cfg.Paths.OutputDir, !noSubdir)
				return runConversion(cmd, cfg, logger, tasks, resolveWorkers(cfg, threads), quiet)
			})
		},
	}

	cmd.Flags().StringVar(&toFormat, "to", "", "Output format, gif or webm (defaults to the configured format)")
	cmd.Flags().IntVar(&scalePx, "scale", 0, "Long side in pixels for GIF output (0 keeps the source size)")
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "Worker count (0 uses the configured value)")
	cmd.Flags().BoolVar(&noSubdir, "no-subdir", false, "Skip the per-format output subdirectory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}
