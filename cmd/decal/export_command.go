package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/fetch"
	"decal/internal/kakao"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "export <pack>",
		Short: "Write decrypted WEBP stickers without transcoding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
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
				target := strings.TrimSpace(dest)
				if target == "" {
					target = filepath.Join(cfg.Paths.OutputDir, kakao.SanitizeTitle(info.Title), "webp")
				}
				exported, err := fetch.ExportRaw(layout, info, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d stickers to %s\n", exported, target)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory (defaults to the output tree)")
	return cmd
}
