package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/kakao"
)

func newPacksCommand(ctx *commandContext) *cobra.Command {
	packsCmd := &cobra.Command{
		Use:   "packs",
		Short: "Inspect and manage fetched packs",
	}

	packsCmd.AddCommand(newPacksListCommand(ctx))
	packsCmd.AddCommand(newPacksShowCommand(ctx))
	packsCmd.AddCommand(newPacksRemoveCommand(ctx))

	return packsCmd
}

func newPacksListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalogued packs, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				packs, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(packs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				rows := make([][]string, 0, len(packs))
				for _, row := range packs {
					rows = append(rows, []string{
						strconv.FormatInt(row.PackID, 10),
						row.Title,
						row.TitleKR,
						strconv.Itoa(row.StickerCount),
						humanize.Time(row.UpdatedAt),
					})
				}
				table := renderTable(
					[]string{"Pack ID", "Title", "Korean Title", "Stickers", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newPacksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <pack>",
		Short: "Show pack details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withCatalog(func(store *catalog.Store) error {
				row, err := resolveCachedPack(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				layout := kakao.NewLayout(cfg.PacksDir(), row.Title)
				details := [][2]string{
					{"Pack ID", strconv.FormatInt(row.PackID, 10)},
					{"Share link", row.ShareLinkID},
					{"Text ID", row.TextID},
					{"Title", row.Title},
					{"Korean title", row.TitleKR},
					{"Stickers", strconv.Itoa(row.StickerCount)},
					{"Archive MD5", row.ArchiveMD5},
					{"Raw assets", yesNo(layout.HasRawAssets())},
					{"Pack directory", layout.Root},
					{"First fetched", row.CreatedAt.Format("2006-01-02 15:04:05")},
					{"Last updated", humanize.Time(row.UpdatedAt)},
				}
				if st, err := os.Stat(layout.ArchivePath()); err == nil {
					details = append(details, [2]string{"Archive size", humanize.IBytes(uint64(st.Size()))})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDetails(details))
				return nil
			})
		},
	}
}

func newPacksRemoveCommand(ctx *commandContext) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "rm <pack>",
		Short: "Remove a pack from the catalog",
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
				removed, err := store.Remove(cmd.Context(), row.PackID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if removed {
					fmt.Fprintf(out, "Removed pack %d from the catalog\n", row.PackID)
				}
				if purge {
					layout := kakao.NewLayout(cfg.PacksDir(), row.Title)
					if err := os.RemoveAll(layout.Root); err != nil {
						return fmt.Errorf("delete pack directory: %w", err)
					}
					fmt.Fprintf(out, "Deleted %s\n", layout.Root)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the downloaded archive and raw stickers")
	return cmd
}
