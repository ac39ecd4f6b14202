package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/config"
	"decal/internal/kakao"
	"decal/internal/services"
)

// resolveCachedPack finds the catalog row for a pack reference. Numeric
// references are treated as pack ids, anything with a path separator as a
// share URL, and the rest as bare share link ids.
func resolveCachedPack(ctx context.Context, store *catalog.Store, ref string) (*catalog.Pack, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("pack reference is empty")
	}
	if packID, err := strconv.ParseInt(ref, 10, 64); err == nil {
		row, err := store.GetByPackID(ctx, packID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, services.Wrap(services.ErrNotFound, "catalog", "resolve pack",
				fmt.Sprintf("pack %d has not been fetched yet", packID), nil)
		}
		return row, nil
	}
	shareID := ref
	if strings.Contains(ref, "/") {
		parsed, err := kakao.ShareLinkID(ref)
		if err != nil {
			return nil, err
		}
		shareID = parsed
	}
	row, err := store.GetByShareLink(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "resolve pack",
			fmt.Sprintf("share link %q has not been fetched yet", shareID), nil)
	}
	return row, nil
}

// packInfoFromRow rebuilds pack metadata from a catalog row.
func packInfoFromRow(row *catalog.Pack) *kakao.PackInfo {
	return &kakao.PackInfo{
		PackID:       row.PackID,
		ShareLinkID:  row.ShareLinkID,
		TextID:       row.TextID,
		Title:        row.Title,
		TitleKR:      row.TitleKR,
		StickerCount: row.StickerCount,
		ArchiveMD5:   row.ArchiveMD5,
	}
}

// packDetails lays out the rows shown before a download is confirmed.
func packDetails(info *kakao.PackInfo) [][2]string {
	return [][2]string{
		{"Pack ID", strconv.FormatInt(info.PackID, 10)},
		{"Title", info.Title},
		{"Korean title", info.TitleKR},
		{"Stickers", strconv.Itoa(info.StickerCount)},
		{"Share link", info.ShareLinkID},
		{"Text ID", info.TextID},
	}
}

func resolveWorkers(cfg *config.Config, flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return cfg.Convert.Workers
}

// resolveScale prefers an explicit --scale flag over the configured value,
// including --scale=0 to disable scaling.
func resolveScale(cmd *cobra.Command, cfg *config.Config, flagValue int) int {
	if cmd.Flags().Changed("scale") {
		return flagValue
	}
	return cfg.Convert.ScalePx
}
