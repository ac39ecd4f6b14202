// Package fetch acquires sticker packs from the emoticon store and keeps the
// local pack tree and the catalog in sync. It also derives the conversion
// tasks for a fetched pack.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"decal/internal/catalog"
	"decal/internal/config"
	"decal/internal/fileutil"
	"decal/internal/kakao"
	"decal/internal/logging"
	"decal/internal/services"
	"decal/internal/sticker"
	"decal/internal/xorpad"
)

// webmScalePx is the longer-side resolution Telegram expects of animated
// sticker submissions. WEBM tasks always scale to it; the encoder's scale
// filter enforces the same bound.
const webmScalePx = 512

// Service downloads pack archives and records fetched packs.
type Service struct {
	cfg     *config.Config
	client  *kakao.Client
	catalog *catalog.Store
	logger  *slog.Logger
}

// New constructs the fetch service with a store client built from the
// configured proxy and timeout.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) (*Service, error) {
	httpClient, err := kakao.NewHTTPClient(cfg.Fetch.Proxy, time.Duration(cfg.Fetch.RequestTimeout)*time.Second)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "build http client", "check the proxy setting", err)
	}
	return NewWithClient(cfg, store, logger, kakao.New(kakao.WithHTTPClient(httpClient))), nil
}

// NewWithClient allows injecting the store client (used in tests).
func NewWithClient(cfg *config.Config, store *catalog.Store, logger *slog.Logger, client *kakao.Client) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:     cfg,
		client:  client,
		catalog: store,
		logger:  logger.With(logging.String("component", "fetch")),
	}
}

// Resolve turns a share link into pack metadata and the pack's on-disk
// layout without mutating anything. The catalog answers first; the store is
// only asked for packs it has not seen, or when refresh demands fresh
// metadata.
func (s *Service) Resolve(ctx context.Context, shareLink string, refresh bool) (*kakao.PackInfo, kakao.Layout, error) {
	logger := logging.WithContext(ctx, s.logger)

	shareLinkID, err := kakao.ShareLinkID(shareLink)
	if err != nil {
		return nil, kakao.Layout{}, err
	}

	var info *kakao.PackInfo
	if !refresh {
		row, err := s.catalog.GetByShareLink(ctx, shareLinkID)
		if err != nil {
			return nil, kakao.Layout{}, fmt.Errorf("look up pack: %w", err)
		}
		if row != nil {
			info = &kakao.PackInfo{
				PackID:       row.PackID,
				ShareLinkID:  row.ShareLinkID,
				TextID:       row.TextID,
				Title:        row.Title,
				TitleKR:      row.TitleKR,
				StickerCount: row.StickerCount,
				ArchiveMD5:   row.ArchiveMD5,
			}
			logger.Debug("pack known to catalog",
				logging.Int64("pack_id", row.PackID),
				logging.String("title", row.Title))
		}
	}
	if info == nil {
		resolved, err := s.client.ResolvePack(ctx, shareLinkID)
		if err != nil {
			return nil, kakao.Layout{}, err
		}
		info = resolved
		logger.Info("resolved pack",
			logging.Int64("pack_id", info.PackID),
			logging.String("text_id", info.TextID),
			logging.String("title_kr", info.TitleKR),
			logging.Int("stickers", info.StickerCount))
	}

	layout := kakao.NewLayout(s.cfg.PacksDir(), info.Title)

	// A previous fetch may have recorded the digest in info.json even when
	// the catalog row is gone.
	if info.ArchiveMD5 == "" {
		if prev, err := layout.ReadInfo(); err == nil && prev.PackID == info.PackID {
			info.ArchiveMD5 = prev.ArchiveMD5
		}
	}

	return info, layout, nil
}

// Materialize makes a resolved pack fully present on disk: a digest-verified
// archive, extracted raw assets, info.json, and a catalog row. Work already
// done is skipped unless redownload forces a fresh copy.
func (s *Service) Materialize(ctx context.Context, info *kakao.PackInfo, layout kakao.Layout, redownload bool) error {
	logger := logging.WithContext(ctx, s.logger)

	if err := layout.Ensure(); err != nil {
		return services.Wrap(services.ErrConfiguration, "fetch", "prepare pack directory", "", err)
	}

	archivePath := layout.ArchivePath()
	downloaded := false
	if redownload || !archiveCurrent(archivePath, info.ArchiveMD5) {
		logger.Info("downloading pack archive",
			logging.Int64("pack_id", info.PackID),
			logging.String("destination", archivePath))
		digest, err := s.client.DownloadArchive(ctx, info.PackID, archivePath)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "fetch", "download archive", fmt.Sprintf("pack %d", info.PackID), err)
		}
		info.ArchiveMD5 = digest
		downloaded = true
	} else {
		logger.Info("archive already current", logging.String("md5", info.ArchiveMD5))
	}

	if downloaded || !layout.HasRawAssets() {
		extracted, err := kakao.ExtractArchive(archivePath, layout.RawDir())
		if err != nil {
			return services.Wrap(services.ErrDecode, "fetch", "extract archive", "", err)
		}
		logger.Info("extracted sticker assets", logging.Int("count", extracted))
		if extracted < info.StickerCount {
			logger.Warn("archive holds fewer stickers than the item metadata reports",
				logging.Int("extracted", extracted),
				logging.Int("expected", info.StickerCount))
		}
	}

	if err := layout.WriteInfo(*info); err != nil {
		return services.Wrap(services.ErrConfiguration, "fetch", "write pack info", "", err)
	}
	if _, err := s.catalog.Upsert(ctx, catalog.Pack{
		PackID:       info.PackID,
		ShareLinkID:  info.ShareLinkID,
		TextID:       info.TextID,
		Title:        info.Title,
		TitleKR:      info.TitleKR,
		StickerCount: info.StickerCount,
		ArchiveMD5:   info.ArchiveMD5,
	}); err != nil {
		return fmt.Errorf("record pack: %w", err)
	}
	return nil
}

// EnsurePack resolves and materializes in one step for callers that need no
// interaction between the two.
func (s *Service) EnsurePack(ctx context.Context, shareLink string, redownload bool) (*kakao.PackInfo, kakao.Layout, error) {
	info, layout, err := s.Resolve(ctx, shareLink, redownload)
	if err != nil {
		return nil, layout, err
	}
	if err := s.Materialize(ctx, info, layout, redownload); err != nil {
		return info, layout, err
	}
	return info, layout, nil
}

// archiveCurrent reports whether the archive on disk matches the recorded
// digest. Any read failure means a fresh download is due.
func archiveCurrent(path, wantMD5 string) bool {
	if wantMD5 == "" {
		return false
	}
	digest, err := fileutil.MD5File(path)
	if err != nil {
		return false
	}
	return digest == wantMD5
}

// BuildTasks derives one conversion task per sticker in the pack. The
// returned tasks point at the pack's raw assets and at delivery paths under
// outputRoot named by pack id and sticker index.
func BuildTasks(info *kakao.PackInfo, layout kakao.Layout, format sticker.OutputFormat, scalePx int, outputRoot string, subdir bool) []sticker.ProcessTask {
	px := scalePx
	if format == sticker.FormatWebM {
		px = webmScalePx
	}
	ops := make([]sticker.Operation, 0, 2)
	if px > 0 {
		ops = append(ops, sticker.OpScale)
	}
	if format == sticker.FormatWebM {
		ops = append(ops, sticker.OpToWebM)
	} else {
		ops = append(ops, sticker.OpToGIF)
	}

	dir := kakao.OutputDir(outputRoot, info.Title, format, px, subdir)
	tasks := make([]sticker.ProcessTask, 0, info.StickerCount)
	for i := 1; i <= info.StickerCount; i++ {
		tasks = append(tasks, sticker.ProcessTask{
			ID:         kakao.StickerID(info.PackID, i),
			InputPath:  layout.RawSticker(info.PackID, i),
			ScalePx:    px,
			Operations: ops,
			OutputPath: filepath.Join(dir, kakao.OutputFileName(info.PackID, i, format)),
		})
	}
	return tasks
}

// ExportRaw decrypts the pack's obfuscated assets into destDir as plain WebP
// files named like the delivered artifacts. Missing indexes are skipped; the
// count of written files is returned.
func ExportRaw(layout kakao.Layout, info *kakao.PackInfo, destDir string) (int, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("create export directory: %w", err)
	}
	pad := xorpad.Default()
	exported := 0
	for i := 1; i <= info.StickerCount; i++ {
		data, err := os.ReadFile(layout.RawSticker(info.PackID, i))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return exported, fmt.Errorf("read sticker %s: %w", kakao.StickerID(info.PackID, i), err)
		}
		name := fmt.Sprintf("%d-%03d.webp", info.PackID, i)
		if err := os.WriteFile(filepath.Join(destDir, name), pad.Decrypt(data), 0o644); err != nil {
			return exported, fmt.Errorf("write %s: %w", name, err)
		}
		exported++
	}
	return exported, nil
}
