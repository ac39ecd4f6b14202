package kakao

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Layout maps a pack onto its working tree under the packs directory:
//
//	<packs>/<title>/info.json
//	<packs>/<title>/dl/archive.zip
//	<packs>/<title>/raw/<pack>.emot_NNN.webp
//
// Files under raw/ stay obfuscated; they are decrypted per task or on
// export.
type Layout struct {
	Root string
}

// NewLayout places a pack under packsDir using its sanitized title.
func NewLayout(packsDir, title string) Layout {
	return Layout{Root: filepath.Join(packsDir, SanitizeTitle(title))}
}

func (l Layout) InfoPath() string    { return filepath.Join(l.Root, "info.json") }
func (l Layout) ArchiveDir() string  { return filepath.Join(l.Root, "dl") }
func (l Layout) ArchivePath() string { return filepath.Join(l.ArchiveDir(), "archive.zip") }
func (l Layout) RawDir() string      { return filepath.Join(l.Root, "raw") }

// RawSticker is the path of the index-th obfuscated sticker (1-based).
func (l Layout) RawSticker(packID int64, index int) string {
	return filepath.Join(l.RawDir(), StickerFileName(packID, index))
}

// Ensure creates the pack's directory tree.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.ArchiveDir(), l.RawDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pack directory %s: %w", dir, err)
		}
	}
	return nil
}

// HasRawAssets reports whether raw/ holds at least one extracted sticker.
func (l Layout) HasRawAssets() bool {
	entries, err := os.ReadDir(l.RawDir())
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return true
		}
	}
	return false
}

// WriteInfo persists the pack record next to its assets.
func (l Layout) WriteInfo(info PackInfo) error {
	data, err := json.MarshalIndent(info, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal pack info: %w", err)
	}
	if err := os.WriteFile(l.InfoPath(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write pack info: %w", err)
	}
	return nil
}

// ReadInfo loads the pack record written by a previous fetch.
func (l Layout) ReadInfo() (PackInfo, error) {
	data, err := os.ReadFile(l.InfoPath())
	if err != nil {
		return PackInfo{}, fmt.Errorf("read pack info: %w", err)
	}
	var info PackInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return PackInfo{}, fmt.Errorf("decode pack info: %w", err)
	}
	return info, nil
}
