package kakao

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"decal/internal/sticker"
)

// SanitizeTitle turns a pack title into a directory-safe name: NFC
// normalization for Korean titles that arrive decomposed, filesystem-hostile
// characters stripped, whitespace runs collapsed to single underscores.
func SanitizeTitle(title string) string {
	title = norm.NFC.String(title)
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, title)
	return strings.Join(strings.Fields(cleaned), "_")
}

// StickerFileName is the archive entry name for the index-th sticker
// (1-based), e.g. "4404138.emot_001.webp".
func StickerFileName(packID int64, index int) string {
	return fmt.Sprintf("%d.emot_%03d.webp", packID, index)
}

// StickerID is the task identifier for the index-th sticker (1-based),
// e.g. "4404138-001".
func StickerID(packID int64, index int) string {
	return fmt.Sprintf("%d-%03d", packID, index)
}

// OutputFileName is the delivered artifact name for the index-th sticker.
func OutputFileName(packID int64, index int, format sticker.OutputFormat) string {
	return fmt.Sprintf("%d-%03d.%s", packID, index, format.Extension())
}

// OutputDir resolves the delivery directory for a pack and format. With
// subdir set the format gets its own directory under the pack; a non-zero
// scale is recorded as a directory suffix either way.
func OutputDir(root, title string, format sticker.OutputFormat, scalePx int, subdir bool) string {
	dir := filepath.Join(root, SanitizeTitle(title))
	if subdir {
		dir = filepath.Join(dir, string(format))
	}
	if scalePx > 0 {
		dir += fmt.Sprintf("_scale_%d", scalePx)
	}
	return dir
}
