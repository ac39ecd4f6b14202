package kakao

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractArchive unpacks sticker payloads from a pack archive into rawDir.
// Only .webp and .gif entries are kept and nested paths are flattened to
// their base name, so a hostile archive cannot write outside rawDir. Entries
// are copied as-is and remain obfuscated on disk.
func ExtractArchive(archivePath, rawDir string) (int, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	extracted := 0
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(entry.Name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".webp", ".gif":
		default:
			continue
		}
		if err := extractEntry(entry, filepath.Join(rawDir, name)); err != nil {
			return extracted, fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		extracted++
	}
	if extracted == 0 {
		return 0, fmt.Errorf("archive %s holds no sticker entries", filepath.Base(archivePath))
	}
	return extracted, nil
}

func extractEntry(entry *zip.File, dst string) error {
	in, err := entry.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
