package kakao_test

import (
	"path/filepath"
	"testing"

	"decal/internal/kakao"
	"decal/internal/sticker"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"lovely.cat-v2", "lovely.cat-v2"},
		{`a/b:c*d?e"f<g>h|i`, "abcdefghi"},
		{"hello  world\tstickers", "hello_world_stickers"},
		{"  padded  ", "padded"},
		{"춘식이 스티커", "춘식이_스티커"},
		// Decomposed hangul from the API normalizes to the composed form.
		{"가", "가"},
	}
	for _, tc := range cases {
		if got := kakao.SanitizeTitle(tc.in); got != tc.want {
			t.Fatalf("SanitizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStickerNaming(t *testing.T) {
	if got := kakao.StickerFileName(4404138, 1); got != "4404138.emot_001.webp" {
		t.Fatalf("StickerFileName() = %q", got)
	}
	if got := kakao.StickerFileName(4404138, 23); got != "4404138.emot_023.webp" {
		t.Fatalf("StickerFileName() = %q", got)
	}
	if got := kakao.StickerID(4404138, 1); got != "4404138-001" {
		t.Fatalf("StickerID() = %q", got)
	}
	if got := kakao.OutputFileName(4404138, 7, sticker.FormatWebM); got != "4404138-007.webm" {
		t.Fatalf("OutputFileName() = %q", got)
	}
	if got := kakao.OutputFileName(4404138, 7, sticker.FormatGIF); got != "4404138-007.gif" {
		t.Fatalf("OutputFileName() = %q", got)
	}
}

func TestOutputDir(t *testing.T) {
	root := filepath.Join("out")
	cases := []struct {
		format  sticker.OutputFormat
		scalePx int
		subdir  bool
		want    string
	}{
		{sticker.FormatGIF, 0, true, filepath.Join("out", "my_pack", "gif")},
		{sticker.FormatWebM, 512, true, filepath.Join("out", "my_pack", "webm_scale_512")},
		{sticker.FormatWebM, 512, false, filepath.Join("out", "my_pack") + "_scale_512"},
		{sticker.FormatGIF, 0, false, filepath.Join("out", "my_pack")},
	}
	for _, tc := range cases {
		got := kakao.OutputDir(root, "my pack", tc.format, tc.scalePx, tc.subdir)
		if got != tc.want {
			t.Fatalf("OutputDir(%v, %d, %v) = %q, want %q", tc.format, tc.scalePx, tc.subdir, got, tc.want)
		}
	}
}
