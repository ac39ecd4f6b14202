package encode_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"decal/internal/anim"
	"decal/internal/encode"
	"decal/internal/logging"
	"decal/internal/media/ffmpeg"
	"decal/internal/media/ffprobe"
	"decal/internal/services"
	"decal/internal/sticker"
)

// fakeRunner records every invocation, snapshots the playlist as it stood
// when ffmpeg ran, and writes a dummy artifact at the output path.
type fakeRunner struct {
	outputSize  int
	err         error
	invocations [][]string
	playlists   []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, args []string, _ func(string)) error {
	f.invocations = append(f.invocations, append([]string(nil), args...))
	if playlist := argAfter(args, "-i"); playlist != "" {
		if data, err := os.ReadFile(playlist); err == nil {
			f.playlists = append(f.playlists, string(data))
		}
	}
	if f.err != nil {
		return f.err
	}
	size := f.outputSize
	if size == 0 {
		size = 64
	}
	out := args[len(args)-1]
	return os.WriteFile(out, bytes.Repeat([]byte{0xAB}, size), 0o644)
}

func argAfter(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

type fakeProber struct {
	durations []float64
	calls     int
}

func (p *fakeProber) Inspect(context.Context, string) (ffprobe.Result, error) {
	if p.calls >= len(p.durations) {
		return ffprobe.Result{}, errors.New("unexpected probe call")
	}
	duration := p.durations[p.calls]
	p.calls++
	return ffprobe.Result{
		Format: ffprobe.Format{Duration: strconv.FormatFloat(duration, 'f', -1, 64)},
	}, nil
}

func newEncoder(t *testing.T, runner *fakeRunner, probe encode.Prober) *encode.Encoder {
	t.Helper()
	client, err := ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(runner))
	if err != nil {
		t.Fatalf("ffmpeg.New() error = %v", err)
	}
	enc, err := encode.New(client, probe, logging.NewNop())
	if err != nil {
		t.Fatalf("encode.New() error = %v", err)
	}
	return enc
}

func solidFrame(width, height int, fill color.NRGBA, duration float64) anim.Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	return anim.Frame{Image: img, Duration: duration}
}

func gifTask(id string) sticker.ProcessTask {
	return sticker.ProcessTask{
		ID:         id,
		InputPath:  "in.webp",
		Operations: []sticker.Operation{sticker.OpToGIF},
		OutputPath: "out/" + id + ".gif",
	}
}

func webmTask(id string) sticker.ProcessTask {
	return sticker.ProcessTask{
		ID:         id,
		InputPath:  "in.webp",
		ScalePx:    512,
		Operations: []sticker.Operation{sticker.OpScale, sticker.OpToWebM},
		OutputPath: "out/" + id + ".webm",
	}
}

func TestEncodeGIFDuplicatesFinalPlaylistEntry(t *testing.T) {
	runner := &fakeRunner{}
	enc := newEncoder(t, runner, &fakeProber{})
	workdir := t.TempDir()

	frames := []anim.Frame{solidFrame(10, 10, color.NRGBA{R: 255, A: 255}, 0.13)}
	result, err := enc.Encode(context.Background(), gifTask("4404138-001"), frames, workdir)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if filepath.Base(result.OutputPath) != "out.gif" {
		t.Fatalf("OutputPath = %q, want out.gif artifact", result.OutputPath)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if result.DurationSeconds != 0.13 {
		t.Fatalf("DurationSeconds = %v, want 0.13", result.DurationSeconds)
	}
	if len(runner.playlists) != 1 {
		t.Fatalf("playlists captured = %d, want 1", len(runner.playlists))
	}
	want := "file 'frame-00.png'\nduration 0.13\nfile 'frame-00.png'\n"
	if runner.playlists[0] != want {
		t.Fatalf("playlist mismatch\ngot:\n%s\nwant:\n%s", runner.playlists[0], want)
	}
}

func TestEncodeScaleResizesFramesBeforeEncoding(t *testing.T) {
	cases := []struct {
		name         string
		width        int
		height       int
		scale        int
		wantW, wantH int
	}{
		{"square", 10, 10, 5, 5, 5},
		{"landscape", 20, 10, 5, 5, 3},
		{"portrait", 10, 20, 5, 3, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			enc := newEncoder(t, runner, &fakeProber{})
			workdir := t.TempDir()

			task := gifTask("4404138-002")
			task.ScalePx = tc.scale
			task.Operations = []sticker.Operation{sticker.OpScale, sticker.OpToGIF}
			frames := []anim.Frame{solidFrame(tc.width, tc.height, color.NRGBA{G: 255, A: 255}, 0.1)}
			if _, err := enc.Encode(context.Background(), task, frames, workdir); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			file, err := os.Open(filepath.Join(workdir, "frame-00.png"))
			if err != nil {
				t.Fatalf("open frame: %v", err)
			}
			defer file.Close()
			img, err := png.Decode(file)
			if err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			bounds := img.Bounds()
			if bounds.Dx() != tc.wantW || bounds.Dy() != tc.wantH {
				t.Fatalf("scaled frame %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), tc.wantW, tc.wantH)
			}
		})
	}
}

func TestEncodeRemoveAlphaFlattensOntoWhite(t *testing.T) {
	runner := &fakeRunner{}
	enc := newEncoder(t, runner, &fakeProber{})
	workdir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(1, 0, color.RGBA{R: 255, A: 255})
	frames := []anim.Frame{{Image: img, Duration: 0.1}}

	task := gifTask("4404138-003")
	task.Operations = []sticker.Operation{sticker.OpRemoveAlpha, sticker.OpToGIF}
	if _, err := enc.Encode(context.Background(), task, frames, workdir); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	file, err := os.Open(filepath.Join(workdir, "frame-00.png"))
	if err != nil {
		t.Fatalf("open frame: %v", err)
	}
	defer file.Close()
	decoded, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	left := color.NRGBAModel.Convert(decoded.At(0, 0)).(color.NRGBA)
	if left != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("transparent pixel flattened to %v, want opaque white", left)
	}
	right := color.NRGBAModel.Convert(decoded.At(1, 0)).(color.NRGBA)
	if right != (color.NRGBA{R: 255, A: 255}) {
		t.Fatalf("opaque pixel = %v, want red", right)
	}
}

func TestEncodeWebMWithinCeiling(t *testing.T) {
	runner := &fakeRunner{}
	probe := &fakeProber{durations: []float64{0.4}}
	enc := newEncoder(t, runner, probe)
	workdir := t.TempDir()

	frames := []anim.Frame{
		solidFrame(10, 10, color.NRGBA{R: 255, A: 255}, 0.1),
		solidFrame(10, 10, color.NRGBA{G: 255, A: 255}, 0.2),
		solidFrame(10, 10, color.NRGBA{B: 255, A: 255}, 0.1),
	}
	result, err := enc.Encode(context.Background(), webmTask("4404138-004"), frames, workdir)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if result.CapIterations != 0 {
		t.Fatalf("CapIterations = %d, want 0", result.CapIterations)
	}
	if result.DurationSeconds != 0.4 {
		t.Fatalf("DurationSeconds = %v, want 0.4", result.DurationSeconds)
	}
	if filepath.Base(result.OutputPath) != "out.webm" {
		t.Fatalf("OutputPath = %q, want out.webm artifact", result.OutputPath)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if len(runner.invocations) != 1 {
		t.Fatalf("ffmpeg invocations = %d, want 1", len(runner.invocations))
	}
	if !strings.HasSuffix(runner.playlists[0], "duration 0.1\nfile 'frame-02.png'\n") {
		t.Fatalf("playlist missing duplicated final entry:\n%s", runner.playlists[0])
	}
}

func TestEncodeWebMCapLoopShrinksDurations(t *testing.T) {
	runner := &fakeRunner{}
	probe := &fakeProber{durations: []float64{6.0, 3.2, 3.0}}
	enc := newEncoder(t, runner, probe)
	workdir := t.TempDir()

	frames := []anim.Frame{
		solidFrame(10, 10, color.NRGBA{R: 255, A: 255}, 2.0),
		solidFrame(10, 10, color.NRGBA{G: 255, A: 255}, 2.0),
		solidFrame(10, 10, color.NRGBA{B: 255, A: 255}, 2.0),
	}
	result, err := enc.Encode(context.Background(), webmTask("4404138-005"), frames, workdir)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if result.CapIterations != 2 {
		t.Fatalf("CapIterations = %d, want 2", result.CapIterations)
	}
	if result.DurationSeconds != 3.0 {
		t.Fatalf("DurationSeconds = %v, want 3.0", result.DurationSeconds)
	}
	if len(runner.invocations) != 3 {
		t.Fatalf("ffmpeg invocations = %d, want 3", len(runner.invocations))
	}
	// First attempt divides by factor 2.0, second by 2.1.
	if !strings.Contains(runner.playlists[1], "duration 1\n") {
		t.Fatalf("first capped playlist should hold 1s frames:\n%s", runner.playlists[1])
	}
	if !strings.Contains(runner.playlists[2], "duration 0.952\n") {
		t.Fatalf("second capped playlist should hold 0.952s frames:\n%s", runner.playlists[2])
	}
	first := playlistDurations(t, runner.playlists[1])
	second := playlistDurations(t, runner.playlists[2])
	for i := range first {
		if second[i] >= first[i] {
			t.Fatalf("durations must shrink across attempts: %v then %v", first, second)
		}
		if second[i] <= 0 {
			t.Fatalf("duration %v must stay positive", second[i])
		}
	}
}

func playlistDurations(t *testing.T, playlist string) []float64 {
	t.Helper()
	var durations []float64
	for _, line := range strings.Split(playlist, "\n") {
		value, ok := strings.CutPrefix(line, "duration ")
		if !ok {
			continue
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			t.Fatalf("parse duration line %q: %v", line, err)
		}
		durations = append(durations, parsed)
	}
	return durations
}

func TestEncodeWebMCapLoopGivesUp(t *testing.T) {
	durations := make([]float64, 51)
	for i := range durations {
		durations[i] = 6.0
	}
	runner := &fakeRunner{}
	enc := newEncoder(t, runner, &fakeProber{durations: durations})
	workdir := t.TempDir()

	frames := []anim.Frame{solidFrame(10, 10, color.NRGBA{R: 255, A: 255}, 6.0)}
	_, err := enc.Encode(context.Background(), webmTask("4404138-006"), frames, workdir)
	if err == nil {
		t.Fatal("Encode() expected non-convergence error")
	}
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("Encode() error = %v, want ErrEncode", err)
	}
	if !strings.Contains(err.Error(), "after 50 attempts") {
		t.Fatalf("error %q missing attempt count", err)
	}
	if len(runner.invocations) != 51 {
		t.Fatalf("ffmpeg invocations = %d, want 51", len(runner.invocations))
	}
}

func TestEncodeWebMFlagsOversizeArtifact(t *testing.T) {
	runner := &fakeRunner{outputSize: 300 * 1024}
	probe := &fakeProber{durations: []float64{2.5}}
	enc := newEncoder(t, runner, probe)
	workdir := t.TempDir()

	frames := []anim.Frame{solidFrame(10, 10, color.NRGBA{R: 255, A: 255}, 2.5)}
	result, err := enc.Encode(context.Background(), webmTask("4404138-007"), frames, workdir)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !result.Oversize {
		t.Fatal("Oversize = false, want true for 300 KiB artifact")
	}
	if result.SizeBytes != 300*1024 {
		t.Fatalf("SizeBytes = %d, want %d", result.SizeBytes, 300*1024)
	}
}

func TestEncodeRejectsEmptyFrames(t *testing.T) {
	enc := newEncoder(t, &fakeRunner{}, &fakeProber{})
	_, err := enc.Encode(context.Background(), gifTask("4404138-008"), nil, t.TempDir())
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("Encode() error = %v, want ErrEncode", err)
	}
}

func TestEncodeToolFailurePropagates(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	enc := newEncoder(t, runner, &fakeProber{})
	frames := []anim.Frame{solidFrame(4, 4, color.NRGBA{R: 255, A: 255}, 0.1)}
	_, err := enc.Encode(context.Background(), gifTask("4404138-009"), frames, t.TempDir())
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("Encode() error = %v, want ErrEncode", err)
	}
}

func TestEncodeRequiresTerminalOperation(t *testing.T) {
	enc := newEncoder(t, &fakeRunner{}, &fakeProber{})
	task := gifTask("4404138-010")
	task.Operations = []sticker.Operation{sticker.OpScale}
	frames := []anim.Frame{solidFrame(4, 4, color.NRGBA{R: 255, A: 255}, 0.1)}
	_, err := enc.Encode(context.Background(), task, frames, t.TempDir())
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("Encode() error = %v, want ErrEncode", err)
	}
	if !strings.Contains(err.Error(), "no encode target") {
		t.Fatalf("error %q missing detail", err)
	}
}
