package magick_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"decal/internal/anim"
	"decal/internal/media/magick"
	"decal/internal/services"
)

// fakeExec emulates the magick CLI: the dump invocation writes PNG patches
// next to the input, the identify invocation prints canned metadata.
type fakeExec struct {
	identify   string
	frameSizes [][2]int
	dumpErr    error
}

func (f *fakeExec) Run(_ context.Context, _ string, args []string, onStdout func(string)) error {
	if len(args) > 0 && args[0] == "identify" {
		if onStdout != nil {
			onStdout(f.identify)
		}
		return nil
	}
	if f.dumpErr != nil {
		return f.dumpErr
	}
	if len(args) < 2 {
		return errors.New("unexpected args")
	}
	dir := filepath.Dir(args[1])
	for i, sz := range f.frameSizes {
		img := image.NewNRGBA(image.Rect(0, 0, sz[0], sz[1]))
		file, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame-%02d.png", i)))
		if err != nil {
			return err
		}
		if err := png.Encode(file, img); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}
	return nil
}

func TestSplitParsesIdentifyMetadata(t *testing.T) {
	exec := &fakeExec{
		identify: "10,10,10,5,5,+0,+0,AtopPreviousAlphaBlend,None|" +
			"12,10,10,6,4,+2,+4,AtopBackgroundAlphaBlend,Background|",
		frameSizes: [][2]int{{5, 5}, {6, 4}},
	}
	client, err := magick.New("magick", magick.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	result, err := client.Split(context.Background(), []byte("not inspected"))
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}

	if result.Width != 10 || result.Height != 10 {
		t.Fatalf("expected 10x10 canvas, got %dx%d", result.Width, result.Height)
	}
	if len(result.Records) != 2 || len(result.Frames) != 2 {
		t.Fatalf("expected 2 records and frames, got %d and %d", len(result.Records), len(result.Frames))
	}

	first := result.Records[0]
	if first.DurationCS != 10 {
		t.Fatalf("expected 10cs, got %d", first.DurationCS)
	}
	if first.Region != (anim.Rect{X: 0, Y: 0, W: 5, H: 5}) {
		t.Fatalf("unexpected first region: %+v", first.Region)
	}
	if first.Blend != anim.BlendAlpha || first.Dispose != anim.DisposeNone {
		t.Fatalf("unexpected first directives: blend=%v dispose=%v", first.Blend, first.Dispose)
	}

	second := result.Records[1]
	if second.Region != (anim.Rect{X: 2, Y: 4, W: 6, H: 4}) {
		t.Fatalf("unexpected second region: %+v", second.Region)
	}
	if second.Blend != anim.BlendOverwrite {
		t.Fatalf("expected overwrite blend, got %v", second.Blend)
	}
	if second.Dispose != anim.DisposeBackground {
		t.Fatalf("expected background disposal, got %v", second.Dispose)
	}

	if b := result.Frames[1].Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Fatalf("expected raw patch dimensions 6x4, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestSplitClampsZeroDelay(t *testing.T) {
	exec := &fakeExec{
		identify:   "0,8,8,8,8,+0,+0,AtopPreviousAlphaBlend,None|",
		frameSizes: [][2]int{{8, 8}},
	}
	client, err := magick.New("magick", magick.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	result, err := client.Split(context.Background(), nil)
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if result.Records[0].DurationCS != 1 {
		t.Fatalf("expected zero delay clamped to 1cs, got %d", result.Records[0].DurationCS)
	}
}

func TestSplitRejectsMalformedIdentify(t *testing.T) {
	exec := &fakeExec{
		identify:   "10,10,10,5,5|",
		frameSizes: [][2]int{{5, 5}},
	}
	client, err := magick.New("magick", magick.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = client.Split(context.Background(), nil)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "malformed identify entry") {
		t.Fatalf("expected malformed detail, got %q", err.Error())
	}
}

func TestSplitReportsDumpFailure(t *testing.T) {
	exec := &fakeExec{dumpErr: errors.New("exit status 1")}
	client, err := magick.New("magick", magick.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = client.Split(context.Background(), nil)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "dump frames") {
		t.Fatalf("expected dump detail, got %q", err.Error())
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := magick.New("  "); err == nil {
		t.Fatal("expected error for blank binary")
	}
}
