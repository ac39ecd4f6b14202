// Package encode renders composited sticker frames into GIF or WebM
// artifacts via ffmpeg's concat demuxer.
//
// GIF output uses one generated palette for the whole sequence with a
// reserved transparent entry and a fixed alpha cutoff. WebM output is 30 fps
// constant frame rate with the longer side scaled to 512, squeezed under a
// 3 second ceiling by uniformly compressing frame durations and re-encoding
// until the probe agrees.
package encode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	xdraw "golang.org/x/image/draw"

	"decal/internal/anim"
	"decal/internal/logging"
	"decal/internal/media/ffmpeg"
	"decal/internal/media/ffprobe"
	"decal/internal/services"
	"decal/internal/sticker"
)

const (
	webmDurationCeiling = 3.0
	webmSizeCeiling     = 256 * 1024
	webmLongSide        = 512
	webmFrameRate       = 30
	capMaxIterations    = 50
	gifAlphaThreshold   = 128
)

// Prober reports container metadata for an encoded artifact.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// BinaryProber runs the given ffprobe binary for each inspection.
type BinaryProber struct {
	Binary string
}

func (p BinaryProber) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, p.Binary, path)
}

// Encoder turns frame sequences into delivery-ready artifacts.
type Encoder struct {
	ffmpeg *ffmpeg.Client
	probe  Prober
	logger *slog.Logger
}

// New constructs an encoder around an ffmpeg client and a prober.
func New(client *ffmpeg.Client, probe Prober, logger *slog.Logger) (*Encoder, error) {
	if client == nil {
		return nil, errors.New("ffmpeg client required")
	}
	if probe == nil {
		return nil, errors.New("prober required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Encoder{ffmpeg: client, probe: probe, logger: logger}, nil
}

// Result describes a finished encode. OutputPath stays inside the task's
// working directory; delivery to the final location is the caller's job.
type Result struct {
	OutputPath      string
	DurationSeconds float64
	SizeBytes       int64
	Oversize        bool
	CapIterations   int
}

// Encode applies the task's operations to the frames in order and renders
// the terminal format into workdir.
func (e *Encoder) Encode(ctx context.Context, task sticker.ProcessTask, frames []anim.Frame, workdir string) (Result, error) {
	if len(frames) == 0 {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "prepare", fmt.Sprintf("sticker %s: no frames to encode", task.ID), nil)
	}
	for _, op := range task.Operations {
		switch op {
		case sticker.OpScale:
			frames = scaleFrames(frames, task.ScalePx)
		case sticker.OpRemoveAlpha:
			frames = flattenFrames(frames)
		case sticker.OpToGIF:
			return e.encodeGIF(ctx, task, frames, workdir)
		case sticker.OpToWebM:
			return e.encodeWebM(ctx, task, frames, workdir)
		}
	}
	return Result{}, services.Wrap(services.ErrEncode, "encode", "prepare", fmt.Sprintf("sticker %s: no encode target in operations", task.ID), nil)
}

func (e *Encoder) encodeGIF(ctx context.Context, task sticker.ProcessTask, frames []anim.Frame, workdir string) (Result, error) {
	entries, err := writeFrames(workdir, frames)
	if err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "write frames", "sticker "+task.ID, err)
	}
	playlist := filepath.Join(workdir, "frames.txt")
	if err := ffmpeg.WriteConcat(playlist, entries, true); err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "write playlist", "sticker "+task.ID, err)
	}
	outPath := filepath.Join(workdir, "out.gif")
	if err := e.ffmpeg.EncodeGIF(ctx, playlist, outPath, gifAlphaThreshold); err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "render gif", "sticker "+task.ID, err)
	}
	size, err := fileSize(outPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "inspect gif", "sticker "+task.ID, err)
	}
	return Result{
		OutputPath:      outPath,
		DurationSeconds: totalDuration(entries),
		SizeBytes:       size,
	}, nil
}

func (e *Encoder) encodeWebM(ctx context.Context, task sticker.ProcessTask, frames []anim.Frame, workdir string) (Result, error) {
	entries, err := writeFrames(workdir, frames)
	if err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "write frames", "sticker "+task.ID, err)
	}
	playlist := filepath.Join(workdir, "frames.txt")
	if err := ffmpeg.WriteConcat(playlist, entries, true); err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "write playlist", "sticker "+task.ID, err)
	}
	rawPath := filepath.Join(workdir, "raw.webm")
	if err := e.ffmpeg.EncodeWebM(ctx, playlist, rawPath, webmLongSide, webmFrameRate); err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "render webm", "sticker "+task.ID, err)
	}
	measured, err := e.probeDuration(ctx, rawPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "probe webm", "sticker "+task.ID, err)
	}

	outPath := filepath.Join(workdir, "out.webm")
	iterations := 0
	if measured <= webmDurationCeiling {
		if err := os.Rename(rawPath, outPath); err != nil {
			return Result{}, services.Wrap(services.ErrEncode, "encode", "stage artifact", "sticker "+task.ID, err)
		}
	} else {
		measured, iterations, err = e.capDuration(ctx, task, entries, playlist, outPath, measured)
		if err != nil {
			return Result{}, err
		}
	}

	size, err := fileSize(outPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encode", "inspect webm", "sticker "+task.ID, err)
	}
	oversize := size > webmSizeCeiling
	if oversize {
		e.logger.Warn("artifact exceeds size ceiling",
			logging.String("sticker", task.ID),
			logging.String("size", humanize.IBytes(uint64(size))),
			logging.String("limit", humanize.IBytes(uint64(webmSizeCeiling))))
	}
	return Result{
		OutputPath:      outPath,
		DurationSeconds: measured,
		SizeBytes:       size,
		Oversize:        oversize,
		CapIterations:   iterations,
	}, nil
}

// capDuration re-encodes with uniformly compressed frame durations until the
// probed duration fits under the ceiling. The factor starts above 1 and only
// grows, so durations only shrink across attempts.
func (e *Encoder) capDuration(ctx context.Context, task sticker.ProcessTask, entries []ffmpeg.ConcatEntry, playlist, outPath string, measured float64) (float64, int, error) {
	factor := measured / webmDurationCeiling
	for attempt := 1; attempt <= capMaxIterations; attempt++ {
		scaled := make([]ffmpeg.ConcatEntry, len(entries))
		for i, entry := range entries {
			scaled[i] = ffmpeg.ConcatEntry{
				File:     entry.File,
				Duration: math.Trunc(entry.Duration/factor*1000) / 1000,
			}
		}
		if err := ffmpeg.WriteConcat(playlist, scaled, true); err != nil {
			return 0, 0, services.Wrap(services.ErrEncode, "encode", "write playlist", "sticker "+task.ID, err)
		}
		if err := e.ffmpeg.EncodeWebM(ctx, playlist, outPath, webmLongSide, webmFrameRate); err != nil {
			return 0, 0, services.Wrap(services.ErrEncode, "encode", "render webm", "sticker "+task.ID, err)
		}
		capped, err := e.probeDuration(ctx, outPath)
		if err != nil {
			return 0, 0, services.Wrap(services.ErrEncode, "encode", "probe webm", "sticker "+task.ID, err)
		}
		measured = capped
		if capped <= webmDurationCeiling {
			e.logger.Debug("duration ceiling satisfied",
				logging.String("sticker", task.ID),
				logging.Int("attempts", attempt),
				logging.Float64("duration", capped))
			return capped, attempt, nil
		}
		e.logger.Debug("duration still above ceiling",
			logging.String("sticker", task.ID),
			logging.Int("attempt", attempt),
			logging.Float64("duration", capped),
			logging.Float64("factor", factor))
		factor *= 1.05
	}
	detail := fmt.Sprintf("sticker %s: duration %.3fs still above %.1fs ceiling after %d attempts",
		task.ID, measured, webmDurationCeiling, capMaxIterations)
	return 0, 0, services.Wrap(services.ErrEncode, "encode", "cap duration", detail, nil)
}

func (e *Encoder) probeDuration(ctx context.Context, path string) (float64, error) {
	result, err := e.probe.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return 0, fmt.Errorf("probe reported no duration for %s", filepath.Base(path))
	}
	return duration, nil
}

// writeFrames dumps each frame as a PNG into dir and returns playlist
// entries pairing file names with display durations.
func writeFrames(dir string, frames []anim.Frame) ([]ffmpeg.ConcatEntry, error) {
	entries := make([]ffmpeg.ConcatEntry, 0, len(frames))
	for i, frame := range frames {
		name := fmt.Sprintf("frame-%02d.png", i)
		file, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("create frame %d: %w", i, err)
		}
		if err := png.Encode(file, frame.Image); err != nil {
			file.Close()
			return nil, fmt.Errorf("encode frame %d: %w", i, err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("close frame %d: %w", i, err)
		}
		entries = append(entries, ffmpeg.ConcatEntry{File: name, Duration: frame.Duration})
	}
	return entries, nil
}

// scaleFrames box-fits every frame so its longer side matches target.
func scaleFrames(frames []anim.Frame, target int) []anim.Frame {
	if target <= 0 {
		return frames
	}
	scaled := make([]anim.Frame, len(frames))
	for i, frame := range frames {
		scaled[i] = anim.Frame{Image: scaleImage(frame.Image, target), Duration: frame.Duration}
	}
	return scaled
}

func scaleImage(src *image.RGBA, target int) *image.RGBA {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return src
	}
	dw, dh := fitLongSide(width, height, target)
	if dw == width && dh == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
	return dst
}

func fitLongSide(width, height, target int) (int, int) {
	if width >= height {
		scaled := int(math.Round(float64(height) * float64(target) / float64(width)))
		if scaled < 1 {
			scaled = 1
		}
		return target, scaled
	}
	scaled := int(math.Round(float64(width) * float64(target) / float64(height)))
	if scaled < 1 {
		scaled = 1
	}
	return scaled, target
}

// flattenFrames composites every frame onto an opaque white backdrop.
func flattenFrames(frames []anim.Frame) []anim.Frame {
	flattened := make([]anim.Frame, len(frames))
	for i, frame := range frames {
		bounds := frame.Image.Bounds()
		dst := image.NewRGBA(bounds)
		draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(dst, bounds, frame.Image, bounds.Min, draw.Over)
		flattened[i] = anim.Frame{Image: dst, Duration: frame.Duration}
	}
	return flattened
}

func totalDuration(entries []ffmpeg.ConcatEntry) float64 {
	var total float64
	for _, entry := range entries {
		total += entry.Duration
	}
	return total
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	return info.Size(), nil
}
