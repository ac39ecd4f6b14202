// Package magick splits animated WebP stickers using the ImageMagick CLI.
//
// It is the fallback splitter for container variants the native demuxer does
// not understand. Frames are dumped as raw sub-region patches (no coalesce)
// and placement directives come from identify metadata, so the output feeds
// the same compositor as the native path.
package magick

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"decal/internal/anim"
	"decal/internal/media/cmdexec"
	"decal/internal/services"
)

// identifyFormat emits one metadata entry per frame:
// delay, canvas w/h, frame w/h, frame x/y offset, blend, dispose.
const identifyFormat = "%T,%W,%H,%w,%h,%X,%Y,%[webp:mux-blend],%D|"

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ImageMagick CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs an ImageMagick client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("magick binary required")
	}
	client := &Client{
		binary: binary,
		exec:   cmdexec.Runner{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type frameMeta struct {
	durationCS int
	canvasW    int
	canvasH    int
	w, h       int
	x, y       int
	blend      anim.BlendMode
	dispose    anim.DisposeMode
}

// Split writes the sticker to a scratch directory, dumps its frames as PNG
// patches, and pairs them with identify metadata.
func (c *Client) Split(ctx context.Context, data []byte) (*anim.Animation, error) {
	workdir, err := os.MkdirTemp("", "magick-split-")
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "split", "magick", "create scratch dir", err)
	}
	defer os.RemoveAll(workdir)

	input := filepath.Join(workdir, "input.webp")
	if err := os.WriteFile(input, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrDecode, "split", "magick", "write input", err)
	}

	framePattern := filepath.Join(workdir, "frame-%02d.png")
	var toolOutput strings.Builder
	capture := func(line string) {
		if toolOutput.Len() > 0 {
			toolOutput.WriteByte('\n')
		}
		toolOutput.WriteString(line)
	}

	if err := c.exec.Run(ctx, c.binary, []string{input, framePattern}, capture); err != nil {
		return nil, services.Wrap(services.ErrDecode, "split", "magick",
			strings.TrimSpace("dump frames: "+toolOutput.String()), err)
	}

	toolOutput.Reset()
	if err := c.exec.Run(ctx, c.binary, []string{"identify", "-format", identifyFormat, input}, capture); err != nil {
		return nil, services.Wrap(services.ErrDecode, "split", "magick",
			strings.TrimSpace("identify: "+toolOutput.String()), err)
	}

	metas, err := parseIdentify(toolOutput.String())
	if err != nil {
		return nil, err
	}

	out := &anim.Animation{
		Width:   metas[0].canvasW,
		Height:  metas[0].canvasH,
		Records: make([]anim.FrameRecord, 0, len(metas)),
		Frames:  make([]image.Image, 0, len(metas)),
	}
	for i, meta := range metas {
		img, err := readFrame(filepath.Join(workdir, fmt.Sprintf("frame-%02d.png", i)))
		if err != nil {
			return nil, services.Wrap(services.ErrDecode, "split", "magick",
				fmt.Sprintf("read frame %d", i), err)
		}
		out.Records = append(out.Records, anim.FrameRecord{
			Index:      i,
			DurationCS: meta.durationCS,
			Region:     anim.Rect{X: meta.x, Y: meta.y, W: meta.w, H: meta.h},
			Blend:      meta.blend,
			Dispose:    meta.dispose,
		})
		out.Frames = append(out.Frames, img)
	}
	return out, nil
}

func readFrame(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return png.Decode(file)
}

func parseIdentify(output string) ([]frameMeta, error) {
	trimmed := strings.TrimSpace(output)
	trimmed = strings.TrimSuffix(trimmed, "|")
	if trimmed == "" {
		return nil, services.Wrap(services.ErrDecode, "split", "magick", "identify produced no frames", nil)
	}

	entries := strings.Split(trimmed, "|")
	metas := make([]frameMeta, 0, len(entries))
	for i, entry := range entries {
		fields := strings.Split(strings.TrimSpace(entry), ",")
		if len(fields) != 9 {
			return nil, services.Wrap(services.ErrDecode, "split", "magick",
				fmt.Sprintf("frame %d: malformed identify entry %q", i, entry), nil)
		}
		ints := make([]int, 7)
		for j := 0; j < 7; j++ {
			value, err := strconv.Atoi(strings.TrimSpace(fields[j]))
			if err != nil {
				return nil, services.Wrap(services.ErrDecode, "split", "magick",
					fmt.Sprintf("frame %d: field %d in %q", i, j, entry), err)
			}
			ints[j] = value
		}

		meta := frameMeta{
			durationCS: ints[0],
			canvasW:    ints[1],
			canvasH:    ints[2],
			w:          ints[3],
			h:          ints[4],
			x:          ints[5],
			y:          ints[6],
			blend:      parseBlend(fields[7]),
			dispose:    parseDispose(fields[8]),
		}
		if meta.durationCS < 1 {
			meta.durationCS = 1
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// parseBlend maps identify's webp:mux-blend property. AtopBackground means
// the frame replaces its region outright; everything else alpha-blends.
func parseBlend(value string) anim.BlendMode {
	if strings.Contains(strings.TrimSpace(value), "AtopBackground") {
		return anim.BlendOverwrite
	}
	return anim.BlendAlpha
}

func parseDispose(value string) anim.DisposeMode {
	if strings.EqualFold(strings.TrimSpace(value), "Background") {
		return anim.DisposeBackground
	}
	return anim.DisposeNone
}
