// Package ffmpeg wraps the ffmpeg CLI invocations used by the encoder:
// image-sequence playlists muxed into GIF or WebM output.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"decal/internal/media/cmdexec"
)

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

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs an ffmpeg client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
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

// ConcatEntry is one frame reference in a concat demuxer playlist.
type ConcatEntry struct {
	File     string
	Duration float64
}

// WriteConcat writes a concat demuxer playlist. File names are resolved
// relative to the playlist's directory by ffmpeg. With repeatLast set, the
// final entry's file line is emitted once more without a duration so the
// demuxer honours the last frame's display time.
func WriteConcat(path string, entries []ConcatEntry, repeatLast bool) error {
	if len(entries) == 0 {
		return errors.New("concat playlist requires at least one entry")
	}
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "file '%s'\n", entry.File)
		fmt.Fprintf(&b, "duration %s\n", FormatDuration(entry.Duration))
	}
	if repeatLast {
		fmt.Fprintf(&b, "file '%s'\n", entries[len(entries)-1].File)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	return nil
}

// FormatDuration renders a duration in seconds without trailing zeros.
func FormatDuration(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// EncodeGIF renders a playlist into a GIF using a single generated palette
// with a reserved transparent slot. Pixels at or below the alpha threshold
// map to the transparent entry; everything else becomes opaque.
func (c *Client) EncodeGIF(ctx context.Context, playlistPath, outPath string, alphaThreshold int) error {
	filter := fmt.Sprintf(
		"split[a][b];[a]palettegen=reserve_transparent=1[p];[b][p]paletteuse=alpha_threshold=%d",
		alphaThreshold,
	)
	args := []string{
		"-y",
		"-f", "concat",
		"-i", playlistPath,
		"-filter_complex", filter,
		"-loop", "0",
		"-f", "gif",
		outPath,
	}
	return c.run(ctx, args)
}

// EncodeWebM renders a playlist into a constant-frame-rate WebM scaled so
// its longer side matches longSide.
func (c *Client) EncodeWebM(ctx context.Context, playlistPath, outPath string, longSide, fps int) error {
	scale := fmt.Sprintf("scale=w='if(gt(iw,ih),%d,-1)':h='if(gt(iw,ih),-1,%d)'", longSide, longSide)
	args := []string{
		"-y",
		"-f", "concat",
		"-i", playlistPath,
		"-vf", scale,
		"-r", strconv.Itoa(fps),
		"-fps_mode", "cfr",
		"-f", "webm",
		outPath,
	}
	return c.run(ctx, args)
}

const tailLimit = 12

type tailBuffer struct {
	lines []string
}

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > tailLimit {
		t.lines = t.lines[1:]
	}
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(strings.Join(t.lines, "; "))
}

func (c *Client) run(ctx context.Context, args []string) error {
	var tail tailBuffer
	if err := c.exec.Run(ctx, c.binary, args, tail.add); err != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
