// Package anim models decoded sticker animations and composites their frames
// onto a shared canvas.
//
// Animated WebP stores each frame as a sub-region patch plus blend and
// disposal directives. Compose replays those directives in order and produces
// full-canvas snapshots suitable for encoding.
package anim

import "image"

// BlendMode controls how a frame's pixels combine with the canvas.
type BlendMode uint8

const (
	// BlendAlpha merges the frame over the canvas with the standard
	// source-over operator.
	BlendAlpha BlendMode = iota
	// BlendOverwrite replaces canvas pixels inside the region outright,
	// including the alpha channel.
	BlendOverwrite
)

// DisposeMode controls what happens to a frame's region once the next frame
// is due.
type DisposeMode uint8

const (
	// DisposeNone leaves the canvas untouched.
	DisposeNone DisposeMode = iota
	// DisposeBackground clears the frame's region to fully transparent
	// before the next frame composites.
	DisposeBackground
)

// Rect is a frame placement region on the canvas.
type Rect struct {
	X, Y, W, H int
}

// Bounds converts the region to image rectangle coordinates.
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// FrameRecord carries the placement and timing directives for one frame.
type FrameRecord struct {
	Index      int
	DurationCS int
	Region     Rect
	Blend      BlendMode
	Dispose    DisposeMode
}

// Seconds returns the frame duration in seconds.
func (r FrameRecord) Seconds() float64 {
	return float64(r.DurationCS) / 100
}

// Animation is a decoded sticker: canvas dimensions plus per-frame pixel data
// and directives. Frames[i] holds exactly the Region dimensions recorded in
// Records[i].
type Animation struct {
	Width   int
	Height  int
	Records []FrameRecord
	Frames  []image.Image
}

// Frame is one fully composited canvas snapshot with its display duration in
// seconds.
type Frame struct {
	Image    *image.RGBA
	Duration float64
}
