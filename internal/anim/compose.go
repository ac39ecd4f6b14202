package anim

import (
	"fmt"
	"image"
	"image/draw"

	"decal/internal/services"
)

// Compose replays an animation's frame directives and returns one full-canvas
// snapshot per frame.
//
// For every frame after the first, the previous frame's disposal directive is
// applied before the new frame composites: DisposeBackground clears the
// previous region to transparent, DisposeNone leaves the canvas accumulated.
// A frame whose pixel data does not match its recorded region dimensions
// aborts the whole composition.
func Compose(src *Animation) ([]Frame, error) {
	if src == nil {
		return nil, services.Wrap(services.ErrComposite, "compose", "", "nil animation", nil)
	}
	if len(src.Records) != len(src.Frames) {
		return nil, services.Wrap(services.ErrComposite, "compose", "",
			fmt.Sprintf("record count %d does not match frame count %d", len(src.Records), len(src.Frames)), nil)
	}
	if len(src.Records) == 0 {
		return nil, nil
	}
	if src.Width <= 0 || src.Height <= 0 {
		return nil, services.Wrap(services.ErrComposite, "compose", "",
			fmt.Sprintf("invalid canvas %dx%d", src.Width, src.Height), nil)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	out := make([]Frame, 0, len(src.Records))

	for i, rec := range src.Records {
		if i > 0 && src.Records[i-1].Dispose == DisposeBackground {
			prev := src.Records[i-1].Region.Bounds()
			draw.Draw(canvas, prev, image.Transparent, image.Point{}, draw.Src)
		}

		frame := src.Frames[i]
		fb := frame.Bounds()
		if fb.Dx() != rec.Region.W || fb.Dy() != rec.Region.H {
			return nil, services.Wrap(services.ErrComposite, "compose", "",
				fmt.Sprintf("frame %d pixel data %dx%d does not match region %dx%d",
					i, fb.Dx(), fb.Dy(), rec.Region.W, rec.Region.H), nil)
		}

		op := draw.Over
		if rec.Blend == BlendOverwrite {
			op = draw.Src
		}
		draw.Draw(canvas, rec.Region.Bounds(), frame, fb.Min, op)

		snapshot := image.NewRGBA(canvas.Bounds())
		copy(snapshot.Pix, canvas.Pix)
		out = append(out, Frame{Image: snapshot, Duration: rec.Seconds()})
	}

	return out, nil
}
