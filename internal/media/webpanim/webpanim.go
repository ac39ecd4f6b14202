// Package webpanim demuxes animated WebP containers without external tools.
//
// The standard library and golang.org/x/image decode still WebP images only,
// so this package walks the RIFF chunk layout itself, extracts each ANMF
// frame's placement and timing directives, and re-wraps the frame bitstream
// as a standalone still image for decoding.
package webpanim

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/webp"

	"decal/internal/anim"
	"decal/internal/services"
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	anmfHeaderSize  = 16
	vp8xPayloadSize = 10

	vp8xFlagAlpha = 0x10
)

// Splitter demuxes WebP data into an Animation.
type Splitter struct {
	decode func(io.Reader) (image.Image, error)
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithDecoder overrides the still-image decoder used for individual frames.
func WithDecoder(fn func(io.Reader) (image.Image, error)) Option {
	return func(s *Splitter) {
		if fn != nil {
			s.decode = fn
		}
	}
}

// New constructs a Splitter backed by the x/image WebP decoder.
func New(opts ...Option) *Splitter {
	s := &Splitter{decode: webp.Decode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type frameInfo struct {
	x, y       int
	w, h       int
	durationMS int
	blend      anim.BlendMode
	dispose    anim.DisposeMode
	alpha      []byte
	fourCC     string
	bitstream  []byte
}

// Split parses the container and decodes every frame. Still images yield a
// single full-canvas frame record.
func (s *Splitter) Split(ctx context.Context, data []byte) (*anim.Animation, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, services.Wrap(services.ErrDecode, "split", "webpanim", "unrecognized container", nil)
	}

	var (
		canvasW, canvasH int
		haveVP8X         bool
		frames           []frameInfo
	)

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(data) {
		fourCC := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		payloadStart := offset + chunkHeaderSize
		if payloadStart+size > len(data) {
			return nil, services.Wrap(services.ErrDecode, "split", "webpanim",
				fmt.Sprintf("truncated %s chunk", fourCC), nil)
		}
		payload := data[payloadStart : payloadStart+size]

		switch fourCC {
		case "VP8X":
			if size < vp8xPayloadSize {
				return nil, services.Wrap(services.ErrDecode, "split", "webpanim", "short VP8X chunk", nil)
			}
			haveVP8X = true
			canvasW = le24(payload[4:7]) + 1
			canvasH = le24(payload[7:10]) + 1
		case "ANMF":
			frame, err := parseANMF(payload)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}

		offset = payloadStart + size
		if size%2 == 1 {
			offset++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(frames) == 0 {
		return s.splitStill(data)
	}
	if !haveVP8X {
		return nil, services.Wrap(services.ErrDecode, "split", "webpanim", "animation missing VP8X chunk", nil)
	}

	out := &anim.Animation{
		Width:   canvasW,
		Height:  canvasH,
		Records: make([]anim.FrameRecord, 0, len(frames)),
		Frames:  make([]image.Image, 0, len(frames)),
	}
	for i, frame := range frames {
		img, err := s.decode(bytes.NewReader(rewrapStill(frame)))
		if err != nil {
			return nil, services.Wrap(services.ErrDecode, "split", "webpanim",
				fmt.Sprintf("decode frame %d", i), err)
		}
		out.Records = append(out.Records, anim.FrameRecord{
			Index:      i,
			DurationCS: clampCentiseconds(frame.durationMS / 10),
			Region:     anim.Rect{X: frame.x, Y: frame.y, W: frame.w, H: frame.h},
			Blend:      frame.blend,
			Dispose:    frame.dispose,
		})
		out.Frames = append(out.Frames, img)
	}
	return out, nil
}

func (s *Splitter) splitStill(data []byte) (*anim.Animation, error) {
	img, err := s.decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "split", "webpanim", "decode still image", err)
	}
	b := img.Bounds()
	return &anim.Animation{
		Width:  b.Dx(),
		Height: b.Dy(),
		Records: []anim.FrameRecord{{
			Index:      0,
			DurationCS: clampCentiseconds(0),
			Region:     anim.Rect{X: 0, Y: 0, W: b.Dx(), H: b.Dy()},
		}},
		Frames: []image.Image{img},
	}, nil
}

func parseANMF(payload []byte) (frameInfo, error) {
	if len(payload) < anmfHeaderSize {
		return frameInfo{}, services.Wrap(services.ErrDecode, "split", "webpanim", "short ANMF chunk", nil)
	}

	frame := frameInfo{
		// Frame offsets are stored halved.
		x:          le24(payload[0:3]) * 2,
		y:          le24(payload[3:6]) * 2,
		w:          le24(payload[6:9]) + 1,
		h:          le24(payload[9:12]) + 1,
		durationMS: le24(payload[12:15]),
	}
	flags := payload[15]
	if flags>>1&1 == 1 {
		frame.blend = anim.BlendOverwrite
	} else {
		frame.blend = anim.BlendAlpha
	}
	if flags&1 == 1 {
		frame.dispose = anim.DisposeBackground
	} else {
		frame.dispose = anim.DisposeNone
	}

	offset := anmfHeaderSize
	for offset+chunkHeaderSize <= len(payload) {
		fourCC := string(payload[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(payload[offset+4 : offset+8]))
		start := offset + chunkHeaderSize
		if start+size > len(payload) {
			return frameInfo{}, services.Wrap(services.ErrDecode, "split", "webpanim",
				fmt.Sprintf("truncated %s subchunk", fourCC), nil)
		}
		switch fourCC {
		case "ALPH":
			frame.alpha = payload[start : start+size]
		case "VP8 ", "VP8L":
			frame.fourCC = fourCC
			frame.bitstream = payload[start : start+size]
		}
		if frame.bitstream != nil {
			break
		}
		offset = start + size
		if size%2 == 1 {
			offset++
		}
	}

	if frame.bitstream == nil {
		return frameInfo{}, services.Wrap(services.ErrDecode, "split", "webpanim", "ANMF frame missing bitstream", nil)
	}
	return frame, nil
}

// rewrapStill packages one frame's bitstream as a standalone still WebP so
// the x/image decoder can handle it. Frames with a separate alpha plane need
// the extended container layout.
func rewrapStill(frame frameInfo) []byte {
	var body bytes.Buffer
	if frame.alpha != nil {
		vp8x := make([]byte, vp8xPayloadSize)
		vp8x[0] = vp8xFlagAlpha
		putLE24(vp8x[4:7], frame.w-1)
		putLE24(vp8x[7:10], frame.h-1)
		writeChunk(&body, "VP8X", vp8x)
		writeChunk(&body, "ALPH", frame.alpha)
	}
	writeChunk(&body, frame.fourCC, frame.bitstream)

	var out bytes.Buffer
	out.Grow(riffHeaderSize + body.Len())
	out.WriteString("RIFF")
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(4+body.Len()))
	out.Write(size[:])
	out.WriteString("WEBP")
	out.Write(body.Bytes())
	return out.Bytes()
}

func writeChunk(buf *bytes.Buffer, fourCC string, payload []byte) {
	buf.WriteString(fourCC)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	buf.Write(size[:])
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
}

// clampCentiseconds keeps zero-length frames visible. Both the container
// format and downstream encoders treat 0 as "unspecified", which stalls GIF
// players, so the floor is one centisecond.
func clampCentiseconds(cs int) int {
	if cs < 1 {
		return 1
	}
	return cs
}

func le24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

func putLE24(dst []byte, v int) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}
