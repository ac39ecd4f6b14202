// Package sticker defines the conversion task model shared by the encoder
// and the worker pool.
package sticker

import (
	"fmt"
	"strings"

	"decal/internal/services"
)

// Operation is one step in a sticker conversion recipe.
type Operation string

const (
	// OpScale resizes composited frames so the longer side matches the
	// task's scale target before encoding.
	OpScale Operation = "scale"
	// OpRemoveAlpha flattens transparency onto a white backdrop.
	OpRemoveAlpha Operation = "remove_alpha"
	// OpToGIF encodes the frames as a looping GIF.
	OpToGIF Operation = "to_gif"
	// OpToWebM encodes the frames as a constant-frame-rate WebM.
	OpToWebM Operation = "to_webm"
)

// OutputFormat names a terminal encode target.
type OutputFormat string

const (
	FormatGIF  OutputFormat = "gif"
	FormatWebM OutputFormat = "webm"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(value string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "gif":
		return FormatGIF, nil
	case "webm":
		return FormatWebM, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "parse format", fmt.Sprintf("unsupported output format %q", value), nil)
	}
}

// Extension returns the file extension for the format, without a dot.
func (f OutputFormat) Extension() string {
	return string(f)
}

// ProcessTask describes one sticker conversion: an encrypted source file,
// the operations to apply, and where the finished artifact belongs.
type ProcessTask struct {
	// ID identifies the sticker, e.g. "4404138-001".
	ID string
	// InputPath points at the obfuscated source file.
	InputPath string
	// ScalePx is the longer-side target for OpScale. Zero means no resize.
	ScalePx int
	// Operations run in order; exactly one must be a terminal encode.
	Operations []Operation
	// OutputPath is the final artifact location.
	OutputPath string
}

// Target returns the terminal encode format, if the recipe has exactly one.
func (t ProcessTask) Target() (OutputFormat, bool) {
	var (
		found  OutputFormat
		toggle bool
	)
	for _, op := range t.Operations {
		switch op {
		case OpToGIF:
			if toggle {
				return "", false
			}
			found, toggle = FormatGIF, true
		case OpToWebM:
			if toggle {
				return "", false
			}
			found, toggle = FormatWebM, true
		}
	}
	return found, toggle
}

// Validate checks the task is runnable before it is queued.
func (t ProcessTask) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return services.Wrap(services.ErrValidation, "", "validate task", "sticker id required", nil)
	}
	if strings.TrimSpace(t.InputPath) == "" {
		return services.Wrap(services.ErrValidation, "", "validate task", fmt.Sprintf("sticker %s: input path required", t.ID), nil)
	}
	if strings.TrimSpace(t.OutputPath) == "" {
		return services.Wrap(services.ErrValidation, "", "validate task", fmt.Sprintf("sticker %s: output path required", t.ID), nil)
	}
	if t.ScalePx < 0 {
		return services.Wrap(services.ErrValidation, "", "validate task", fmt.Sprintf("sticker %s: scale must not be negative", t.ID), nil)
	}
	if len(t.Operations) == 0 {
		return services.Wrap(services.ErrValidation, "", "validate task", fmt.Sprintf("sticker %s: no operations", t.ID), nil)
	}
	for _, op := range t.Operations {
		switch op {
		case OpScale, OpRemoveAlpha, OpToGIF, OpToWebM:
		default:
			return services.Wrap(services.ErrValidation, "", "validate task", fmt.Sprintf("sticker %s: unknown operation %q", t.ID, op), nil)
		}
	}
	if _, ok := t.Target(); !ok {
		return services.Wrap(services.ErrValidation, "", "validate task", fmt.Sprintf("sticker %s: exactly one encode target required", t.ID), nil)
	}
	return nil
}
