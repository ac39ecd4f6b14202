// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// This package has no decal-specific dependencies and could be extracted
// as a standalone library.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties including Matroska tags
//   - Format: container-level metadata (duration, size)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Helper methods on Result handle the duration fallback chain needed for
// WebM files whose length only appears in stream DURATION tags.
package ffprobe
