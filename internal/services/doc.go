// Package services defines shared utilities consumed by the conversion
// pipeline and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp pack IDs, sticker IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     by pipeline stage (decode vs composite vs encode).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
