// Package config loads, normalizes, and validates decal configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DECAL_PROXY. The Config type centralizes every knob the CLI needs, allowing
// data/output directories and external tool locations to be discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
