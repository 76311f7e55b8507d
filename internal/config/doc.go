// Package config loads, normalizes, and validates feedbackpipe configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FEEDBACKPIPE_ACCESS_TOKEN and GOOGLE_APPLICATION_CREDENTIALS. The Config
// type centralizes every knob the CLI needs: capture devices, prompt clips,
// upload policy, and credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
