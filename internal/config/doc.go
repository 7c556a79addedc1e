// Package config loads, normalizes, and validates viralforge configuration.
//
// Configuration is read from TOML (default ~/.config/viralforge/config.toml),
// layered over Default(), with secrets optionally supplied through the
// environment or a .env file. Normalization expands paths and applies
// environment fallbacks; Validate rejects values the pipeline cannot run with.
package config
