// Package config loads, normalizes, and validates vidshrink configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDSHRINK_REDIS_PASSWORD and VIDSHRINK_MACHINE. The Config type centralizes
// every knob the worker and CLI need so the ledger, claim, and backup
// locations are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
