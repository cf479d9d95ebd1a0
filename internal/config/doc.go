// Package config loads, normalizes, and validates QuickView configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file when present, and honours
// environment fallbacks such as SILICONFLOW_API_KEY, DEEPSEEK_API_KEY, and
// BILIBILI_SESSDATA. Validation failures carry services.ErrConfiguration so
// the CLI can refuse to start a run that would fail on every item.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
