// Package config loads, normalizes, and validates gateway configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FORMS2XML_DB_CONN and ORACLE_HOME. The Config type centralizes every knob the
// server and CLI need so the staging directory, the Forms tool environment,
// and HTTP limits are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
