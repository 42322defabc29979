// Package config provides configuration loading, defaulting, and
// validation for Veridion Sentinel.
//
// Configuration is read from a YAML file, filled in with defaults, and
// optionally overridden by SENTINEL_* environment variables before a
// final validation pass. All validation errors are collected and
// reported together rather than failing on the first one.
package config
