// Package logger configures the application's zap logger.
//
// Two modes are supported: development (human-readable, colored levels)
// and production (JSON with ISO8601 timestamps). The level is parsed
// from configuration; both mode and level are validated here rather than
// in the config package so logging stays self-contained.
package logger
