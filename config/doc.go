// Package config handles application configuration.
//
// The config package loads settings from a config.yaml file with viper,
// applies defaults for everything left unset, and validates the result.
// The loaded Config is immutable process-wide state: the sandbox policy,
// admission bounds, journal location, and logging setup all come from a
// single value created at startup.
package config
