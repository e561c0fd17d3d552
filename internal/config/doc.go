// Package config loads and validates the wa-gateway YAML configuration.
// Environment references in the form ${VAR} are expanded before parsing and
// duration strings are converted to time.Duration values.
package config
