// Package config loads and validates courier configuration from TOML.
//
// Loading follows a fixed sequence: start from defaults, overlay the
// config file when present, normalize paths and fallback values, then
// validate. A config that fails validation never reaches callers.
package config
