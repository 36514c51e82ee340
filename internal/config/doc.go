// Package config loads, normalizes, and validates cutroom's TOML
// configuration. Defaults live in defaults.go, path expansion and env
// fallbacks in normalize.go, and usability checks in validate.go.
package config
