// Package config loads daemon configuration. Values come from an optional
// TOML file seeded with defaults; environment variables always win, because
// the service is normally deployed as a container configured entirely
// through its environment.
package config
