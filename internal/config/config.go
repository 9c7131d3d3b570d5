// Package config holds runtime configuration (flags and environment
// via viper) and the collections file that declares which feature
// collections the server exposes.
package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the server.
type Config struct {
	Port         int
	ConfigFile   string
	AdminSecret  string
	DefaultLimit int
	MaxLimit     int
}

// Load reads configuration from viper, which merges flag values, env
// vars, and defaults (set up by the cobra command in cmd/featureserv).
func Load() Config {
	return Config{
		Port:         viper.GetInt("port"),
		ConfigFile:   viper.GetString("config"),
		AdminSecret:  viper.GetString("admin_secret"),
		DefaultLimit: viper.GetInt("default_limit"),
		MaxLimit:     viper.GetInt("max_limit"),
	}
}
