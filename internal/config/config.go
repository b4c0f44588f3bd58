// Package config holds the daemon's runtime configuration, populated from
// CLI flags by cmd/privacyradar's start subcommand.
package config

import "time"

// Config is the start subcommand's resolved configuration.
type Config struct {
	Interface        string
	Debug            bool
	DBPath           string
	Port             int
	SnapshotInterval time.Duration
}

// Default returns the start subcommand's flag defaults.
func Default() Config {
	return Config{
		DBPath:           "privacyradar.db",
		Port:             8737,
		SnapshotInterval: 4 * time.Second,
	}
}
