// Package fileexporter implements a pipeline.Exporter that appends raw
// payload bytes to a rotated file.
package fileexporter

// Config is the fileexporter's decoded component configuration.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// DefaultConfig returns the zero-value-safe defaults applied when a
// field is unset.
func DefaultConfig() Config {
	return Config{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28}
}
