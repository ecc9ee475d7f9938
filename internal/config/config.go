package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for staffshift.
type Config struct {
	DatabasePath     string
	UploadDir        string
	ListenPort       int
	MaxUploadMB      int
	SynthHorizonDays int
	SynthDescription string
	LogLevel         string
	LogFile          string
}

// Load reads configuration from viper, which merges flag values, env
// vars, and defaults (set up by the cobra command in cmd/staffshift).
func Load() Config {
	return Config{
		DatabasePath:     viper.GetString("database"),
		UploadDir:        viper.GetString("upload_dir"),
		ListenPort:       viper.GetInt("listen_port"),
		MaxUploadMB:      viper.GetInt("max_upload_mb"),
		SynthHorizonDays: viper.GetInt("synth_horizon_days"),
		SynthDescription: viper.GetString("synth_description"),
		LogLevel:         viper.GetString("log_level"),
		LogFile:          viper.GetString("log_file"),
	}
}

// MaxUploadBytes returns the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}
