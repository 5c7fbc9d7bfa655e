// Package config loads pkgj's runtime configuration: where packages
// stage and land on the device's storage partitions, the HTTP
// client's retry tuning, and the logging/progress knobs the pipeline
// and dispatcher read from.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting pkgj reads at startup.
type Config struct {
	// TempRoot is the staging root packages download into before the
	// dispatcher moves them to their final destination; each download
	// gets a TempRoot/<content_id> subdirectory.
	TempRoot string `mapstructure:"temp_root"`
	// Ux0Root is the filesystem path substituted for the device's
	// ux0: partition in install destinations (app, patch, addcont,
	// psm, rePatch).
	Ux0Root string `mapstructure:"ux0_root"`
	// PSPPartition is the filesystem path substituted for the
	// partition PSP/PSX content installs under (pspemu/PSP/GAME,
	// pspemu/ISO).
	PSPPartition string `mapstructure:"psp_partition"`
	// ShellDBPath is the sqlite file backing the shell's application
	// inventory, used to record a patch's displayed version.
	ShellDBPath string `mapstructure:"shell_db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// LogFilePath is the file logs are written to; blank writes to
	// stdout.
	LogFilePath string `mapstructure:"log_file_path"`

	HTTP struct {
		// Timeout is the per-request timeout.
		Timeout time.Duration `mapstructure:"timeout"`
		// RetryAttempts is the number of retries after the first
		// attempt.
		RetryAttempts int `mapstructure:"retry_attempts"`
		// RetryBackoff is the initial backoff duration.
		RetryBackoff time.Duration `mapstructure:"retry_backoff"`
		// RetryMaxBackoff caps the exponential backoff.
		RetryMaxBackoff time.Duration `mapstructure:"retry_max_backoff"`
	} `mapstructure:"http"`

	Download struct {
		// ProgressInterval is the minimum spacing between progress
		// callbacks/snapshots during a download.
		ProgressInterval time.Duration `mapstructure:"progress_interval"`
		// HeadBufferSize bounds how much of a package's head region
		// the pipeline is willing to buffer in memory while parsing
		// the header, meta table, and file index.
		HeadBufferSize int `mapstructure:"head_buffer_size"`
	} `mapstructure:"download"`

	Debugging struct {
		// PprofEnabled and PprofPort are loaded from the debugging
		// section, but nothing in pkgj reads them and no pprof server
		// is started.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		PprofPort    int  `mapstructure:"pprof_port"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "PKGJ"

// Defaults populates a Config with the values used when no config
// file or environment override is present.
func Defaults() *Config {
	c := &Config{
		TempRoot:     "./pkgj-tmp",
		Ux0Root:      "ux0:",
		PSPPartition: "ux0:",
		ShellDBPath:  "ur0:shell/db/app.db",
		LogLevel:     "info",
	}
	c.HTTP.Timeout = 30 * time.Second
	c.HTTP.RetryAttempts = 5
	c.HTTP.RetryBackoff = time.Second
	c.HTTP.RetryMaxBackoff = 30 * time.Second
	c.Download.ProgressInterval = 500 * time.Millisecond
	c.Download.HeadBufferSize = 4 * 1024 * 1024
	return c
}

// Load reads config.yaml from configPath, applies PKGJ_-prefixed
// environment overrides on top, and unmarshals the result. A missing
// config file is not an error: Load falls back to Defaults and lets
// environment variables and Viper's own defaults take over.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	setDefaults(v, Defaults())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	// Binds each nested key explicitly so e.g. download.head_buffer_size
	// can be set via PKGJ_DOWNLOAD_HEAD_BUFFER_SIZE.
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", k, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("temp_root", d.TempRoot)
	v.SetDefault("ux0_root", d.Ux0Root)
	v.SetDefault("psp_partition", d.PSPPartition)
	v.SetDefault("shell_db_path", d.ShellDBPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file_path", d.LogFilePath)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.retry_attempts", d.HTTP.RetryAttempts)
	v.SetDefault("http.retry_backoff", d.HTTP.RetryBackoff)
	v.SetDefault("http.retry_max_backoff", d.HTTP.RetryMaxBackoff)
	v.SetDefault("download.progress_interval", d.Download.ProgressInterval)
	v.SetDefault("download.head_buffer_size", d.Download.HeadBufferSize)
	v.SetDefault("debugging.pprof_enabled", d.Debugging.PprofEnabled)
	v.SetDefault("debugging.pprof_port", d.Debugging.PprofPort)
}
