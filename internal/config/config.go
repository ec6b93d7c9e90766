// Package config loads the workbench configuration from YAML.
package config

import "time"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Plots   PlotsConfig   `yaml:"plots"`
	Model   ModelConfig   `yaml:"model"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes bounds request bodies, uploads included.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// SessionTTLSec is how long an idle wizard session is kept.
	SessionTTLSec int `yaml:"session_ttl_sec"`
}

// SessionTTL returns SessionTTLSec as a duration.
func (s ServerConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLSec) * time.Second
}

type StoreConfig struct {
	// Path of the SQLite catalogue of saved models.
	Path string `yaml:"path"`
	// Compress stores packages xz-compressed.
	Compress bool `yaml:"compress"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PlotsConfig struct {
	WidthIn  float64 `yaml:"width_in"`
	HeightIn float64 `yaml:"height_in"`
	Format   string  `yaml:"format"`
}

type ModelConfig struct {
	// Intercept is used when a session does not choose one.
	Intercept bool `yaml:"intercept"`
}
