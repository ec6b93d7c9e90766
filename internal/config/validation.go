package config

import (
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, errors.Wrap(err, "server"))
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, errors.Wrap(err, "store"))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, errors.Wrap(err, "logging"))
	}

	if err := c.Plots.Validate(); err != nil {
		errs = append(errs, errors.Wrap(err, "plots"))
	}

	return errors.Join(errs...)
}

func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return errors.Newf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MaxUploadBytes < 1 {
		return errors.Newf("max_upload_bytes must be positive, got %d", s.MaxUploadBytes)
	}
	if s.SessionTTLSec < 1 {
		return errors.Newf("session_ttl_sec must be at least 1, got %d", s.SessionTTLSec)
	}
	return nil
}

func (s *StoreConfig) Validate() error {
	if s.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return errors.Newf("invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[l.Format] {
		return errors.Newf("invalid log format: %s (valid: json, console)", l.Format)
	}

	return nil
}

func (p *PlotsConfig) Validate() error {
	if p.WidthIn <= 0 || p.HeightIn <= 0 {
		return errors.Newf("width_in and height_in must be positive, got %gx%g", p.WidthIn, p.HeightIn)
	}
	if p.Format != "png" && p.Format != "svg" {
		return errors.Newf("invalid plot format: %s (valid: png, svg)", p.Format)
	}
	return nil
}
