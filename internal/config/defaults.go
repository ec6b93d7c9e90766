package config

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MaxUploadBytes: 32 << 20,
			SessionTTLSec:  1800,
		},
		Store: StoreConfig{
			Path:     "workbench.db",
			Compress: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Plots: PlotsConfig{
			WidthIn:  6,
			HeightIn: 4,
			Format:   "png",
		},
		Model: ModelConfig{
			Intercept: true,
		},
	}
}
