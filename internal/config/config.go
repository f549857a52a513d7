package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Attempt struct {
		MinStartWindow string `yaml:"minStartWindow"`
		PersistShuffle *bool  `yaml:"persistShuffle"`
		LockTimeout    string `yaml:"lockTimeout"`
	} `yaml:"attempt"`
	Retake struct {
		MaxClassWide *int `yaml:"maxClassWide"`
	} `yaml:"retake"`
	Correction struct {
		Workers int `yaml:"workers"`
	} `yaml:"correction"`
}

// Defaults returns the configuration used when no file overrides a value.
func Defaults() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Redis.TTL = "30s"
	cfg.Quiz.TTL = "10m"
	cfg.Attempt.MinStartWindow = "1m"
	persist := true
	cfg.Attempt.PersistShuffle = &persist
	cfg.Attempt.LockTimeout = "5s"
	maxClassWide := 3
	cfg.Retake.MaxClassWide = &maxClassWide
	cfg.Correction.Workers = 4
	return cfg
}

// Load reads YAML config from path on top of Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
