package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	BaseURL string `yaml:"base_url"` // REST
	WSURL   string `yaml:"ws_url"`   // live stream
	Addr    string `yaml:"addr"`     // devserver listen address
}

type Identity struct {
	UserID   string `yaml:"user_id"`
	Username string `yaml:"username"`
}

type Typing struct {
	Timeout string `yaml:"timeout"` // debounce window, e.g. "3s"
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // wavenet-client
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	Server   Server   `yaml:"server"`
	Identity Identity `yaml:"identity"`
	Typing   Typing   `yaml:"typing"`
	Logging  Logging  `yaml:"logging"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" && c.Server.Addr == "" {
		return errors.New("server.base_url or server.addr is required")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "wavenet-client"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

// TypingTimeout parses typing.timeout, defaulting to 3s.
func (c *Config) TypingTimeout() time.Duration {
	return parseDurationOr(3*time.Second, c.Typing.Timeout)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
