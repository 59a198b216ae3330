package config

import (
	"os"
	"time"

	"bt-announce/common/bittorrent"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Config drives the one-shot announce tool.
type Config struct {
	PeerID      string `yaml:"peer_id"`
	Port        uint16 `yaml:"port"`
	NumWant     int32  `yaml:"num_want"`
	BaseTimeout int    `yaml:"base_timeout_seconds"`
	MaxAttempts int    `yaml:"max_attempts"`
	LogLevel    string `yaml:"log_level"`
	Mongo       string `yaml:"mongo"`
	ES          string `yaml:"es"`
	ESIndex     string `yaml:"es_index"`
}

func Default() *Config {
	return &Config{
		Port:        6881,
		NumWant:     -1,
		BaseTimeout: 15,
		MaxAttempts: 8,
		LogLevel:    "info",
	}
}

func ReadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.Annotatef(err, "parse %s", path)
	}
	err = cfg.Validate()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.PeerID) > 0 {
		_, err := bittorrent.ParsePeerID(c.PeerID)
		if err != nil {
			return errors.Trace(err)
		}
	}
	if c.BaseTimeout <= 0 {
		return errors.NotValidf("base_timeout_seconds %d", c.BaseTimeout)
	}
	if c.MaxAttempts <= 0 {
		return errors.NotValidf("max_attempts %d", c.MaxAttempts)
	}
	return nil
}

func (c *Config) BaseTimeoutDuration() time.Duration {
	return time.Duration(c.BaseTimeout) * time.Second
}

// PeerIDBytes returns the configured peer id or a generated one when unset.
func (c *Config) PeerIDBytes() [20]byte {
	if len(c.PeerID) == 0 {
		return bittorrent.GeneratePeerID()
	}
	id, _ := bittorrent.ParsePeerID(c.PeerID)
	return id
}
