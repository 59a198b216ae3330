package config

import (
	"time"

	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/core/service"
)

type Config struct {
	service.ServiceConf
	Torrents           []string
	PeerID             string `json:",optional"`
	Port               int    `json:",default=6881"`
	NumWant            int    `json:",default=-1"`
	Seeding            bool   `json:",optional"`
	Mongo              string `json:",optional"`
	ElasticSearch      string `json:",optional"`
	ESIndex            string `json:",default=torrents"`
	Workers            int    `json:",default=8"`
	MaxQueueSize       int    `json:",default=256"`
	AnnounceRateLimit  int    `json:",default=10"`
	BaseTimeoutSeconds int    `json:",default=15"`
	MaxAttempts        int    `json:",default=8"`
	MinIntervalSeconds int    `json:",default=60"`
	MaxIntervalSeconds int    `json:",default=3600"`
	BloomBits          uint64 `json:",default=8388608"`
	BloomFilterPath    string `json:",optional"`
	ForceQuitSeconds   int    `json:",default=20"`
}

func (c *Config) MustSetUp() {
	c.ServiceConf.MustSetUp()
	proc.SetTimeToForceQuit(time.Duration(c.ForceQuitSeconds) * time.Second)
}

func (c *Config) BaseTimeout() time.Duration {
	return time.Duration(c.BaseTimeoutSeconds) * time.Second
}

func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSeconds) * time.Second
}

func (c *Config) MaxInterval() time.Duration {
	return time.Duration(c.MaxIntervalSeconds) * time.Second
}
