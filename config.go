package tpool

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type PoolConfig struct {
	Size         int  `yaml:"size"`
	LockOSThread bool `yaml:"lock_os_thread"` // pin each worker to its own OS thread
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Root string `yaml:"root"` // directory holding the response bodies

	PoolSize      int           `yaml:"pool_size"`
	MaxConns      int           `yaml:"max_conns"` // 0 = unlimited
	SleepDelay    time.Duration `yaml:"sleep_delay"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	StatsInterval time.Duration `yaml:"stats_interval"` // 0 disables stats logging

	Log LogConfig `yaml:"log"`
}

type ClientConfig struct {
	Addr        string        `yaml:"addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	DialRetries uint64        `yaml:"dial_retries"`
}

type LogConfig struct {
	AccessFile string `yaml:"access_file"`
	ErrorFile  string `yaml:"error_file"`
	AppFile    string `yaml:"app_file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          "127.0.0.1:6900",
		Root:          ".",
		PoolSize:      4,
		SleepDelay:    5 * time.Second,
		ReadTimeout:   10 * time.Second,
		StatsInterval: 30 * time.Second,
		Log: LogConfig{
			AccessFile: "./logs/access.log",
			ErrorFile:  "./logs/error.log",
			AppFile:    "./logs/pool.log",
			MaxSize:    50, // MB
			MaxBackups: 30,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Addr:        "127.0.0.1:6900",
		DialTimeout: 3 * time.Second,
		DialRetries: 3,
	}
}

// LoadServerConfig reads a YAML file on top of DefaultServerConfig.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}
