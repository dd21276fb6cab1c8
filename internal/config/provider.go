package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Provider supplies an immutable MatchConfig snapshot per orchestration
// run, so the engine never depends on hidden mutable state and can be
// re-configured between runs without restart.
type Provider interface {
	Snapshot() MatchConfig
}

// StaticProvider always returns the same snapshot. Used in tests and in
// deployments without a config file.
type StaticProvider struct {
	cfg MatchConfig
}

// NewStaticProvider validates and wraps a fixed config.
func NewStaticProvider(cfg MatchConfig) (*StaticProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{cfg: cfg}, nil
}

// Snapshot returns the fixed config.
func (p *StaticProvider) Snapshot() MatchConfig {
	return p.cfg
}

// FileProvider reads MatchConfig from a viper-supported file and re-reads
// it on an interval. Reads that fail validation keep the previous
// snapshot rather than propagating a broken config into running matches.
type FileProvider struct {
	path     string
	interval time.Duration
	log      *logrus.Logger

	mu       sync.RWMutex
	current  MatchConfig
	lastRead time.Time
}

// NewFileProvider loads the file once, failing fast on an invalid
// initial config. Keys absent from the file fall back to Default().
func NewFileProvider(path string, interval time.Duration, log *logrus.Logger) (*FileProvider, error) {
	p := &FileProvider{path: path, interval: interval, log: log}

	cfg, err := p.read()
	if err != nil {
		return nil, err
	}
	p.current = cfg
	p.lastRead = time.Now()
	return p, nil
}

// Snapshot returns the current config, refreshing from disk when the
// refresh interval has elapsed.
func (p *FileProvider) Snapshot() MatchConfig {
	p.mu.RLock()
	fresh := time.Since(p.lastRead) < p.interval
	cfg := p.current
	p.mu.RUnlock()

	if fresh {
		return cfg
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.lastRead) < p.interval {
		return p.current
	}

	next, err := p.read()
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"module": "config",
			"path":   p.path,
		}).WithError(err).Warn("match config refresh failed, keeping previous snapshot")
	} else {
		p.current = next
	}
	p.lastRead = time.Now()
	return p.current
}

func (p *FileProvider) read() (MatchConfig, error) {
	v := viper.New()
	v.SetConfigFile(p.path)

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		return MatchConfig{}, fmt.Errorf("read match config %s: %w", p.path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return MatchConfig{}, fmt.Errorf("parse match config %s: %w", p.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return MatchConfig{}, err
	}
	return cfg, nil
}
