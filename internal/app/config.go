package app

import (
	"errors"
	"fmt"
)

// Store backends accepted by Config.Store.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreEtcd     = "etcd"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // hcl file or directory

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// Store selects the snapshot backend. StoreDSN is the file path, the
	// Postgres DSN or a comma separated list of etcd endpoints.
	Store    string
	StoreDSN string

	EventsURL       string
	EventsNamespace string

	// RerunPath is a selection file restricting the run to some chunks.
	RerunPath string
	// New ignores the saved snapshot.
	New bool
	// Once runs a single tick.
	Once bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.Store == "" {
		cfg.Store = StoreMemory
	}
	switch cfg.Store {
	case StoreMemory, StoreFile:
	case StorePostgres, StoreEtcd:
		if cfg.StoreDSN == "" {
			return nil, fmt.Errorf("store %q needs a DSN", cfg.Store)
		}
	default:
		return nil, fmt.Errorf("unknown store %q: must be 'memory', 'file', 'postgres' or 'etcd'", cfg.Store)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, errors.New("healthcheck port cannot be negative")
	}
	return &cfg, nil
}
