package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/events"
	"github.com/vk/chunkgrid/internal/scheduler"
	"github.com/vk/chunkgrid/internal/snapshot"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	model      *config.Model
	dateFormat string

	platforms map[string]scheduler.Platform
	store     snapshot.Store
	publisher events.Publisher
	clock     func() time.Time

	// sched is set by Run before the HTTP server starts.
	sched      *scheduler.Scheduler
	httpServer *http.Server
}

// Option overrides one of the dependencies NewApp would otherwise build
// from configuration.
type Option func(*App)

// WithPlatforms replaces the platforms built from the platform blocks.
func WithPlatforms(platforms map[string]scheduler.Platform) Option {
	return func(a *App) { a.platforms = platforms }
}

// WithStore replaces the store selected by Config.Store.
func WithStore(store snapshot.Store) Option {
	return func(a *App) { a.store = store }
}

// WithPublisher replaces the log and socket.io publishers.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithClock overrides time.Now for the scheduler.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.clock = now }
}

// NewApp is the constructor for the main application. It loads the
// experiment through loader and builds every dependency not supplied by an
// Option.
func NewApp(ctx context.Context, outW io.Writer, appConfig *Config, loader config.Loader, opts ...Option) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded and translated into unified model.", "expid", model.Experiment.ID, "sections", len(model.Sections))

	format := model.Experiment.DateFormat
	if format == "" {
		format = coord.DateFormatFor(model.Experiment.StartDates)
	}
	a := &App{
		outW:       outW,
		logger:     logger,
		config:     appConfig,
		model:      model,
		dateFormat: format,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.platforms == nil {
		a.platforms, err = buildPlatforms(model, templateDir(appConfig.ConfigPath))
		if err != nil {
			return nil, err
		}
		logger.Debug("Platforms configured.", "count", len(a.platforms))
	}
	if a.store == nil {
		a.store, err = openStore(ctx, appConfig, model.Experiment.ID)
		if err != nil {
			return nil, err
		}
		logger.Debug("Snapshot store opened.", "store", appConfig.Store)
	}
	if a.publisher == nil {
		a.publisher, err = buildPublisher(appConfig)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Model returns the loaded experiment.
func (a *App) Model() *config.Model {
	return a.model
}

// templateDir is the directory job script paths are relative to: the
// configuration directory, or the directory of the configuration file.
func templateDir(path string) string {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
