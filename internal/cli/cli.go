package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/chunkgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("chunkgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
chunkgrid - Schedules the jobs of a climate experiment on remote batch systems.

Usage:
  chunkgrid [options] CONFIG_PATH

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and job query server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	storeFlag := flagSet.String("store", app.StoreFile, "Snapshot store. Options: 'memory', 'file', 'postgres', 'etcd'.")
	storeDSNFlag := flagSet.String("store-dsn", "", "File path, Postgres DSN or comma separated etcd endpoints for the store.")
	eventsURLFlag := flagSet.String("events-url", "", "Socket.io server receiving job status events. Empty disables it.")
	eventsNSFlag := flagSet.String("events-namespace", "/", "Socket.io namespace for job status events.")
	rerunFlag := flagSet.String("rerun", "", "YAML or JSON file selecting the chunks to rerun.")
	newFlag := flagSet.Bool("new", false, "Generate the job list from scratch, ignoring the saved snapshot.")
	onceFlag := flagSet.Bool("once", false, "Run a single scheduling tick and exit.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: "expected a single CONFIG_PATH argument"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		ConfigPath:      flagSet.Arg(0),
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		Store:           strings.ToLower(*storeFlag),
		StoreDSN:        *storeDSNFlag,
		EventsURL:       *eventsURLFlag,
		EventsNamespace: *eventsNSFlag,
		RerunPath:       *rerunFlag,
		New:             *newFlag,
		Once:            *onceFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
