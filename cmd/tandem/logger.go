package main

import (
	"fmt"
	"os"

	"github.com/tandem-dev/tandem/pkg/logger"
)

// initLogger configures slog before any command runs. Priority per
// setting: CLI flag > LOG_LEVEL/LOG_FILE/LOG_FORMAT env var > default.
// The returned cleanup closes the log file when one was opened.
func initLogger(cliLevel, cliFile, cliFormat string) (func(), error) {
	levelStr := cliLevel
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = "info"
	}

	path := cliFile
	if path == "" {
		path = os.Getenv("LOG_FILE")
	}

	format := cliFormat
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	if format == "" {
		format = "simple"
	}

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if path != "" {
		file, closeFn, err := logger.OpenLogFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFn
	}

	logger.Init(level, output, format)
	return cleanup, nil
}
