// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"github.com/kent-3/keplr/dex"
)

const (
	maxLogRolls = 16

	// Subsystem names.
	logKeplr   = "KPLR"
	logRelay   = "RLAY"
	logCommand = "CTL"
)

// The wallet client logs the details of failed calls at debug.
var defaultLogLevelMap = map[string]slog.Level{logKeplr: slog.LevelDebug}

// logWriter implements an io.Writer that outputs to a rotating log file.
type logWriter struct {
	*rotator.Rotator
	stdout bool
}

// Write writes the data in p to the log file, and to stderr if requested.
// Stdout is reserved for command results.
func (w logWriter) Write(p []byte) (n int, err error) {
	if w.stdout {
		os.Stderr.Write(p)
	}
	return w.Rotator.Write(p)
}

// initLogging creates a log rotator writing to logFilename, with roll files
// in the same directory. The returned function closes the rotator.
func initLogging(logFilename, lvl string, stdout, utc bool) (*dex.LoggerMaker, func(), error) {
	err := os.MkdirAll(filepath.Dir(logFilename), 0700)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logRotator, err := rotator.New(logFilename, 32*1024, false, maxLogRolls)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	lm, err := dex.NewLoggerMaker(&logWriter{logRotator, stdout}, lvl, utc)
	if err != nil {
		logRotator.Close()
		return nil, nil, fmt.Errorf("failed to create custom logger: %w", err)
	}
	lm.SetLevelsFromMap(defaultLogLevelMap)
	return lm, func() {
		logRotator.Close()
	}, nil
}
