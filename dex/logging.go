// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/decred/slog"
)

// Every library constructor accepts a Logger. All logging should take place
// through the provided logger.
type Logger = slog.Logger

// Disabled is a Logger that will never output anything. Constructors use it
// when a nil Logger is supplied.
var Disabled Logger = slog.Disabled

// Level constants.
const (
	LevelTrace    = slog.LevelTrace
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarn     = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.LevelCritical
	LevelOff      = slog.LevelOff
)

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker parses the debug level string into a new *LoggerMaker. The
// debugLevel string can specify a single verbosity for all loggers, or can
// specify a series of subsystem=level pairs separated by commas, e.g.
// "info,RLAY=debug,WS=trace". An unprefixed level sets the default.
func NewLoggerMaker(writer io.Writer, debugLevel string, utc bool) (*LoggerMaker, error) {
	var opts []slog.BackendOption
	if utc {
		opts = append(opts, slog.WithFlags(slog.LUTC))
	}
	lm := &LoggerMaker{
		Backend:      slog.NewBackend(writer, opts...),
		DefaultLevel: slog.LevelInfo,
		Levels:       make(map[string]slog.Level),
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		subsys, lvlStr, found := strings.Cut(pair, "=")
		if !found {
			lvl, ok := slog.LevelFromString(pair)
			if !ok {
				return nil, fmt.Errorf("unknown log level %q", pair)
			}
			lm.DefaultLevel = lvl
			continue
		}
		lvl, ok := slog.LevelFromString(lvlStr)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q for subsystem %q", lvlStr, subsys)
		}
		lm.Levels[subsys] = lvl
	}

	return lm, nil
}

// SetLevelsFromMap sets levels for any subsystems in the map that do not
// already have a level set.
func (lm *LoggerMaker) SetLevelsFromMap(lvls map[string]slog.Level) {
	for subsys, lvl := range lvls {
		if _, found := lm.Levels[subsys]; !found {
			lm.Levels[subsys] = lvl
		}
	}
}

// NewLogger creates a new Logger for the subsystem with the given name. A level
// set for the subsystem takes precedence, followed by the optional level
// argument, and then the DefaultLevel.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl, found := lm.Levels[name]
	if !found {
		lvl = lm.DefaultLevel
		if len(level) > 0 {
			lvl = level[0]
		}
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// StdOutLogger creates a Logger with the provided name with lvl as the log
// level and prints to standard out. Intended for tests and small tools.
func StdOutLogger(name string, lvl slog.Level) Logger {
	backend := slog.NewBackend(os.Stdout)
	logger := backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}
