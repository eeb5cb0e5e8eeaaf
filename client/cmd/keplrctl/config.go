// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/kent-3/keplr/client/relay"
	"github.com/kent-3/keplr/dex"
)

const (
	defaultConfigFilename = "keplrctl.conf"
	defaultLogFilename    = "keplrctl.log"
	defaultLogLevel       = "info"
	defaultChainID        = "secret-4"
	defaultConnectTimeout = 2 * time.Minute
	defaultCallTimeout    = 5 * time.Minute
)

var (
	appDir            = btcutil.AppDataDir("keplrctl", false)
	defaultConfigPath = filepath.Join(appDir, defaultConfigFilename)
	defaultLogPath    = filepath.Join(appDir, "logs", defaultLogFilename)
)

// config defines the configuration options for keplrctl.
type config struct {
	ShowVersion    bool          `short:"V" long:"version" description:"Display version information and exit"`
	ListCommands   bool          `short:"l" long:"listcommands" description:"List all of the supported commands and exit"`
	Config         string        `short:"C" long:"config" description:"Path to configuration file"`
	RelayAddr      string        `short:"a" long:"relayaddr" description:"Listen address for the relay page"`
	ChainID        string        `short:"c" long:"chainid" description:"Chain ID used by commands that take one"`
	NoBrowser      bool          `long:"nobrowser" description:"Do not open the relay page in the default browser"`
	ConnectTimeout time.Duration `long:"connecttimeout" description:"How long to wait for the relay page to connect"`
	CallTimeout    time.Duration `long:"calltimeout" description:"How long to wait for the wallet, including user approval"`
	DebugLevel     string        `short:"d" long:"log" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogPath        string        `long:"logpath" description:"A file to save app logs"`
	LocalLogs      bool          `long:"loglocal" description:"Use local time zone time stamps in log entries"`
	Stdout         bool          `long:"stdout" description:"Also write logs to stdout"`
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// configure parses command line options and a config file if present. Returns
// an instantiated *config, leftover command line arguments, and a bool that
// is true if there is nothing further to do (i.e. version was printed and we
// can exit), or a parsing error, in that order.
func configure() (*config, []string, bool, error) {
	stop := true
	cfg := &config{
		Config: defaultConfigPath,
	}
	preParser := flags.NewParser(cfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			// This line is printed below the help message.
			fmt.Printf("%v\nThe special parameter `-` indicates that a parameter should be read from the\nnext unread line from standard input.\n", err)
			return nil, nil, stop, nil
		}
		return nil, nil, false, err
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if cfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			appVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil, nil, stop, nil
	}

	if cfg.ListCommands {
		fmt.Println(listCommands())
		return nil, nil, stop, nil
	}

	cfg.Config = dex.CleanAndExpandPath(cfg.Config)
	parser := flags.NewParser(cfg, flags.Default)

	if fileExists(cfg.Config) {
		// Load additional config from file.
		err = flags.NewIniParser(parser).ParseFile(cfg.Config)
		if err != nil {
			return nil, nil, false, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		return nil, nil, false, err
	}

	if cfg.RelayAddr == "" {
		cfg.RelayAddr = relay.DefaultAddr
	}
	if _, _, err := net.SplitHostPort(cfg.RelayAddr); err != nil {
		return nil, nil, false, fmt.Errorf("invalid relayaddr %q: %w", cfg.RelayAddr, err)
	}
	if cfg.ChainID == "" {
		cfg.ChainID = defaultChainID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.DebugLevel == "" {
		cfg.DebugLevel = defaultLogLevel
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaultLogPath
	} else {
		cfg.LogPath = dex.CleanAndExpandPath(cfg.LogPath)
	}

	return cfg, remainingArgs, false, nil
}
