// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// keplrctl runs a single Keplr wallet call from the command line. It serves
// the relay page on loopback, opens it in the default browser, and drives the
// extension through it.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/kent-3/keplr/client/keplr"
	"github.com/kent-3/keplr/client/relay"
	"github.com/kent-3/keplr/dex"
	"github.com/kent-3/keplr/dex/version"
	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"
)

const (
	showHelpMessage = "Specify -h to show available options"
	listCmdMessage  = "Specify -l to list available commands"
)

// appVersion may be overridden with -ldflags "-X main.appVersion=fullsemver".
// It must be a full semantic version.
var appVersion = "0.1.0-pre"

func init() {
	appVersion = version.Parse(appVersion)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, args, stop, err := configure()
	if err != nil {
		return fmt.Errorf("unable to configure: %w\n%s", err, showHelpMessage)
	}
	if stop {
		return nil
	}

	if len(args) < 1 {
		return fmt.Errorf("no command specified\n%s", listCmdMessage)
	}
	name := args[0]
	cmd, found := commands[name]
	if !found {
		return fmt.Errorf("unrecognized command %q\n%s", name, listCmdMessage)
	}
	params, err := readParams(os.Stdin, args[1:])
	if err != nil {
		return err
	}
	if err := cmd.checkArgs(name, len(params)); err != nil {
		return err
	}

	lm, closeLogs, err := initLogging(cfg.LogPath, cfg.DebugLevel, cfg.Stdout, !cfg.LocalLogs)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := execute(ctx, cfg, lm, name, cmd, params)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res)
}

// execute starts the relay, waits for the page, and runs the command.
func execute(ctx context.Context, cfg *config, lm *dex.LoggerMaker, name string, cmd *command, params []string) (interface{}, error) {
	log := lm.NewLogger(logCommand)
	srv, err := relay.New(&relay.Config{
		Addr:   cfg.RelayAddr,
		Logger: lm.NewLogger(logRelay),
	})
	if err != nil {
		return nil, err
	}
	k, err := keplr.New(&keplr.Config{
		Host:   srv,
		Logger: lm.NewLogger(logKeplr),
	})
	if err != nil {
		return nil, err
	}

	srvCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	wg, err := srv.Connect(srvCtx)
	if err != nil {
		return nil, err
	}

	var res interface{}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Queued notifications are flushed when the relay stops.
		defer stopRelay()
		if err := openPage(gCtx, srv, cfg, log); err != nil {
			return err
		}
		if !k.IsAvailable() {
			return errors.New("keplr is not available in the browser that opened the relay page. " +
				"Is the extension installed and enabled?")
		}
		callCtx, cancel := context.WithTimeout(gCtx, cfg.CallTimeout)
		defer cancel()
		log.Debugf("Running %s %s", name, strings.Join(params, " "))
		var err error
		res, err = cmd.run(callCtx, k, cfg, params)
		return err
	})
	g.Go(func() error {
		wg.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// openPage opens the relay page in the browser unless disabled, and waits
// for it to connect.
func openPage(ctx context.Context, srv *relay.Server, cfg *config, log dex.Logger) error {
	url := srv.URL()
	if cfg.NoBrowser {
		fmt.Fprintf(os.Stderr, "Open %s in a browser with Keplr installed.\n", url)
	} else if err := browser.OpenURL(url); err != nil {
		log.Warnf("Unable to open a browser: %v", err)
		fmt.Fprintf(os.Stderr, "Open %s in a browser with Keplr installed.\n", url)
	}
	waitCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := srv.WaitForPage(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("the relay page at %s did not connect within %v", url, cfg.ConnectTimeout)
		}
		return err
	}
	return nil
}

// readParams replaces each "-" argument with the next line of stdin.
func readParams(stdin io.Reader, args []string) ([]string, error) {
	bio := bufio.NewReader(stdin)
	params := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-" {
			param, err := bio.ReadString('\n')
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read data from stdin: %w", err)
			}
			if err == io.EOF && len(param) == 0 {
				return nil, errors.New("not enough lines provided on stdin")
			}
			arg = strings.TrimRight(param, "\r\n")
		}
		params = append(params, arg)
	}
	return params, nil
}

// printResult writes the result as indented JSON. Nothing is written for a
// command with no result.
func printResult(w io.Writer, res interface{}) error {
	if res == nil {
		return nil
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
