// Command asvsim runs the ASV hardware-in-the-loop simulator.
//
//	asvsim [serve] [-config dir]     run the simulator and its servers
//	asvsim plan [-config dir] [-o f] plan the survey grid and write the grid file
//	asvsim cell [-config dir] lat lon  print the grid cell containing a point
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/logging"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "asvsim"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = SlogManager.Logger()

	// ZLogger feeds the components built on zerolog: dispatcher, database
	// manager and influx.
	ZLogger zerolog.Logger = zerolog.Nop()

	SessionStartTime time.Time = time.Now()
)

var errUsage = errors.New("usage: asvsim [serve|plan|cell] [-config dir] [args]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "asvsim:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run dispatches to the subcommand named by args[0]; serve is the default.
func run(ctx context.Context, args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	configDir := fs.String("config", ".", "directory holding "+config.FileName+" and .env")
	output := fs.String("o", "", "grid file to write (plan only; defaults to grid.file)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if err := loadConfig(*configDir); err != nil {
		return err
	}

	switch cmd {
	case "serve":
		return runServe(ctx)
	case "plan":
		return runPlan(out, *output)
	case "cell":
		if fs.NArg() != 2 {
			return fmt.Errorf("%w: cell needs <lat> <lon>", errUsage)
		}
		return runCell(out, fs.Arg(0), fs.Arg(1))
	case "version":
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, Version, BuildDate)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// loadConfig reads the config file. A missing file is not fatal: defaults
// and environment overrides still apply.
func loadConfig(dir string) error {
	if err := config.Load(dir); err != nil {
		if !config.IsNotFound(err) {
			return err
		}
		Logger.Warn("No config file found, using defaults", "dir", dir)
	}
	return nil
}
