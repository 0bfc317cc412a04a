// Package main implements the eventstar ETL command line.
//
// Each subcommand runs one stage of the pipeline against the configured
// snapshot store and warehouse; run executes them all in order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/eventstar/eventstar/internal/app"
	"github.com/eventstar/eventstar/internal/config"
	"github.com/eventstar/eventstar/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "eventstar: %v\n", err)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "eventstar - star-schema ETL for tracked events\n\n")
	fmt.Fprintf(w, "Usage: eventstar [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  raw <start> <end>     Fetch events from the events API into a raw snapshot\n")
	fmt.Fprintf(w, "  preprocess            Clean and reconcile raw snapshots\n")
	fmt.Fprintf(w, "  initdb                Create the warehouse schema\n")
	fmt.Fprintf(w, "  importdb              Load the preprocess snapshot into the warehouse\n")
	fmt.Fprintf(w, "  report                Write the summary report\n")
	fmt.Fprintf(w, "  truncate <stage>      Delete all snapshots of a stage (raw, preprocess)\n")
	fmt.Fprintf(w, "  lookup <stage> <visitor>  List snapshots of a stage that may hold a visitor\n")
	fmt.Fprintf(w, "  run <start> <end>     raw, preprocess, initdb, importdb and report\n")
	fmt.Fprintf(w, "\nTimes use the layout %q.\n", types.TimePeriodLayout)
	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	fmt.Fprintf(w, "  EVENTSTAR_DATA_DIR          Base directory for data files\n")
	fmt.Fprintf(w, "  EVENTSTAR_SOURCE_BASE_URL   Events API root URL\n")
	fmt.Fprintf(w, "  EVENTSTAR_STORAGE_TYPE      Snapshot storage type (local, s3)\n")
	fmt.Fprintf(w, "  EVENTSTAR_WAREHOUSE_DRIVER  Warehouse driver (sqlite3, postgres)\n")
	fmt.Fprintf(w, "  EVENTSTAR_WAREHOUSE_DSN     Warehouse data source name\n")
	fmt.Fprintf(w, "\nOptions:\n")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("eventstar", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile  string
		dataDir     string
		baseURL     string
		showVersion bool
	)
	fs.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	fs.StringVar(&baseURL, "source-url", "", "Events API root URL")
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.Usage = func() {
		usage(stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	if showVersion {
		fmt.Fprintf(stdout, "eventstar version %s (commit: %s)\n", version, commit)
		return nil
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := loadConfig(configFile, dataDir, baseURL)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	c, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return errUsage
	}
	if len(cmdArgs) != c.args {
		fmt.Fprintf(stderr, "%s expects %d argument(s), got %d\n\n", cmd, c.args, len(cmdArgs))
		fs.Usage()
		return errUsage
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Debug("eventstar: running command", zap.String("command", cmd), zap.String("data_dir", cfg.DataDir))
	return c.run(ctx, a, cmdArgs, stdout)
}

type command struct {
	args int
	run  func(ctx context.Context, a *app.App, args []string, out io.Writer) error
}

var commands = map[string]command{
	"raw": {args: 2, run: func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		start, end, err := parsePeriod(args[0], args[1])
		if err != nil {
			return err
		}
		path, n, err := a.FetchRaw(ctx, start, end)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintf(out, "Found no new events between %s and %s\n", args[0], args[1])
			return nil
		}
		fmt.Fprintf(out, "Exported %d fetched events to %s\n", n, path)
		return nil
	}},
	"preprocess": {run: func(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
		res, err := a.Preprocess(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d preprocessed events to %s (%d conflicting rows deleted)\n",
			res.Rows, res.Path, res.Diagnostics.DeletedRows)
		return nil
	}},
	"initdb": {run: func(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
		if err := a.InitDB(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Initialized analytics database")
		return nil
	}},
	"importdb": {run: func(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
		stats, err := a.ImportDB(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Imported %d events in %v\n", stats.Rows["events"], stats.Duration.Round(time.Millisecond))
		return nil
	}},
	"report": {run: func(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
		path, err := a.Report(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported report at %s\n", path)
		return nil
	}},
	"truncate": {args: 1, run: func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		stage, err := types.ParseStage(args[0])
		if err != nil {
			return err
		}
		n, err := a.Truncate(ctx, stage)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d %s snapshot(s)\n", n, stage.Name())
		return nil
	}},
	"lookup": {args: 2, run: func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		stage, err := types.ParseStage(args[0])
		if err != nil {
			return err
		}
		paths, err := a.VisitorBatches(ctx, stage, args[1])
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(out, p)
		}
		fmt.Fprintf(out, "%d %s snapshot(s) may hold visitor %s\n", len(paths), stage.Name(), args[1])
		return nil
	}},
	"run": {args: 2, run: func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		start, end, err := parsePeriod(args[0], args[1])
		if err != nil {
			return err
		}
		sum, err := a.Run(ctx, start, end)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Fetched %d events, imported %d, report at %s\n",
			sum.RawRows, sum.Load.Rows["events"], sum.ReportPath)
		return nil
	}},
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, baseURL string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if baseURL != "" {
		cfg.Source.BaseURL = baseURL
	}

	// Paths left empty are derived from DataDir by app.New
	return cfg, nil
}

func parsePeriod(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(types.TimePeriodLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q: %w", start, err)
	}
	e, err := time.Parse(types.TimePeriodLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q: %w", end, err)
	}
	return s, e, nil
}
