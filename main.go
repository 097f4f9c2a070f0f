package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const usage = `temperature-logger reads Particle device variables and appends them to a Phant stream.

Usage:
  temperature-logger [--config=<path>] [--verbose]
  temperature-logger -h | --help
  temperature-logger --version

Options:
  -h --help        Show this screen.
  --version        Show version.
  --config=<path>  TOML or YAML config file. Environment variables override it.
  --verbose        Log at debug level in a human readable format.
`

func main() {
	os.Exit(realMain(os.Args[1:], os.Getenv))
}

func realMain(argv []string, getenv func(string) string) int {
	opts, err := docopt.ParseArgs(usage, argv, version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return EXIT_CONFIG
	}
	cfgPath, _ := opts["--config"].(string)
	verbose, _ := opts.Bool("--verbose")

	logger, err := new_logger(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return EXIT_CONFIG
	}
	defer logger.Sync()

	cfg, err := ReadConfig(cfgPath, getenv)
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return EXIT_CONFIG
	}

	logger = logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("device", cfg.DeviceID),
	)

	deps, closeDeps, err := build_collaborators(cfg, logger)
	if err != nil {
		logger.Error("Could not set up clients", zap.Error(err))
		return EXIT_CONFIG
	}
	defer closeDeps()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, deps)

	if cfg.PushGatewayURL != "" {
		if perr := deps.metrics.push(context.Background(), cfg.PushGatewayURL, cfg.JobName, cfg.DeviceID); perr != nil {
			logger.Warn("Could not push metrics", zap.Error(perr))
		}
	}

	return exit_code(err)
}

func build_collaborators(cfg *Config, logger *zap.Logger) (collaborators, func(), error) {
	httpClient := &http.Client{Timeout: cfg.Timeout()}

	deps := collaborators{
		source:  NewParticleClient(cfg.ParticleAPIURL, httpClient),
		sink:    NewPhantClient(httpClient),
		metrics: newRunMetrics(),
		logger:  logger,
	}
	closeDeps := func() {}

	if cfg.Influx.Enabled() {
		c, err := influxDBClient(cfg.Influx, cfg.Timeout())
		if err != nil {
			return collaborators{}, nil, err
		}
		deps.mirrors = append(deps.mirrors, NewInfluxMirror(c, cfg.Influx, cfg.DeviceID))
		closeDeps = func() { c.Close() }
	}
	return deps, closeDeps, nil
}

func new_logger(verbose bool) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level.SetLevel(zap.DebugLevel)
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level.SetLevel(zap.InfoLevel)
	}
	zapConfig.InitialFields = map[string]interface{}{
		"service": "temperature-logger",
		"version": version,
	}
	return zapConfig.Build()
}
