package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gustycube/asmap/internal/config"
	"github.com/gustycube/asmap/internal/health"
	"github.com/gustycube/asmap/internal/logging"
	"github.com/gustycube/asmap/internal/metrics"
	"github.com/gustycube/asmap/internal/telemetry"
)

// listFlag collects a repeatable flag. With split set, each value may also
// be a comma-separated list.
type listFlag struct {
	vals  []string
	split bool
}

func (l *listFlag) String() string { return strings.Join(l.vals, ",") }

func (l *listFlag) Set(v string) error {
	if !l.split {
		l.vals = append(l.vals, v)
		return nil
	}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			l.vals = append(l.vals, p)
		}
	}
	return nil
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configFile   string
	logLevel     string
	metricsAddr  string
	otelEndpoint string
	otelService  string
	otelInsecure bool
	redisAddr    string
}

func (c *commonFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "path to config file (YAML or JSON)")
	fs.StringVar(&c.logLevel, "log_level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&c.metricsAddr, "metrics_addr", "", "metrics and health listen addr (empty to disable)")
	fs.StringVar(&c.otelEndpoint, "otel_endpoint", "", "OTLP HTTP endpoint (host:port)")
	fs.StringVar(&c.otelService, "otel_service", "", "OTEL service.name")
	fs.BoolVar(&c.otelInsecure, "otel_insecure", true, "OTLP insecure (no TLS)")
	fs.StringVar(&c.redisAddr, "redis_addr", "", "Redis server receiving the result")
}

func (c *commonFlags) merge(flags map[string]interface{}, set map[string]bool) {
	flags["log_level"] = c.logLevel
	flags["metrics_addr"] = c.metricsAddr
	flags["otel_endpoint"] = c.otelEndpoint
	flags["otel_service"] = c.otelService
	flags["redis_addr"] = c.redisAddr
	if set["otel_insecure"] {
		flags["otel_insecure"] = c.otelInsecure
	}
}

// parse parses args and reports which flags were given explicitly. A usage
// error has already been printed when ok is false; code is the exit status.
func parse(fs *flag.FlagSet, args []string) (set map[string]bool, code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, exitOK, false
		}
		return nil, exitUsage, false
	}
	set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set, exitOK, true
}

// loadConfig applies the file, then the environment, then the flags.
func loadConfig(configFile string, flags map[string]interface{}) (*config.Config, error) {
	cfg := &config.Config{}
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg.SetDefaults()
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(flags)
	return cfg, nil
}

// runtimeEnv holds what every command starts before doing its work.
type runtimeEnv struct {
	log      *logging.Logger
	health   *health.Handler
	shutdown telemetry.Shutdown
}

func start(ctx context.Context, cfg *config.Config, command string) (*runtimeEnv, error) {
	log, err := logging.NewWithLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.OTELService, version, cfg.OTELInsecure)
	if err != nil {
		log.Warnw("otel init failed", "err", err)
		shutdown = func(context.Context) error { return nil }
	}

	h := health.NewHandler(log)
	h.SetMetadata("command", command)
	h.SetMetadata("version", version)
	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, h, log)
		log.Infow("metrics and health server started", "addr", cfg.MetricsAddr)
	}
	return &runtimeEnv{log: log, health: h, shutdown: shutdown}, nil
}

func (e *runtimeEnv) close() {
	if err := e.shutdown(context.Background()); err != nil {
		e.log.Debugw("otel shutdown", "err", err)
	}
	e.log.Sync()
}

func usageError(stderr io.Writer, fs *flag.FlagSet, err error) int {
	fmt.Fprintf(stderr, "%s: %v\n\n", fs.Name(), err)
	fs.Usage()
	return exitUsage
}
