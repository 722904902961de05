package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/gustycube/asmap/internal/bottleneck"
	"github.com/gustycube/asmap/internal/collector"
	"github.com/gustycube/asmap/internal/health"
	"github.com/gustycube/asmap/internal/ingest"
	"github.com/gustycube/asmap/internal/report"
	"github.com/gustycube/asmap/internal/ui"
)

func runBottleneck(ctx context.Context, name string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs)
	dumps := &listFlag{}
	fs.Var(dumps, "dump", "MRT dump file or directory of dumps (repeatable)")
	out := fs.String("out", "", "report file or directory (default: stdout)")
	format := fs.String("format", "", "report format (text, legacy, jsonl, csv)")
	workers := fs.Int("workers", 0, "input files read in parallel")
	cacheSize := fs.Int("decode_cache_size", 0, "decoded AS_PATH cache entries")
	shardStep := fs.Int("shard_step", 0, "leading octets per shard (power of two, 0 disables)")
	strict := fs.Bool("strict_type_codes", false, "reject entries with unknown attribute type codes")
	failFast := fs.Bool("fail_fast", false, "stop at the first unreadable input and write no report")
	progress := fs.Bool("progress", true, "show progress on a terminal")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: asmap %s [options] <dump>...\n\nOptions:\n", name)
		fs.PrintDefaults()
	}

	set, code, ok := parse(fs, args)
	if !ok {
		return code
	}

	flags := map[string]interface{}{
		"out":               *out,
		"format":            *format,
		"workers":           *workers,
		"decode_cache_size": *cacheSize,
		"shard_step":        *shardStep,
	}
	if inputs := append(dumps.vals, fs.Args()...); len(inputs) > 0 {
		flags["inputs"] = inputs
	}
	if set["strict_type_codes"] {
		flags["strict_type_codes"] = *strict
	}
	if set["fail_fast"] {
		flags["continue_on_error"] = !*failFast
	}
	common.merge(flags, set)

	cfg, err := loadConfig(common.configFile, flags)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return exitUsage
	}
	if err := cfg.ValidateBottleneck(); err != nil {
		return usageError(stderr, fs, err)
	}

	env, err := start(ctx, cfg, name)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return exitUsage
	}
	defer env.close()
	log := env.log

	paths, err := ingest.ExpandInputs(cfg.Inputs)
	if err != nil {
		log.Errorw("no usable inputs", "inputs", cfg.Inputs, "err", err)
		return exitFailure
	}
	shards, err := collector.Shards(cfg.ShardStep)
	if err != nil {
		return usageError(stderr, fs, err)
	}

	var sink *report.RedisSink
	if cfg.RedisAddr != "" {
		sink, err = report.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix, "", time.Duration(cfg.RedisTTLSec)*time.Second)
		if err != nil {
			log.Errorw("redis init", "err", err)
			return exitFailure
		}
		defer sink.Close()
		env.health.RegisterChecker("redis", health.NewRedisChecker(sink.Ping))
		log.Infow("redis sink enabled", "addr", cfg.RedisAddr, "key", sink.Key())
	}

	total := len(paths)
	if cfg.ShardStep > 0 {
		total *= len(shards)
	}
	progressLog := ui.NewInteractiveLogger(log, total, *progress)
	env.health.RegisterChecker("files", health.NewFilesChecker(progressLog.Stats().Progress))

	in, err := ingest.New(ingest.Options{
		Workers:         cfg.Workers,
		CacheSize:       cfg.DecodeCacheSize,
		Strict:          cfg.StrictTypeCodes,
		ContinueOnError: cfg.ContinueOnErrorEnabled(),
		OnFile: func(st ingest.FileStats, err error) {
			progressLog.FileDone(st.Path, st.Records, st.Entries, st.Failed, err)
		},
	}, log)
	if err != nil {
		log.Errorw("ingest init", "err", err)
		return exitFailure
	}

	log.Infow("starting bottleneck run",
		"inputs", len(paths),
		"workers", cfg.Workers,
		"shards", len(shards),
		"continue_on_error", cfg.ContinueOnErrorEnabled(),
		"config_file", common.configFile,
	)
	env.health.SetReady(true)

	eng := bottleneck.New(log)
	var res bottleneck.Result
	var stats bottleneck.Stats
	var runErr error
	if cfg.ShardStep > 0 {
		res, stats, runErr = eng.RunSharded(ctx, shards, func(ctx context.Context, shard collector.ShardRange) (*collector.Collector, error) {
			return in.Files(ctx, paths, shard.Contains)
		})
	} else {
		var c *collector.Collector
		c, runErr = in.Files(ctx, paths, nil)
		if c != nil {
			res, stats = eng.Compute(ctx, c.Seal())
		}
	}
	progressLog.Finish()

	if ctx.Err() != nil {
		log.Warnw("interrupted, no report written", "err", ctx.Err())
		return exitFailure
	}
	if res == nil {
		log.Errorw("bottleneck run failed, no report written", "err", runErr)
		return exitFailure
	}

	dest, err := report.Write(cfg.Out, cfg.Format, res, time.Now(), stdout)
	if err != nil {
		log.Errorw("write report", "out", cfg.Out, "err", err)
		return exitFailure
	}
	log.Infow("report written",
		"dest", dest,
		"prefixes", stats.Prefixes,
		"bottlenecks", stats.Bottlenecks,
		"anomalies", stats.Anomalies,
		"invalid", stats.Invalid,
	)

	if sink != nil {
		if err := sink.Store(ctx, res); err != nil {
			log.Errorw("redis store", "err", err)
			return exitFailure
		}
		log.Infow("result stored in redis", "key", sink.Key())
	}

	if runErr != nil {
		log.Errorw("some inputs failed", "failed", len(failedInputs(runErr)), "err", runErr)
		return exitFailure
	}
	return exitOK
}

// failedInputs lists the paths of the files a run could not read.
func failedInputs(err error) []string {
	var out []string
	for _, one := range multierr.Errors(err) {
		var fe *ingest.FileError
		if errors.As(one, &fe) {
			out = append(out, fe.Path)
		}
	}
	return out
}
