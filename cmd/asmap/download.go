package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/gustycube/asmap/internal/config"
	"github.com/gustycube/asmap/internal/download"
)

func runDownload(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs)
	collectors := &listFlag{split: true}
	urls := &listFlag{split: true}
	fs.Var(collectors, "collectors", "collectors to fetch, e.g. rrc00,7,route-views2 (default rrc00..rrc24)")
	fs.Var(urls, "url", "explicit dump URL (repeatable)")
	dir := fs.String("dir", "", "directory receiving the dumps (default dump)")
	ua := fs.String("ua", "", "user-agent")
	rate := fs.Float64("rate", 0, "requests per second per archive host")
	workers := fs.Int("workers", 0, "parallel downloads")
	retryBudget := fs.Int("retry_budget_sec", 0, "seconds spent retrying one dump")
	ignoreRobots := fs.Bool("ignore_robots", false, "do not consult robots.txt")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: asmap download [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	set, code, ok := parse(fs, args)
	if !ok {
		return code
	}
	if fs.NArg() > 0 {
		return usageError(stderr, fs, fmt.Errorf("unexpected arguments: %v", fs.Args()))
	}

	flags := map[string]interface{}{
		"collectors":       collectors.vals,
		"urls":             urls.vals,
		"download_dir":     *dir,
		"ua":               *ua,
		"download_rate":    *rate,
		"download_workers": *workers,
		"retry_budget_sec": *retryBudget,
	}
	if set["ignore_robots"] {
		flags["ignore_robots"] = *ignoreRobots
	}
	common.merge(flags, set)

	cfg, err := loadConfig(common.configFile, flags)
	if err != nil {
		fmt.Fprintf(stderr, "download: %v\n", err)
		return exitUsage
	}
	// Explicit URLs replace the default collector list.
	if len(urls.vals) > 0 && len(collectors.vals) == 0 && slices.Equal(cfg.Collectors, config.DefaultCollectors) {
		cfg.Collectors = nil
	}
	if err := cfg.ValidateDownload(); err != nil {
		return usageError(stderr, fs, err)
	}

	eps, err := download.Endpoints(cfg.Collectors, cfg.URLs, time.Now())
	if err != nil {
		return usageError(stderr, fs, err)
	}

	env, err := start(ctx, cfg, "download")
	if err != nil {
		fmt.Fprintf(stderr, "download: %v\n", err)
		return exitUsage
	}
	defer env.close()
	log := env.log

	d, err := download.New(download.Options{
		Dir:          cfg.DownloadDir,
		Workers:      cfg.DownloadWorkers,
		UA:           cfg.UA,
		Rate:         cfg.DownloadRate,
		RetryBudget:  time.Duration(cfg.RetryBudgetSec) * time.Second,
		IgnoreRobots: cfg.IgnoreRobots,
	}, log)
	if err != nil {
		log.Errorw("downloader init", "err", err)
		return exitFailure
	}
	defer d.Close()

	log.Infow("starting download", "endpoints", len(eps), "dir", cfg.DownloadDir, "workers", cfg.DownloadWorkers)
	env.health.SetReady(true)

	results, err := d.Run(ctx, eps)
	for _, r := range results {
		fmt.Fprintln(stdout, r.Path)
	}
	failed := multierr.Errors(err)
	log.Infow("download finished", "ok", len(results), "failed", len(failed), "dir", cfg.DownloadDir)
	if err != nil {
		for _, e := range failed {
			log.Errorw("download failed", "err", e)
		}
		return exitFailure
	}
	return exitOK
}
