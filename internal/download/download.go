package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/gustycube/asmap/internal/circuitbreaker"
	"github.com/gustycube/asmap/internal/httpclient"
	"github.com/gustycube/asmap/internal/logging"
	"github.com/gustycube/asmap/internal/metrics"
	"github.com/gustycube/asmap/internal/robots"
)

// ErrDisallowed is returned for targets the archive's robots.txt excludes.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Options configures a Downloader.
type Options struct {
	Dir          string
	Workers      int
	UA           string
	Rate         float64
	RetryBudget  time.Duration
	IgnoreRobots bool
	// Client overrides the default transport.
	Client *http.Client
}

// Result describes one completed download.
type Result struct {
	Endpoint Endpoint
	URL      string
	Path     string
	Bytes    int64
	Attempts int
	Duration time.Duration
}

// Downloader fetches dumps into a directory. Files appear under their final
// name only once complete.
type Downloader struct {
	opts   Options
	client *httpclient.ResilientClient
	robots *robots.Cache
	log    *logging.Logger

	initialInterval time.Duration
}

func New(opts Options, log *logging.Logger) (*Downloader, error) {
	if opts.Dir == "" {
		return nil, errors.New("download dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = 5 * time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	hc := opts.Client
	if hc == nil {
		hc = httpclient.Default()
	}
	return &Downloader{
		opts:            opts,
		client:          httpclient.NewResilientClient(hc, opts.UA, opts.Rate, log),
		robots:          robots.NewCache(hc, opts.UA),
		log:             log,
		initialInterval: 500 * time.Millisecond,
	}, nil
}

// Close releases the client's background resources.
func (d *Downloader) Close() { d.client.Close() }

// Run fetches every endpoint with up to Options.Workers downloads in flight.
// All endpoints are attempted; failures are returned together and the
// results of the successful ones are kept in endpoint order.
func (d *Downloader) Run(ctx context.Context, eps []Endpoint) ([]Result, error) {
	ctx, span := otel.Tracer("asmap/download").Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.Int("endpoints", len(eps)))

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)

	results := make([]*Result, len(eps))
	var mu sync.Mutex
	var errs error
	for i, ep := range eps {
		i, ep := i, ep
		g.Go(func() error {
			res, err := d.Fetch(ctx, ep)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ep.Name, err))
				mu.Unlock()
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	g.Wait()

	var out []Result
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	span.SetAttributes(attribute.Int("downloaded", len(out)))
	return out, errs
}

// Fetch downloads one endpoint, retrying transient failures with
// exponential backoff until the retry budget is spent.
func (d *Downloader) Fetch(ctx context.Context, ep Endpoint) (Result, error) {
	ctx, span := otel.Tracer("asmap/download").Start(ctx, "Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("endpoint", ep.Name), attribute.String("url", ep.URL)))
	defer span.End()

	start := time.Now()
	res, err := d.fetch(ctx, ep)
	res.Duration = time.Since(start)
	switch {
	case errors.Is(err, ErrDisallowed):
		metrics.DownloadsTotal.WithLabelValues("blocked").Inc()
	case err != nil:
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
	default:
		metrics.DownloadsTotal.WithLabelValues("ok").Inc()
		span.SetAttributes(attribute.Int64("bytes", res.Bytes))
		d.log.Infow("downloaded", "endpoint", ep.Name, "url", res.URL, "path", res.Path,
			"bytes", res.Bytes, "attempts", res.Attempts, "duration", res.Duration)
	}
	return res, err
}

func (d *Downloader) fetch(ctx context.Context, ep Endpoint) (Result, error) {
	res := Result{Endpoint: ep, URL: ep.URL}
	target, err := url.Parse(ep.URL)
	if err != nil {
		return res, err
	}
	if err := d.allowed(ctx, target); err != nil {
		return res, err
	}

	file := ep.File
	if ep.Index {
		target, err = d.latest(ctx, target)
		if err != nil {
			return res, err
		}
		if err := d.allowed(ctx, target); err != nil {
			return res, err
		}
		res.URL = target.String()
		file = ep.Name + "-" + path.Base(target.Path)
	}

	dest := filepath.Join(d.opts.Dir, file)
	res.Attempts, err = d.retry(ctx, res.URL, func() error {
		n, err := d.save(ctx, res.URL, dest)
		res.Bytes = n
		return err
	})
	if err != nil {
		return res, err
	}
	res.Path = dest
	return res, nil
}

func (d *Downloader) allowed(ctx context.Context, u *url.URL) error {
	if d.opts.IgnoreRobots || d.robots.Allowed(ctx, u) {
		return nil
	}
	metrics.RobotsBlocks.Inc()
	d.log.Warnw("robots.txt disallows", "url", u.String())
	return fmt.Errorf("%s: %w", u, ErrDisallowed)
}

// latest resolves a RIB listing to its newest dump.
func (d *Downloader) latest(ctx context.Context, index *url.URL) (*url.URL, error) {
	var link *url.URL
	_, err := d.retry(ctx, index.String(), func() error {
		resp, err := d.client.Get(ctx, index.String())
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		link, err = LatestLink(resp.Request.URL, resp.Body)
		if errors.Is(err, ErrNoRIB) {
			return backoff.Permanent(fmt.Errorf("%s: %w", index, err))
		}
		return err
	})
	return link, err
}

// save streams target into a temporary file next to dest and renames it
// into place once the body has been read in full.
func (d *Downloader) save(ctx context.Context, target, dest string) (n int64, err error) {
	resp, err := d.client.Get(ctx, target)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err = io.Copy(tmp, resp.Body)
	if err != nil {
		return n, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%s: got %d of %d bytes: %w", target, n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return n, backoff.Permanent(err)
	}
	if err = tmp.Sync(); err != nil {
		return n, backoff.Permanent(err)
	}
	if err = tmp.Close(); err != nil {
		return n, backoff.Permanent(err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return n, backoff.Permanent(err)
	}
	return n, nil
}

// retry runs op until it succeeds, returns a permanent error or the retry
// budget runs out. Client errors other than 429 are permanent.
func (d *Downloader) retry(ctx context.Context, what string, op func() error) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initialInterval
	bo.MaxElapsedTime = d.opts.RetryBudget

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && !httpErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		level := d.log.Warnw
		if errors.Is(err, circuitbreaker.ErrOpenState) {
			level = d.log.Debugw
		}
		level("retrying", "url", what, "attempt", attempts, "wait", wait, "error", err)
	})
	return attempts, err
}
