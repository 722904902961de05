// Package ingest reads dump files in parallel into path collectors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/gustycube/asmap/internal/aspath"
	"github.com/gustycube/asmap/internal/collector"
	"github.com/gustycube/asmap/internal/logging"
	"github.com/gustycube/asmap/internal/metrics"
	"github.com/gustycube/asmap/internal/mrt"
	"github.com/gustycube/asmap/internal/pathdump"
	"github.com/gustycube/asmap/internal/prefix"
)

// debugSamples is how many entry failures per file are logged one by one.
const debugSamples = 10

// ErrNoInputs is returned when the inputs expand to no files.
var ErrNoInputs = errors.New("no input files")

// FileError ties a fatal error to the input file it came from.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// Filter selects the prefixes to keep. A nil Filter keeps everything.
type Filter func(prefix.Prefix) bool

// FileStats describes one ingested file.
type FileStats struct {
	Path      string
	Records   int
	Entries   int
	Failed    int
	Reasons   map[string]int
	Paths     int
	Truncated bool
	Duration  time.Duration
}

// Options tunes an Ingester.
type Options struct {
	Workers         int
	CacheSize       int
	Strict          bool
	ContinueOnError bool
	// OnFile is called once per input, after it succeeded or failed.
	OnFile func(FileStats, error)
}

type decoded struct {
	path aspath.Path
	err  error
}

// Ingester turns dump files into collectors.
type Ingester struct {
	opts    Options
	decoder aspath.Decoder
	cache   *lru.Cache[string, decoded]
	log     *logging.Logger
}

// New returns an Ingester. A nil log discards output.
func New(opts Options, log *logging.Logger) (*Ingester, error) {
	if log == nil {
		log = logging.Nop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	in := &Ingester{
		opts:    opts,
		decoder: aspath.Decoder{Strict: opts.Strict},
		log:     log,
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, decoded](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		in.cache = c
	}
	return in, nil
}

// Files ingests every path with up to Options.Workers files in flight, each
// into its own collector, and merges the results once all workers are done.
//
// With ContinueOnError set, failed files are skipped and returned together as
// one error alongside the merged collector. Otherwise the first failure
// cancels the remaining work and no collector is returned.
func (in *Ingester) Files(ctx context.Context, paths []string, filter Filter) (*collector.Collector, error) {
	ctx, span := otel.Tracer("asmap/ingest").Start(ctx, "Files")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(paths)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Workers)

	parts := make([]*collector.Collector, len(paths))
	var mu sync.Mutex
	var failures error

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			c, st, err := in.File(gctx, path, filter)
			if in.opts.OnFile != nil {
				in.opts.OnFile(st, err)
			}
			if err != nil {
				fe := &FileError{Path: path, Err: err}
				if !in.opts.ContinueOnError {
					return fe
				}
				mu.Lock()
				failures = multierr.Append(failures, fe)
				mu.Unlock()
				return nil
			}
			parts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := collector.New()
	for _, c := range parts {
		merged.Merge(c)
	}
	span.SetAttributes(attribute.Int("prefixes", merged.Len()), attribute.Int("paths", merged.PathCount()))
	return merged, failures
}

// File ingests a single MRT or text path dump. Entries that fail to decode
// are counted and skipped; an I/O error aborts the file.
func (in *Ingester) File(ctx context.Context, path string, filter Filter) (*collector.Collector, FileStats, error) {
	ctx, span := otel.Tracer("asmap/ingest").Start(ctx, "File", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	start := time.Now()
	st := FileStats{Path: path, Reasons: map[string]int{}}
	c := collector.New()

	var err error
	if pathdump.IsPathDump(path) {
		err = in.textFile(ctx, path, filter, c, &st)
	} else {
		err = in.mrtFile(ctx, path, filter, c, &st)
	}
	st.Duration = time.Since(start)
	st.Paths = c.PathCount()

	if err != nil {
		metrics.FilesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		in.log.Errorw("input failed", "path", path, "err", err)
		return nil, st, err
	}

	metrics.FilesTotal.WithLabelValues("ok").Inc()
	if st.Failed > 0 {
		in.log.Warnw("entries skipped", "path", path, "failed", st.Failed, "entries", st.Entries, "reasons", st.Reasons)
	}
	in.log.Infow("input read", "path", path, "records", st.Records, "entries", st.Entries,
		"paths", st.Paths, "truncated", st.Truncated, "duration", st.Duration)
	return c, st, nil
}

func (in *Ingester) mrtFile(ctx context.Context, path string, filter Filter, c *collector.Collector, st *FileStats) error {
	r, err := mrt.Open(path, in.log)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		st.Records++
		if st.Records%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if filter != nil && !filter(rec.Prefix) {
			continue
		}

		for _, e := range rec.Entries {
			st.Entries++
			p, err := in.decode(e.Attrs)
			if err != nil {
				in.entryFailed(st, err, "prefix", rec.Prefix.String(), "peer", e.PeerIndex)
				continue
			}
			if _, err := c.Insert(rec.Prefix, p); err != nil {
				in.entryFailed(st, err, "prefix", rec.Prefix.String(), "peer", e.PeerIndex)
				continue
			}
			metrics.EntriesTotal.WithLabelValues("ok").Inc()
		}
		for i := 0; i < rec.Dropped; i++ {
			st.Entries++
			in.entryFailed(st, rec.DropErr, "prefix", rec.Prefix.String())
		}
	}
	st.Truncated = r.Stats().Truncated
	return nil
}

func (in *Ingester) textFile(ctx context.Context, path string, filter Filter, c *collector.Collector, st *FileStats) error {
	return pathdump.ScanFile(path, func(l pathdump.Line) error {
		st.Records++
		st.Entries++
		if st.Records%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if l.Err != nil {
			in.entryFailed(st, l.Err, "line", l.No)
			return nil
		}
		if filter != nil && !filter(l.Prefix) {
			return nil
		}
		if _, err := c.Insert(l.Prefix, l.Path); err != nil {
			in.entryFailed(st, err, "line", l.No)
			return nil
		}
		metrics.EntriesTotal.WithLabelValues("ok").Inc()
		return nil
	})
}

func (in *Ingester) decode(raw []byte) (aspath.Path, error) {
	if in.cache == nil {
		res, err := in.decoder.Decode(raw)
		return res.Path, err
	}

	key := string(raw)
	if d, ok := in.cache.Get(key); ok {
		metrics.DecodeCacheTotal.WithLabelValues("hit").Inc()
		return d.path, d.err
	}
	metrics.DecodeCacheTotal.WithLabelValues("miss").Inc()

	res, err := in.decoder.Decode(raw)
	in.cache.Add(key, decoded{path: res.Path, err: err})
	return res.Path, err
}

func (in *Ingester) entryFailed(st *FileStats, err error, kv ...interface{}) {
	reason := aspath.Reason(err)
	st.Failed++
	st.Reasons[reason]++
	metrics.EntriesTotal.WithLabelValues("error").Inc()
	metrics.DecodeErrorsTotal.WithLabelValues(reason).Inc()
	if st.Failed <= debugSamples {
		in.log.Debugw("entry skipped", append([]interface{}{"path", st.Path, "err", err}, kv...)...)
	}
}

// ExpandInputs resolves files and directories into a sorted, de-duplicated
// file list. Directories are read one level deep; hidden files are ignored.
func ExpandInputs(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(in))
			continue
		}

		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			add(filepath.Join(in, e.Name()))
		}
	}

	if len(out) == 0 {
		return nil, ErrNoInputs
	}
	slices.Sort(out)
	return out, nil
}
