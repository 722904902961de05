package bottleneck

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/gustycube/asmap/internal/collector"
	"github.com/gustycube/asmap/internal/logging"
	"github.com/gustycube/asmap/internal/metrics"
)

// Stats summarizes one Compute or RunSharded call.
type Stats struct {
	Prefixes    int
	Bottlenecks int
	Anomalies   int
	Invalid     int
}

func (s *Stats) add(o Stats) {
	s.Prefixes += o.Prefixes
	s.Bottlenecks += o.Bottlenecks
	s.Anomalies += o.Anomalies
	s.Invalid += o.Invalid
}

// Engine turns sealed path tables into results.
type Engine struct {
	log *logging.Logger
}

// New returns an Engine logging to log. A nil log discards output.
func New(log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{log: log}
}

// Compute reduces every prefix of table. The table is consumed: entries are
// removed as they are processed. Anomalous prefixes are logged and left out.
func (e *Engine) Compute(ctx context.Context, table collector.Table) (Result, Stats) {
	_, span := otel.Tracer("asmap/bottleneck").Start(ctx, "Compute")
	defer span.End()

	res := make(Result, len(table))
	var st Stats
	for p, paths := range table {
		st.Prefixes++
		asn, err := Find(p, paths)
		delete(table, p)

		var anomaly *AnomalyError
		switch {
		case err == nil:
			res[p] = asn
			st.Bottlenecks++
		case errors.As(err, &anomaly):
			st.Anomalies++
			metrics.AnomaliesTotal.Inc()
			e.log.Warnw("anomalous prefix excluded", "prefix", p.String(), "origins", anomaly.Origins)
		default:
			st.Invalid++
			e.log.Errorw("prefix excluded", "prefix", p.String(), "err", err)
		}
	}
	metrics.BottlenecksTotal.Add(float64(st.Bottlenecks))

	span.SetAttributes(
		attribute.Int("prefixes", st.Prefixes),
		attribute.Int("bottlenecks", st.Bottlenecks),
		attribute.Int("anomalies", st.Anomalies),
	)
	return res, st
}

// LoadFunc fills a collector with the paths of every prefix inside one
// shard. It may return a usable collector together with a non-nil error
// when some inputs failed but the rest were read.
type LoadFunc func(ctx context.Context, shard collector.ShardRange) (*collector.Collector, error)

// RunSharded loads, reduces and discards one shard at a time so only one
// shard's paths are held in memory. The merged result equals a single
// unsharded run over the same inputs. Load errors are collected, each
// distinct failure reported once; a load returning no collector stops the
// run.
func (e *Engine) RunSharded(ctx context.Context, shards []collector.ShardRange, load LoadFunc) (Result, Stats, error) {
	ctx, span := otel.Tracer("asmap/bottleneck").Start(ctx, "RunSharded")
	defer span.End()

	res := make(Result)
	var st Stats
	var errs error
	seen := make(map[string]struct{})

	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return nil, st, multierr.Append(errs, err)
		}

		c, err := load(ctx, shard)
		for _, one := range multierr.Errors(err) {
			if _, dup := seen[one.Error()]; dup {
				continue
			}
			seen[one.Error()] = struct{}{}
			errs = multierr.Append(errs, one)
		}
		if c == nil {
			if errs == nil {
				errs = fmt.Errorf("shard %s: nothing loaded", shard)
			}
			return nil, st, errs
		}

		paths := c.PathCount()
		shardRes, shardSt := e.Compute(ctx, c.Seal())
		res.Merge(shardRes)
		st.add(shardSt)
		e.log.Infow("shard reduced", "shard", shard.String(), "paths", paths, "prefixes", shardSt.Prefixes, "anomalies", shardSt.Anomalies)
	}
	return res, st, errs
}
