package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gustycube/asmap/internal/health"
)

var (
	RecordsTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "asmap_mrt_records_total", Help: "MRT records read"}, []string{"kind"})
	EntriesTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "asmap_rib_entries_total", Help: "RIB entries decoded"}, []string{"status"})
	DecodeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "asmap_decode_errors_total", Help: "attribute blocks rejected"}, []string{"reason"})
	DecodeCacheTotal  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "asmap_decode_cache_total", Help: "decode cache lookups"}, []string{"result"})
	FilesTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "asmap_files_total", Help: "input files processed"}, []string{"status"})
	AnomaliesTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "asmap_anomalous_prefixes_total", Help: "prefixes with conflicting origins"})
	BottlenecksTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "asmap_bottlenecks_total", Help: "prefixes with a computed bottleneck"})
	DownloadsTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "asmap_downloads_total", Help: "dump downloads"}, []string{"status"})
	RobotsBlocks      = prometheus.NewCounter(prometheus.CounterOpts{Name: "asmap_robots_blocked_total", Help: "robots.txt blocks"})
)

func init() {
	prometheus.MustRegister(
		RecordsTotal, EntriesTotal, DecodeErrorsTotal, DecodeCacheTotal,
		FilesTotal, AnomaliesTotal, BottlenecksTotal, DownloadsTotal, RobotsBlocks,
	)
}

// Handler exposes /metrics and, when h is non-nil, /health, /ready and /live.
func Handler(h *health.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if h != nil {
		mux.HandleFunc("/health", h.HealthHandler)
		mux.HandleFunc("/ready", h.ReadinessHandler)
		mux.HandleFunc("/live", h.LivenessHandler)
	}
	return mux
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h *health.Handler, log *zap.SugaredLogger) {
	srv := &http.Server{Addr: addr, Handler: Handler(h), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warnw("metrics server stopped", "err", err)
	}
}
