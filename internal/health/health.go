// Package health serves liveness, readiness and component checks next to
// the metrics endpoint while a long run is in progress.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gustycube/asmap/internal/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of one component check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Response represents the overall health response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    []Check           `json:"checks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler manages health and readiness checks
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]string
	logger   *logging.Logger
	ready    bool
}

func NewHandler(logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		checkers: make(map[string]Checker),
		metadata: make(map[string]string),
		logger:   logger,
	}
}

func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) SetMetadata(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metadata[key] = value
}

func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Run executes every registered check. The overall status is the worst of
// the individual ones.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	metadata := make(map[string]string, len(h.metadata))
	for k, v := range h.metadata {
		metadata[k] = v
	}
	h.mu.RUnlock()

	resp := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    []Check{},
		Metadata:  metadata,
	}
	for name, checker := range checkers {
		check := checker.Check(ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)

		switch {
		case check.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case check.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	sort.Slice(resp.Checks, func(i, j int) bool { return resp.Checks[i].Name < resp.Checks[j].Name })
	return resp
}

// HealthHandler handles health check requests
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := h.Run(ctx)
	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
		h.logger.Warnw("health check failed", "checks", resp.Checks)
	}
	h.writeJSON(w, statusCode, resp)
}

// ReadinessHandler handles readiness check requests
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	h.writeJSON(w, statusCode, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
	})
}

// LivenessHandler always answers OK while the process is up.
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debugw("health response", "err", err)
	}
}

// RedisChecker checks Redis connectivity
type RedisChecker struct {
	ping func(ctx context.Context) error
}

// NewRedisChecker wraps a ping function; nil means Redis is not configured.
func NewRedisChecker(ping func(ctx context.Context) error) *RedisChecker {
	return &RedisChecker{ping: ping}
}

func (c *RedisChecker) Check(ctx context.Context) Check {
	start := time.Now()
	if c.ping == nil {
		return Check{Status: StatusHealthy, Message: "Redis not configured", LastChecked: start}
	}

	err := c.ping(ctx)
	check := Check{
		Status:      StatusHealthy,
		Message:     "Redis connection OK",
		LastChecked: time.Now(),
		Duration:    time.Since(start) / time.Millisecond,
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = "Redis connection failed: " + err.Error()
	}
	return check
}

// FilesChecker reports ingest progress. Any failed file degrades the run.
type FilesChecker struct {
	progress func() (done, failed, total int)
}

func NewFilesChecker(progress func() (done, failed, total int)) *FilesChecker {
	return &FilesChecker{progress: progress}
}

func (c *FilesChecker) Check(ctx context.Context) Check {
	done, failed, total := c.progress()
	check := Check{
		Status:      StatusHealthy,
		Message:     fmt.Sprintf("%d/%d files ingested", done, total),
		LastChecked: time.Now(),
	}
	if failed > 0 {
		check.Status = StatusDegraded
		check.Message += fmt.Sprintf(", %d failed", failed)
	}
	return check
}
