// Package rate spaces out requests to each archive host.
package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerHost hands out one token bucket per host. Idle buckets are evicted
// once the table grows past maxEntries.
type PerHost struct {
	mu         sync.Mutex
	m          map[string]*limitEntry
	perSecond  float64
	burst      int
	maxEntries int
	idle       time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

type limitEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// New returns a limiter allowing perSecond requests per host with the given
// burst. A non-positive perSecond disables limiting.
func New(perSecond float64, burst int) *PerHost {
	if burst < 1 {
		burst = 1
	}
	ph := &PerHost{
		m:          make(map[string]*limitEntry),
		perSecond:  perSecond,
		burst:      burst,
		maxEntries: 1024,
		idle:       time.Hour,
		stop:       make(chan struct{}),
	}
	go ph.cleanup(5 * time.Minute)
	return ph
}

func (p *PerHost) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.evict(time.Now().Add(-p.idle))
		}
	}
}

func (p *PerHost) evict(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.m) <= p.maxEntries {
		return
	}
	for host, entry := range p.m {
		if entry.lastUsed.Before(cutoff) {
			delete(p.m, host)
		}
	}
}

func (p *PerHost) entry(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.m[host]
	if !ok {
		limit := rate.Inf
		if p.perSecond > 0 {
			limit = rate.Limit(p.perSecond)
		}
		entry = &limitEntry{limiter: rate.NewLimiter(limit, p.burst)}
		p.m[host] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// Allow reports whether a request to host may go out now.
func (p *PerHost) Allow(host string) bool {
	return p.entry(host).Allow()
}

// Wait blocks until a request to host may go out or ctx is done.
func (p *PerHost) Wait(ctx context.Context, host string) error {
	return p.entry(host).Wait(ctx)
}

// Len is the number of hosts currently tracked.
func (p *PerHost) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Stop ends the background eviction loop.
func (p *PerHost) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
