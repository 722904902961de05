package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gustycube/asmap/internal/bottleneck"
)

// redisChunk is the number of fields sent per HSET.
const redisChunk = 1000

// RedisSink stores a run's result as one hash, prefix -> ASN, and points
// "<prefix>:latest" at it.
type RedisSink struct {
	cli    *redis.Client
	prefix string
	runID  string
	ttl    time.Duration
}

// NewRedisSink connects to addr and checks it answers. An empty runID gets a
// random one.
func NewRedisSink(ctx context.Context, addr, keyPrefix, runID string, ttl time.Duration) (*RedisSink, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cli.Ping(pctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return &RedisSink{cli: cli, prefix: keyPrefix, runID: runID, ttl: ttl}, nil
}

// Key is the hash holding this run's result.
func (s *RedisSink) Key() string { return s.prefix + ":" + s.runID }

// LatestKey names the string holding the most recent run's hash key.
func (s *RedisSink) LatestKey() string { return s.prefix + ":latest" }

// Ping reports whether the server still answers.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx).Err()
}

// Store writes res in chunks through one pipeline.
func (s *RedisSink) Store(ctx context.Context, res bottleneck.Result) error {
	key := s.Key()
	pipe := s.cli.Pipeline()
	for _, chunk := range hashChunks(res, redisChunk) {
		pipe.HSet(ctx, key, chunk...)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.Set(ctx, s.LatestKey(), key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store %s: %w", key, err)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.cli.Close() }

// hashChunks flattens res into sorted field/value argument lists of at most
// size fields each.
func hashChunks(res bottleneck.Result, size int) [][]interface{} {
	var out [][]interface{}
	var cur []interface{}
	for _, e := range res.Sorted() {
		cur = append(cur, e.Prefix.String(), strconv.FormatUint(uint64(e.ASN), 10))
		if len(cur) == 2*size {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
