package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/temoto/robotstxt"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestCache_Allowed(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&hits, 1)
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := NewCache(server.Client(), "asmap-test/1.0")
	ctx := context.Background()

	if !cache.Allowed(ctx, mustURL(t, server.URL+"/rrc00/latest-bview.gz")) {
		t.Error("expected dump path to be allowed")
	}
	if cache.Allowed(ctx, mustURL(t, server.URL+"/private/rib.bz2")) {
		t.Error("expected /private/ to be disallowed")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", n)
	}
}

func TestCache_Get404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := NewCache(server.Client(), "asmap-test/1.0")
	u := mustURL(t, server.URL+"/bgpdata/2024.01/RIBS/")
	rd := cache.Get(context.Background(), u)
	if rd == nil {
		t.Fatal("expected empty robots data for 404, got nil")
	}
	if !cache.Allowed(context.Background(), u) {
		t.Error("missing robots.txt must allow everything")
	}
}

func TestCache_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u := mustURL(t, server.URL+"/x")
	server.Close()

	cache := NewCache(nil, "asmap-test/1.0")
	if !cache.Allowed(context.Background(), u) {
		t.Error("unreachable robots.txt must allow everything")
	}
}

func TestAllowed(t *testing.T) {
	rd, err := robotstxt.FromString("User-agent: asmap\nDisallow: /\n\nUser-agent: *\nDisallow: /tmp/\n")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ua   string
		path string
		want bool
	}{
		{"asmap", "/rrc00/latest-bview.gz", false},
		{"other", "/rrc00/latest-bview.gz", true},
		{"other", "/tmp/x", false},
	}
	for _, tt := range tests {
		if got := Allowed(rd, tt.ua, tt.path); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.ua, tt.path, got, tt.want)
		}
	}
	if !Allowed(nil, "asmap", "/") {
		t.Error("nil rules must allow")
	}
}
