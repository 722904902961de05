// Package robots decides whether an archive URL may be fetched.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps how much of a robots.txt is read.
const maxRobotsSize = 512 << 10

// Cache keeps parsed robots.txt files per scheme and host for a day.
type Cache struct {
	hc  *http.Client
	lru *expirable.LRU[string, *robotstxt.RobotsData]
	ua  string
}

func NewCache(hc *http.Client, ua string) *Cache {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Cache{
		hc:  hc,
		lru: expirable.NewLRU[string, *robotstxt.RobotsData](256, nil, 24*time.Hour),
		ua:  ua,
	}
}

// Get returns the robots rules for the origin of u. Anything other than a
// readable 2xx answer is treated as "no rules".
func (c *Cache) Get(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host
	if v, ok := c.lru.Get(origin); ok {
		return v
	}

	rd := c.fetch(ctx, origin+"/robots.txt")
	c.lru.Add(origin, rd)
	return rd
}

func (c *Cache) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	empty, _ := robotstxt.FromBytes(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return empty
	}
	req.Header.Set("User-Agent", c.ua)
	resp, err := c.hc.Do(req)
	if err != nil {
		return empty
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return empty
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return empty
	}
	rd, err := robotstxt.FromBytes(b)
	if err != nil {
		return empty
	}
	return rd
}

// Allowed reports whether the cache's user agent may fetch u.
func (c *Cache) Allowed(ctx context.Context, u *url.URL) bool {
	return Allowed(c.Get(ctx, u), c.ua, u.EscapedPath())
}

// Allowed applies rd's group for ua, falling back to "*", to path.
func Allowed(rd *robotstxt.RobotsData, ua, path string) bool {
	if rd == nil {
		return true
	}
	g := rd.FindGroup(ua)
	if g == nil {
		g = rd.FindGroup("*")
	}
	if g == nil {
		return true
	}
	return g.Test(path)
}
