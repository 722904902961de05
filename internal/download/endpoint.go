// Package download fetches MRT RIB dumps from public route collectors.
package download

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	risBase        = "http://data.ris.ripe.net"
	routeViewsBase = "http://archive.routeviews.org"
)

// Endpoint is one dump to fetch. When Index is set, URL is a directory
// listing and the newest RIB linked from it is fetched instead.
type Endpoint struct {
	Name  string
	URL   string
	File  string
	Index bool
}

// RISEndpoint returns the latest full-table dump of a RIPE RIS collector.
// name is "rrcNN" or just the collector number.
func RISEndpoint(name string) (Endpoint, error) {
	num := strings.TrimPrefix(strings.ToLower(name), "rrc")
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 || n > 99 {
		return Endpoint{}, fmt.Errorf("invalid RIS collector %q", name)
	}
	id := fmt.Sprintf("rrc%02d", n)
	return Endpoint{
		Name: id,
		URL:  fmt.Sprintf("%s/%s/latest-bview.gz", risBase, id),
		File: id + "-latest-bview.gz",
	}, nil
}

// RouteViewsEndpoint returns the RIB listing for a Route Views collector in
// the month of now. route-views2 lives at the archive root; the others
// under their own name.
func RouteViewsEndpoint(name string, now time.Time) Endpoint {
	month := now.UTC().Format("2006.01")
	dir := "/" + name
	if name == "route-views2" {
		dir = ""
	}
	return Endpoint{
		Name:  name,
		URL:   fmt.Sprintf("%s%s/bgpdata/%s/RIBS/", routeViewsBase, dir, month),
		Index: true,
	}
}

// URLEndpoint fetches raw directly, saving it under the last path element.
func URLEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("invalid url %q: unsupported scheme", raw)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return Endpoint{}, fmt.Errorf("invalid url %q: no file name", raw)
	}
	return Endpoint{Name: name, URL: u.String(), File: u.Host + "-" + name}, nil
}

// Endpoints resolves collector names and explicit URLs, in that order.
// Duplicate targets are dropped.
func Endpoints(collectors, urls []string, now time.Time) ([]Endpoint, error) {
	var out []Endpoint
	seen := make(map[string]struct{})
	add := func(ep Endpoint) {
		if _, ok := seen[ep.URL]; ok {
			return
		}
		seen[ep.URL] = struct{}{}
		out = append(out, ep)
	}

	for _, name := range collectors {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
			continue
		case strings.HasPrefix(name, "route-views"):
			add(RouteViewsEndpoint(name, now))
		default:
			ep, err := RISEndpoint(name)
			if err != nil {
				return nil, err
			}
			add(ep)
		}
	}
	for _, raw := range urls {
		ep, err := URLEndpoint(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		add(ep)
	}
	return out, nil
}
