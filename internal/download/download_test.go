package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/gustycube/asmap/internal/httpclient"
)

func TestRISEndpoint(t *testing.T) {
	ep, err := RISEndpoint("rrc00")
	require.NoError(t, err)
	require.Equal(t, Endpoint{
		Name: "rrc00",
		URL:  "http://data.ris.ripe.net/rrc00/latest-bview.gz",
		File: "rrc00-latest-bview.gz",
	}, ep)

	ep, err = RISEndpoint("7")
	require.NoError(t, err)
	require.Equal(t, "rrc07", ep.Name)
	require.Equal(t, "http://data.ris.ripe.net/rrc07/latest-bview.gz", ep.URL)

	for _, bad := range []string{"rrcX", "", "rrc-1", "rrc100"} {
		_, err := RISEndpoint(bad)
		require.Error(t, err, bad)
	}
}

func TestRouteViewsEndpoint(t *testing.T) {
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	require.Equal(t, "http://archive.routeviews.org/bgpdata/2024.01/RIBS/", RouteViewsEndpoint("route-views2", now).URL)

	ep := RouteViewsEndpoint("route-views.linx", now)
	require.Equal(t, "http://archive.routeviews.org/route-views.linx/bgpdata/2024.01/RIBS/", ep.URL)
	require.True(t, ep.Index)
}

func TestEndpoints(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	eps, err := Endpoints(
		[]string{"rrc00", "0", "route-views2", " "},
		[]string{"https://example.net/dumps/rib.20240101.0000.bz2"},
		now,
	)
	require.NoError(t, err)
	require.Len(t, eps, 3)
	require.Equal(t, "rrc00", eps[0].Name)
	require.Equal(t, "route-views2", eps[1].Name)
	require.Equal(t, "example.net-rib.20240101.0000.bz2", eps[2].File)

	_, err = Endpoints([]string{"bogus"}, nil, now)
	require.Error(t, err)
	_, err = Endpoints(nil, []string{"ftp://example.net/x"}, now)
	require.Error(t, err)
	_, err = Endpoints(nil, []string{"http://example.net/"}, now)
	require.Error(t, err)
}

func TestLatestLink(t *testing.T) {
	base, _ := url.Parse("http://archive.routeviews.org/bgpdata/2024.01/RIBS/")
	page := `<html><body>
<a href="../">Parent</a>
<a href="rib.20240101.0000.bz2">rib.20240101.0000.bz2</a>
<a href="rib.20240101.0200.bz2">rib.20240101.0200.bz2</a>
<a href="updates.20240101.0215.bz2">updates</a>
<a href="rib.20231231.2200.bz2">rib.20231231.2200.bz2</a>
</body></html>`

	u, err := LatestLink(base, strings.NewReader(page))
	require.NoError(t, err)
	require.Equal(t, "http://archive.routeviews.org/bgpdata/2024.01/RIBS/rib.20240101.0200.bz2", u.String())

	_, err = LatestLink(base, strings.NewReader(`<a href="updates.bz2">x</a>`))
	require.ErrorIs(t, err, ErrNoRIB)
}

// archive serves robots.txt plus the given handlers.
func archive(t *testing.T, robots string, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		if robots == "" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(robots))
	})
	for p, h := range routes {
		mux.HandleFunc(p, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newDownloader(t *testing.T, srv *httptest.Server, opts Options) *Downloader {
	t.Helper()
	opts.Dir = t.TempDir()
	opts.Client = srv.Client()
	if opts.RetryBudget == 0 {
		opts.RetryBudget = 5 * time.Second
	}
	d, err := New(opts, nil)
	require.NoError(t, err)
	d.initialInterval = time.Millisecond
	t.Cleanup(d.Close)
	return d
}

func noTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".part"), e.Name())
	}
}

func TestFetch(t *testing.T) {
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/rrc00/latest-bview.gz": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "asmap-test/1.0", r.Header.Get("User-Agent"))
			w.Write([]byte("dump-bytes"))
		},
	})
	d := newDownloader(t, srv, Options{UA: "asmap-test/1.0"})

	ep := Endpoint{Name: "rrc00", URL: srv.URL + "/rrc00/latest-bview.gz", File: "rrc00-latest-bview.gz"}
	res, err := d.Fetch(context.Background(), ep)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(d.opts.Dir, "rrc00-latest-bview.gz"), res.Path)
	require.EqualValues(t, 10, res.Bytes)
	require.Equal(t, 1, res.Attempts)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, "dump-bytes", string(data))
	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	noTempFiles(t, d.opts.Dir)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/rib.gz": func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		},
	})
	d := newDownloader(t, srv, Options{})

	res, err := d.Fetch(context.Background(), Endpoint{Name: "x", URL: srv.URL + "/rib.gz", File: "x.gz"})
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)
	noTempFiles(t, d.opts.Dir)
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	var calls int32
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/gone.gz": func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.NotFound(w, r)
		},
	})
	d := newDownloader(t, srv, Options{})

	res, err := d.Fetch(context.Background(), Endpoint{Name: "gone", URL: srv.URL + "/gone.gz", File: "gone.gz"})
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, httpclient.StatusCode(err))
	require.Equal(t, 1, res.Attempts)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	_, statErr := os.Stat(filepath.Join(d.opts.Dir, "gone.gz"))
	require.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestFetchRobotsBlocked(t *testing.T) {
	var calls int32
	srv := archive(t, "User-agent: *\nDisallow: /\n", map[string]http.HandlerFunc{
		"/rib.gz": func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		},
	})
	ep := Endpoint{Name: "x", URL: srv.URL + "/rib.gz", File: "x.gz"}

	d := newDownloader(t, srv, Options{UA: "asmap"})
	_, err := d.Fetch(context.Background(), ep)
	require.ErrorIs(t, err, ErrDisallowed)
	require.Zero(t, atomic.LoadInt32(&calls))

	d = newDownloader(t, srv, Options{UA: "asmap", IgnoreRobots: true})
	_, err = d.Fetch(context.Background(), ep)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchIndex(t *testing.T) {
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/bgpdata/2024.01/RIBS/": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<a href="rib.20240101.0000.bz2">a</a> <a href="rib.20240101.0200.bz2">b</a>`))
		},
		"/bgpdata/2024.01/RIBS/rib.20240101.0200.bz2": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("BZh"))
		},
	})
	d := newDownloader(t, srv, Options{})

	ep := Endpoint{Name: "route-views2", URL: srv.URL + "/bgpdata/2024.01/RIBS/", Index: true}
	res, err := d.Fetch(context.Background(), ep)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/bgpdata/2024.01/RIBS/rib.20240101.0200.bz2", res.URL)
	require.Equal(t, "route-views2-rib.20240101.0200.bz2", filepath.Base(res.Path))
}

func TestFetchIndexWithoutRIB(t *testing.T) {
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/RIBS/": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<p>empty month</p>`))
		},
	})
	d := newDownloader(t, srv, Options{})

	_, err := d.Fetch(context.Background(), Endpoint{Name: "rv", URL: srv.URL + "/RIBS/", Index: true})
	require.ErrorIs(t, err, ErrNoRIB)
}

func TestRun(t *testing.T) {
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/rrc00/latest-bview.gz": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("a")) },
		"/rrc01/latest-bview.gz": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("bb")) },
	})
	d := newDownloader(t, srv, Options{Workers: 2})

	eps := []Endpoint{
		{Name: "rrc00", URL: srv.URL + "/rrc00/latest-bview.gz", File: "rrc00-latest-bview.gz"},
		{Name: "rrc02", URL: srv.URL + "/rrc02/latest-bview.gz", File: "rrc02-latest-bview.gz"},
		{Name: "rrc01", URL: srv.URL + "/rrc01/latest-bview.gz", File: "rrc01-latest-bview.gz"},
	}
	results, err := d.Run(context.Background(), eps)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)
	require.Contains(t, err.Error(), "rrc02")

	require.Len(t, results, 2)
	require.Equal(t, "rrc00", results[0].Endpoint.Name)
	require.Equal(t, "rrc01", results[1].Endpoint.Name)
	noTempFiles(t, d.opts.Dir)
}

func TestFetchCancelled(t *testing.T) {
	srv := archive(t, "", map[string]http.HandlerFunc{
		"/slow.gz": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})
	d := newDownloader(t, srv, Options{RetryBudget: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Fetch(ctx, Endpoint{Name: "slow", URL: srv.URL + "/slow.gz", File: "slow.gz"})
	require.Error(t, err)
}
