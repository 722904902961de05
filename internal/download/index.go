package download

import (
	"errors"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoRIB is returned when a listing links to no RIB dump.
var ErrNoRIB = errors.New("no rib dump in listing")

// ParseLinks returns every href of an <a> element in body, resolved
// against base.
func ParseLinks(base *url.URL, body io.Reader) ([]*url.URL, error) {
	z := html.NewTokenizer(body)
	var out []*url.URL
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return out, nil
			}
			return out, z.Err()
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		t := z.Token()
		if !strings.EqualFold(t.Data, "a") {
			continue
		}
		for _, a := range t.Attr {
			if !strings.EqualFold(a.Key, "href") {
				continue
			}
			u, err := url.Parse(strings.TrimSpace(a.Val))
			if err == nil {
				out = append(out, base.ResolveReference(u))
			}
		}
	}
}

// LatestLink picks the newest "rib.YYYYMMDD.HHMM.bz2" linked from an index
// page. The timestamped names sort lexically.
func LatestLink(base *url.URL, body io.Reader) (*url.URL, error) {
	links, err := ParseLinks(base, body)
	if err != nil {
		return nil, err
	}
	var best *url.URL
	var bestName string
	for _, u := range links {
		name := path.Base(u.Path)
		if !strings.HasPrefix(name, "rib.") || !strings.HasSuffix(name, ".bz2") {
			continue
		}
		if name > bestName {
			best, bestName = u, name
		}
	}
	if best == nil {
		return nil, ErrNoRIB
	}
	return best, nil
}
