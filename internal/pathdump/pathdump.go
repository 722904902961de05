// Package pathdump reads plain-text path dumps, one route per line:
//
//	1.0.139.0/24|2497 38040 23969
//
// Blank lines and lines starting with '#' are ignored.
package pathdump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gustycube/asmap/internal/aspath"
	"github.com/gustycube/asmap/internal/mrt"
	"github.com/gustycube/asmap/internal/prefix"
)

// ErrNoSeparator is returned for a line without the '|' between prefix and
// path.
var ErrNoSeparator = errors.New("missing '|' between prefix and path")

// Line is one parsed route. Err is set when the line was malformed, in which
// case Prefix and Path are zero.
type Line struct {
	No     int
	Prefix prefix.Prefix
	Path   aspath.Path
	Err    error
}

// ParseLine parses "ip/mask|asn asn ...". The path is compacted.
func ParseLine(s string) (prefix.Prefix, aspath.Path, error) {
	pfx, rest, ok := strings.Cut(s, "|")
	if !ok {
		return prefix.Prefix{}, nil, ErrNoSeparator
	}
	p, err := prefix.Parse(strings.TrimSpace(pfx))
	if err != nil {
		return prefix.Prefix{}, nil, err
	}
	path, err := aspath.ParsePath(rest)
	if err != nil {
		return prefix.Prefix{}, nil, err
	}
	return p, path.Compact(), nil
}

// Scan calls fn for every route line of r, malformed ones included. It stops
// at the first read error or the first error returned by fn.
func Scan(r io.Reader, fn func(Line) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		p, path, err := ParseLine(text)
		if err != nil {
			err = fmt.Errorf("line %d: %w", n, err)
		}
		if err := fn(Line{No: n, Prefix: p, Path: path, Err: err}); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ScanFile opens path, decompressing it if needed, and scans it.
func ScanFile(path string, fn func(Line) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rc, _, err := mrt.Decompress(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer rc.Close()
	return Scan(rc, fn)
}

// IsPathDump reports whether name looks like a text path dump, ignoring a
// compression suffix.
func IsPathDump(name string) bool {
	name = strings.ToLower(filepath.Base(name))
	for _, ext := range []string{".gz", ".bz2", ".zst"} {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.HasSuffix(name, ".paths") || strings.HasSuffix(name, ".txt")
}
