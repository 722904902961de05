// Package bottleneck reduces each prefix's AS paths to the AS farthest from
// the origin that lies on every observed path.
package bottleneck

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gustycube/asmap/internal/aspath"
	"github.com/gustycube/asmap/internal/prefix"
)

var (
	// ErrNoPaths is returned for a prefix with nothing to reduce.
	ErrNoPaths = errors.New("prefix has no paths")
	// ErrEmptyCandidate is returned when the common suffix has no element
	// left to report.
	ErrEmptyCandidate = errors.New("common suffix is empty")
)

// AnomalyError reports a prefix whose paths disagree on the origin AS.
type AnomalyError struct {
	Prefix  prefix.Prefix
	Origins []uint32
}

func (e *AnomalyError) Error() string {
	if e.Prefix.IsValid() {
		return fmt.Sprintf("prefix %s claimed by multiple origins %v", e.Prefix, e.Origins)
	}
	return fmt.Sprintf("paths claim multiple origins %v", e.Origins)
}

// CommonSuffix returns the longest ASN sequence, origin first, shared by the
// tail of every path. Paths that end in different origins yield an
// *AnomalyError. The result does not depend on the order of paths.
func CommonSuffix(paths []aspath.Path) (aspath.Path, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	var candidate aspath.Path
	for i, p := range paths {
		if len(p) == 0 {
			return nil, aspath.ErrEmptyPath
		}
		other := p.Reversed()
		if i == 0 {
			candidate = other
			continue
		}
		if other[0] != candidate[0] {
			return nil, &AnomalyError{Origins: origins(paths)}
		}

		n := min(len(candidate), len(other))
		j := 1
		for j < n && candidate[j] == other[j] {
			j++
		}
		candidate = candidate[:j]
	}
	return candidate, nil
}

// Find returns the bottleneck ASN for p: the last element of the common
// suffix of its paths.
func Find(p prefix.Prefix, paths []aspath.Path) (uint32, error) {
	suffix, err := CommonSuffix(paths)
	if err != nil {
		var anomaly *AnomalyError
		if errors.As(err, &anomaly) {
			anomaly.Prefix = p
		}
		return 0, err
	}
	if len(suffix) == 0 {
		return 0, ErrEmptyCandidate
	}
	return suffix[len(suffix)-1], nil
}

func origins(paths []aspath.Path) []uint32 {
	var out []uint32
	for _, p := range paths {
		if o, ok := p.Origin(); ok {
			out = append(out, o)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
