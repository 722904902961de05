// Package aspath decodes AS_PATH attributes out of raw BGP path attribute
// blocks and provides the AS path value type used by the rest of asmap.
package aspath

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Path is an AS path as announced, source-nearest ASN first and origin last.
type Path []uint32

// Origin returns the last ASN, the one that originated the route.
func (p Path) Origin() (uint32, bool) {
	if len(p) == 0 {
		return 0, false
	}
	return p[len(p)-1], true
}

// Compact returns a copy of p with adjacent repeats (prepending) collapsed.
func (p Path) Compact() Path {
	if p == nil {
		return nil
	}
	return slices.Compact(slices.Clone(p))
}

// Reversed returns a copy of p with the origin first.
func (p Path) Reversed() Path {
	out := slices.Clone(p)
	slices.Reverse(out)
	return out
}

// Equal reports whether both paths hold the same ASNs in the same order.
func (p Path) Equal(o Path) bool {
	return slices.Equal(p, o)
}

// Key is a compact binary form of p suitable as a map key.
func (p Path) Key() string {
	b := make([]byte, 4*len(p))
	for i, asn := range p {
		binary.BigEndian.PutUint32(b[4*i:], asn)
	}
	return string(b)
}

// FromKey rebuilds the path encoded by Key.
func FromKey(key string) Path {
	p := make(Path, len(key)/4)
	for i := range p {
		p[i] = binary.BigEndian.Uint32([]byte(key[4*i : 4*i+4]))
	}
	return p
}

// String renders p as space separated decimal ASNs.
func (p Path) String() string {
	var sb strings.Builder
	for i, asn := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatUint(uint64(asn), 10))
	}
	return sb.String()
}

// ParsePath parses whitespace separated decimal ASNs. An optional "AS"
// prefix on each token is accepted.
func ParsePath(s string) (Path, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, ErrEmptyPath
	}
	p := make(Path, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "AS"), "as")
		asn, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse ASN %q: %w", f, err)
		}
		p = append(p, uint32(asn))
	}
	return p, nil
}
