package bottleneck

import (
	"slices"

	"github.com/gustycube/asmap/internal/prefix"
)

// Result maps each prefix to its bottleneck ASN.
type Result map[prefix.Prefix]uint32

// Entry is one line of a Result.
type Entry struct {
	Prefix prefix.Prefix `json:"prefix"`
	ASN    uint32        `json:"asn"`
}

// Merge copies every entry of other into r. Shards never overlap, so a key
// present on both sides already carries the same value.
func (r Result) Merge(other Result) {
	for p, asn := range other {
		r[p] = asn
	}
}

// Sorted returns the entries ordered IPv4 first, then by address and mask.
func (r Result) Sorted() []Entry {
	out := make([]Entry, 0, len(r))
	for p, asn := range r {
		out = append(out, Entry{Prefix: p, ASN: asn})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return a.Prefix.Compare(b.Prefix)
	})
	return out
}
