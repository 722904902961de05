// Package collector accumulates the distinct AS paths seen for each prefix.
//
// A Collector is owned by a single goroutine. Parallel ingestion gives every
// worker its own Collector and folds them together with Merge once the
// workers are done.
package collector

import (
	"slices"

	"github.com/gustycube/asmap/internal/aspath"
	"github.com/gustycube/asmap/internal/prefix"
)

// Table is a sealed prefix path set handed to the bottleneck engine.
type Table map[prefix.Prefix][]aspath.Path

// Collector maps each prefix to its set of distinct compacted paths. Paths
// are stored by their binary key.
type Collector struct {
	paths   map[prefix.Prefix]map[string]struct{}
	inserts int
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{paths: make(map[prefix.Prefix]map[string]struct{})}
}

// Insert records path for p after collapsing adjacent repeats. It reports
// whether the path was new for that prefix.
func (c *Collector) Insert(p prefix.Prefix, path aspath.Path) (bool, error) {
	if len(path) == 0 {
		return false, aspath.ErrEmptyPath
	}
	c.inserts++

	key := path.Compact().Key()
	set, ok := c.paths[p]
	if !ok {
		set = make(map[string]struct{}, 1)
		c.paths[p] = set
	}
	if _, seen := set[key]; seen {
		return false, nil
	}
	set[key] = struct{}{}
	return true, nil
}

// Merge moves every path of other into c and leaves other empty. The union
// does not depend on which side is merged into which.
func (c *Collector) Merge(other *Collector) {
	if other == nil || other == c {
		return
	}
	for p, theirs := range other.paths {
		ours, ok := c.paths[p]
		if !ok {
			c.paths[p] = theirs
			continue
		}
		if len(theirs) > len(ours) {
			ours, theirs = theirs, ours
			c.paths[p] = ours
		}
		for key := range theirs {
			ours[key] = struct{}{}
		}
	}
	c.inserts += other.inserts
	other.reset()
}

// Len is the number of prefixes held.
func (c *Collector) Len() int { return len(c.paths) }

// PathCount is the number of distinct (prefix, path) pairs held.
func (c *Collector) PathCount() int {
	n := 0
	for _, set := range c.paths {
		n += len(set)
	}
	return n
}

// Inserts is the number of Insert calls accepted, duplicates included.
func (c *Collector) Inserts() int { return c.inserts }

// Paths returns the distinct paths recorded for p in a stable order.
func (c *Collector) Paths(p prefix.Prefix) []aspath.Path {
	return decodeSet(c.paths[p])
}

// Seal hands the accumulated paths over as a Table and empties c. Later
// inserts start a fresh set and never reach the returned Table.
func (c *Collector) Seal() Table {
	t := make(Table, len(c.paths))
	for p, set := range c.paths {
		t[p] = decodeSet(set)
	}
	c.reset()
	return t
}

func (c *Collector) reset() {
	c.paths = make(map[prefix.Prefix]map[string]struct{})
	c.inserts = 0
}

func decodeSet(set map[string]struct{}) []aspath.Path {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]aspath.Path, len(keys))
	for i, k := range keys {
		out[i] = aspath.FromKey(k)
	}
	return out
}
