package collector

import (
	"fmt"

	"github.com/gustycube/asmap/internal/prefix"
)

// ShardRange is an inclusive range of leading address octets.
type ShardRange struct {
	Lo, Hi byte
}

// Contains reports whether p's leading octet falls in r.
func (r ShardRange) Contains(p prefix.Prefix) bool {
	o := p.LeadingOctet()
	return o >= r.Lo && o <= r.Hi
}

func (r ShardRange) String() string {
	return fmt.Sprintf("%d-%d", r.Lo, r.Hi)
}

// Shards splits the leading-octet space into ranges of step octets. A step
// of 0 yields one range covering everything. Otherwise step must be a power
// of two between 1 and 256.
func Shards(step int) ([]ShardRange, error) {
	if step == 0 {
		step = 256
	}
	if step < 1 || step > 256 || step&(step-1) != 0 {
		return nil, fmt.Errorf("shard step %d: must be a power of two between 1 and 256", step)
	}

	out := make([]ShardRange, 0, 256/step)
	for lo := 0; lo < 256; lo += step {
		out = append(out, ShardRange{Lo: byte(lo), Hi: byte(lo + step - 1)})
	}
	return out, nil
}
