package aspath

const (
	flagExtendedLength = 0x10

	typeCodeASPath = 2

	segmentSet      = 1
	segmentSequence = 2
)

// typeCodeNames is the registry of path attribute type codes a dump is
// expected to carry. Anything else is skipped unless the decoder is strict.
var typeCodeNames = map[byte]string{
	1:   "ORIGIN",
	2:   "AS_PATH",
	3:   "NEXT_HOP",
	4:   "MULTI_EXIT_DISC",
	5:   "LOCAL_PREF",
	6:   "ATOMIC_AGGREGATE",
	7:   "AGGREGATOR",
	8:   "COMMUNITIES",
	9:   "ORIGINATOR_ID",
	10:  "CLUSTER_LIST",
	11:  "DPA",
	12:  "ADVERTISER",
	13:  "RCID_PATH",
	14:  "MP_REACH_NLRI",
	15:  "MP_UNREACH_NLRI",
	16:  "EXTENDED_COMMUNITIES",
	17:  "AS4_PATH",
	18:  "AS4_AGGREGATOR",
	22:  "PMSI_TUNNEL",
	23:  "TUNNEL_ENCAPSULATION",
	25:  "IPV6_EXTENDED_COMMUNITIES",
	26:  "AIGP",
	29:  "BGP_LS",
	32:  "LARGE_COMMUNITY",
	33:  "BGPSEC_PATH",
	35:  "ONLY_TO_CUSTOMER",
	40:  "PREFIX_SID",
	128: "ATTR_SET",
}

// TypeCodeName returns the registry name of an attribute type code, or "" if
// the code is not known.
func TypeCodeName(code byte) string {
	return typeCodeNames[code]
}

// Result is the outcome of decoding one attribute block.
type Result struct {
	Path Path
	// Sets counts AS_SET segments that were seen and left out of Path.
	Sets int
}

// Decoder walks raw BGP path attribute blocks as stored in TABLE_DUMP_V2 RIB
// entries (4-byte ASNs).
type Decoder struct {
	// Strict turns attribute type codes outside the registry into
	// *UnknownTypeCodeError instead of skipping them.
	Strict bool
}

// Decode extracts the AS_SEQUENCE from raw with the default, non-strict
// decoder.
func Decode(raw []byte) (Path, error) {
	res, err := Decoder{}.Decode(raw)
	if err != nil {
		return nil, err
	}
	return res.Path, nil
}

// Decode walks every attribute in raw and returns the single AS_SEQUENCE it
// carries, source-nearest ASN first. No partial path is ever returned.
func (d Decoder) Decode(raw []byte) (Result, error) {
	if len(raw) == 0 {
		return Result{}, ErrMissingPathAttribute
	}

	c := NewCursor(raw)
	var res Result
	sequences := 0

	for !c.AtEnd() {
		flags, err := c.Advance()
		if err != nil {
			return Result{}, err
		}
		typeCode, err := c.Advance()
		if err != nil {
			return Result{}, err
		}

		var length int
		if flags&flagExtendedLength != 0 {
			v, err := c.ReadUint16()
			if err != nil {
				return Result{}, err
			}
			length = int(v)
		} else {
			v, err := c.Advance()
			if err != nil {
				return Result{}, err
			}
			length = int(v)
		}

		// value is bounded to the declared length and c is already realigned
		// on the next attribute header.
		value, err := c.Sub(length)
		if err != nil {
			return Result{}, err
		}

		if typeCode != typeCodeASPath {
			if d.Strict && TypeCodeName(typeCode) == "" {
				return Result{}, &UnknownTypeCodeError{Code: typeCode}
			}
			continue
		}

		path, isSet, err := decodeSegment(value)
		if err != nil {
			return Result{}, err
		}
		if isSet {
			res.Sets++
			continue
		}
		if len(path) == 0 {
			return Result{}, ErrNoAsPathInAttributePath
		}
		sequences++
		if sequences > 1 {
			return Result{}, ErrMultipleAsPaths
		}
		res.Path = path
	}

	if sequences == 0 {
		return Result{}, ErrNoAsPathInAttributePath
	}
	return res, nil
}

// decodeSegment reads the first segment of an AS_PATH value. AS_SET members
// are unordered and are never returned.
func decodeSegment(c *Cursor) (Path, bool, error) {
	if c.AtEnd() {
		return nil, false, ErrNoAsPathInAttributePath
	}
	kind, err := c.Advance()
	if err != nil {
		return nil, false, err
	}

	switch kind {
	case segmentSet:
		n, err := c.Advance()
		if err != nil {
			return nil, false, err
		}
		if err := c.Skip(4 * int(n)); err != nil {
			return nil, false, err
		}
		return nil, true, nil

	case segmentSequence:
		n, err := c.Advance()
		if err != nil {
			return nil, false, err
		}
		path := make(Path, 0, n)
		for i := 0; i < int(n); i++ {
			asn, err := c.ReadUint32()
			if err != nil {
				return nil, false, err
			}
			path = append(path, asn)
		}
		return path, false, nil

	default:
		return nil, false, &UnknownAsValueError{Value: kind}
	}
}
