// Package mrttest builds small TABLE_DUMP_V2 dumps byte by byte for tests.
package mrttest

import (
	"bytes"
	"encoding/binary"
	"net/netip"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	TypeTableDumpV2 = 13
	TypeBGP4MP      = 16

	SubtypePeerIndexTable = 1
	SubtypeRIBIPv4Unicast = 2
	SubtypeRIBIPv6Unicast = 4
	SubtypeRIBGeneric     = 6

	SubtypeRIBIPv4UnicastAddPath = 8
	SubtypeRIBIPv6UnicastAddPath = 10
)

// Timestamp is stamped on every record.
const Timestamp = 1700000000

// Record wraps body in a common MRT header.
func Record(typ, subtype uint16, body []byte) []byte {
	b := make([]byte, 12, 12+len(body))
	binary.BigEndian.PutUint32(b[0:], Timestamp)
	binary.BigEndian.PutUint16(b[4:], typ)
	binary.BigEndian.PutUint16(b[6:], subtype)
	binary.BigEndian.PutUint32(b[8:], uint32(len(body)))
	return append(b, body...)
}

// PeerIndexTable returns a PEER_INDEX_TABLE record listing n IPv4 peers with
// 4-byte ASNs.
func PeerIndexTable(n int) []byte {
	body := []byte{192, 0, 2, 1, 0, 0}
	body = binary.BigEndian.AppendUint16(body, uint16(n))
	for i := 0; i < n; i++ {
		body = append(body, 0x02)
		body = append(body, 10, 0, 0, byte(i+1))
		body = append(body, 192, 0, 2, byte(i+1))
		body = binary.BigEndian.AppendUint32(body, uint32(64500+i))
	}
	return Record(TypeTableDumpV2, SubtypePeerIndexTable, body)
}

// RIB returns a unicast RIB record for prefix with one entry per attribute
// block. The subtype follows the address family of prefix.
func RIB(seq uint32, prefix string, entries ...[]byte) []byte {
	return rib(seq, prefix, false, entries)
}

// RIBAddPath is RIB with the ADD-PATH subtypes. Entry i carries path
// identifier 100+i.
func RIBAddPath(seq uint32, prefix string, entries ...[]byte) []byte {
	return rib(seq, prefix, true, entries)
}

func rib(seq uint32, prefix string, addPath bool, entries [][]byte) []byte {
	p := netip.MustParsePrefix(prefix)
	subtype := uint16(SubtypeRIBIPv4Unicast)
	if p.Addr().Is6() {
		subtype = SubtypeRIBIPv6Unicast
	}
	if addPath {
		subtype = SubtypeRIBIPv4UnicastAddPath
		if p.Addr().Is6() {
			subtype = SubtypeRIBIPv6UnicastAddPath
		}
	}

	body := binary.BigEndian.AppendUint32(nil, seq)
	body = append(body, byte(p.Bits()))
	body = append(body, p.Addr().AsSlice()[:(p.Bits()+7)/8]...)
	body = binary.BigEndian.AppendUint16(body, uint16(len(entries)))
	for i, attrs := range entries {
		body = binary.BigEndian.AppendUint16(body, uint16(i))
		body = binary.BigEndian.AppendUint32(body, Timestamp)
		if addPath {
			body = binary.BigEndian.AppendUint32(body, uint32(100+i))
		}
		body = binary.BigEndian.AppendUint16(body, uint16(len(attrs)))
		body = append(body, attrs...)
	}
	return Record(TypeTableDumpV2, subtype, body)
}

// Attrs returns ORIGIN, AS_PATH (one AS_SEQUENCE) and NEXT_HOP attributes.
func Attrs(asns ...uint32) []byte {
	return AttrsSegment(2, asns...)
}

// AttrsSegment is Attrs with an arbitrary AS_PATH segment type, including
// ones no decoder accepts.
func AttrsSegment(typ byte, asns ...uint32) []byte {
	b := []byte{0x40, 1, 1, 0}
	b = append(b, segment(typ, asns)...)
	return append(b, 0x40, 3, 4, 192, 0, 2, 1)
}

// ASPath returns a lone AS_PATH attribute with one AS_SEQUENCE segment.
func ASPath(asns ...uint32) []byte {
	return segment(2, asns)
}

func segment(typ byte, asns []uint32) []byte {
	value := []byte{typ, byte(len(asns))}
	for _, a := range asns {
		value = binary.BigEndian.AppendUint32(value, a)
	}
	if len(value) > 255 {
		b := []byte{0x50, 2}
		b = binary.BigEndian.AppendUint16(b, uint16(len(value)))
		return append(b, value...)
	}
	return append([]byte{0x40, 2, byte(len(value))}, value...)
}

// Dump concatenates records.
func Dump(records ...[]byte) []byte {
	return bytes.Join(records, nil)
}

// Gzip compresses b.
func Gzip(b []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

// Zstd compresses b.
func Zstd(b []byte) []byte {
	w, _ := zstd.NewWriter(nil)
	defer w.Close()
	return w.EncodeAll(b, nil)
}
