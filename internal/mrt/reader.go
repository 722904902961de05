// Package mrt reads TABLE_DUMP_V2 RIB snapshots and yields, per prefix, the
// raw path attribute block of every peer's entry.
package mrt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/osrg/gobgp/v3/pkg/packet/mrt"

	"github.com/gustycube/asmap/internal/aspath"
	"github.com/gustycube/asmap/internal/logging"
	"github.com/gustycube/asmap/internal/metrics"
	"github.com/gustycube/asmap/internal/prefix"
)

// maxRecordLen bounds a single record body. Anything larger is treated as
// a corrupt header.
const maxRecordLen = 16 << 20

// Entry is one peer's view of a prefix.
type Entry struct {
	PeerIndex uint16
	// PathID is only set by the ADD-PATH subtypes.
	PathID uint32
	// Attrs is the path attribute block exactly as stored in the dump.
	Attrs []byte
}

// Record is one RIB record: a prefix and every peer entry for it.
type Record struct {
	Time    time.Time
	Prefix  prefix.Prefix
	Entries []Entry
	// Dropped counts the trailing entries that could not be framed because
	// an entry ran past the end of the record. DropErr says why.
	Dropped int
	DropErr error
}

// Stats counts what a Reader saw.
type Stats struct {
	Records   int
	Peers     int
	Skipped   int
	Malformed int
	// Dropped counts entries lost to broken entry framing.
	Dropped int
	// Truncated is set when the stream ended inside a record.
	Truncated bool
}

// Reader yields RIB records from an uncompressed MRT stream.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	hdr    [mrt.MRT_COMMON_HEADER_LEN]byte
	stats  Stats
	log    *logging.Logger
}

// NewReader reads MRT records from r. A nil log discards output.
func NewReader(r io.Reader, log *logging.Logger) *Reader {
	if log == nil {
		log = logging.Nop()
	}
	return &Reader{br: bufio.NewReaderSize(r, 256*1024), log: log}
}

// Open opens a dump file, decompressing it if needed.
func Open(path string, log *logging.Logger) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc, kind, err := Decompress(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r := NewReader(rc, log)
	r.closer = multiCloser{rc, f}
	r.log.Debugw("opened dump", "path", path, "compression", kind.String())
	return r, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Stats returns counters for the records read so far.
func (r *Reader) Stats() Stats { return r.stats }

// Next returns the next IPv4 or IPv6 unicast RIB record. Other record kinds
// are skipped. It returns io.EOF at the end of the stream, including when the
// stream stops partway through a record.
func (r *Reader) Next() (*Record, error) {
	for {
		if _, err := io.ReadFull(r.br, r.hdr[:]); err != nil {
			return nil, r.endOfStream(err)
		}

		h := &mrt.MRTHeader{}
		if err := h.DecodeFromBytes(r.hdr[:]); err != nil {
			return nil, r.endOfStream(io.ErrUnexpectedEOF)
		}
		if h.Len > maxRecordLen {
			r.log.Warnw("record length out of range, ending stream", "len", h.Len)
			return nil, r.endOfStream(io.ErrUnexpectedEOF)
		}

		// Entries keep pointing into body, so it is never reused.
		body := make([]byte, h.Len)
		if _, err := io.ReadFull(r.br, body); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, r.endOfStream(err)
		}

		if h.Type != mrt.TABLE_DUMPv2 {
			r.skip("other")
			continue
		}

		var is6, addPath bool
		switch mrt.MRTSubTypeTableDumpv2(h.SubType) {
		case mrt.PEER_INDEX_TABLE:
			r.peerIndex(h, body)
			continue
		case mrt.RIB_IPV4_UNICAST:
		case mrt.RIB_IPV4_UNICAST_ADDPATH:
			addPath = true
		case mrt.RIB_IPV6_UNICAST:
			is6 = true
		case mrt.RIB_IPV6_UNICAST_ADDPATH:
			is6, addPath = true, true
		default:
			r.skip("unsupported")
			continue
		}

		rec, err := parseRIB(h, body, is6, addPath)
		if err != nil {
			r.malformed(err)
			continue
		}
		if rec.Dropped > 0 {
			r.stats.Dropped += rec.Dropped
			r.log.Debugw("dropping unframed entries", "prefix", rec.Prefix.String(), "dropped", rec.Dropped, "err", rec.DropErr)
		}

		r.stats.Records++
		if is6 {
			metrics.RecordsTotal.WithLabelValues("rib_ipv6").Inc()
		} else {
			metrics.RecordsTotal.WithLabelValues("rib_ipv4").Inc()
		}
		return rec, nil
	}
}

func (r *Reader) endOfStream(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		r.stats.Truncated = true
		r.log.Warnw("dump ends inside a record", "records", r.stats.Records)
		return io.EOF
	}
	return err
}

func (r *Reader) skip(kind string) {
	r.stats.Skipped++
	metrics.RecordsTotal.WithLabelValues(kind).Inc()
}

func (r *Reader) malformed(err error) {
	r.stats.Malformed++
	metrics.RecordsTotal.WithLabelValues("malformed").Inc()
	r.log.Debugw("skipping malformed record", "err", err)
}

func (r *Reader) peerIndex(h *mrt.MRTHeader, body []byte) {
	metrics.RecordsTotal.WithLabelValues("peer_index").Inc()
	msg, err := parseBody(h, body)
	if err != nil {
		r.malformed(err)
		return
	}
	if pit, ok := msg.Body.(*mrt.PeerIndexTable); ok {
		r.stats.Peers += len(pit.Peers)
		r.log.Debugw("peer index table", "collector", pit.CollectorBgpId.String(), "view", pit.ViewName, "peers", len(pit.Peers))
	}
}

// parseBody guards against panics inside the third-party body decoders on
// hostile input.
func parseBody(h *mrt.MRTHeader, body []byte) (msg *mrt.MRTMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			msg, err = nil, fmt.Errorf("decode %d/%d body: %v", h.Type, h.SubType, p)
		}
	}()
	return mrt.ParseMRTBody(h, body)
}

// parseRIB walks a RIB record body. gobgp decodes the prefix while the
// entries are framed here, so every attribute block reaches the caller as
// stored and a bad entry costs only itself.
func parseRIB(h *mrt.MRTHeader, body []byte, is6, addPath bool) (*Record, error) {
	c := aspath.NewCursor(body)
	if _, err := c.ReadUint32(); err != nil {
		return nil, fmt.Errorf("sequence number: %w", err)
	}
	pfx, err := decodePrefix(c, body, is6)
	if err != nil {
		return nil, err
	}
	count, err := c.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("prefix %s entry count: %w", pfx, err)
	}

	rec := &Record{
		Time:    time.Unix(int64(h.Timestamp), 0).UTC(),
		Prefix:  pfx,
		Entries: make([]Entry, 0, count),
	}
	for i := 0; i < int(count); i++ {
		e, err := readEntry(c, body, addPath)
		if err != nil {
			rec.Dropped = int(count) - i
			rec.DropErr = fmt.Errorf("prefix %s entry %d: %w", pfx, i, err)
			break
		}
		rec.Entries = append(rec.Entries, e)
	}
	return rec, nil
}

func decodePrefix(c *aspath.Cursor, body []byte, is6 bool) (prefix.Prefix, error) {
	var afi uint16 = bgp.AFI_IP
	maxBits := 32
	if is6 {
		afi, maxBits = bgp.AFI_IP6, 128
	}

	start := c.Offset()
	bits, err := c.Advance()
	if err != nil {
		return prefix.Prefix{}, fmt.Errorf("prefix length: %w", err)
	}
	if int(bits) > maxBits {
		return prefix.Prefix{}, fmt.Errorf("prefix length %d exceeds %d", bits, maxBits)
	}
	n := (int(bits) + 7) / 8
	if err := c.Skip(n); err != nil {
		return prefix.Prefix{}, fmt.Errorf("prefix: %w", err)
	}

	nlri, err := bgp.NewPrefixFromRouteFamily(afi, bgp.SAFI_UNICAST)
	if err != nil {
		return prefix.Prefix{}, err
	}
	if err := nlri.DecodeFromBytes(body[start : start+1+n]); err != nil {
		return prefix.Prefix{}, fmt.Errorf("prefix: %w", err)
	}
	var ip net.IP
	switch p := nlri.(type) {
	case *bgp.IPAddrPrefix:
		ip = p.Prefix.To4()
	case *bgp.IPv6AddrPrefix:
		ip = p.Prefix.To16()
	default:
		return prefix.Prefix{}, fmt.Errorf("unsupported prefix %T", nlri)
	}
	if ip == nil {
		return prefix.Prefix{}, errors.New("prefix without address")
	}
	return prefix.FromBinary(ip[:n], bits, is6)
}

// readEntry frames one RIB entry: peer index, originated time, the path
// identifier for ADD-PATH subtypes, then the length-prefixed attributes.
func readEntry(c *aspath.Cursor, body []byte, addPath bool) (Entry, error) {
	var e Entry
	var err error
	if e.PeerIndex, err = c.ReadUint16(); err != nil {
		return e, err
	}
	if err := c.Skip(4); err != nil {
		return e, err
	}
	if addPath {
		if e.PathID, err = c.ReadUint32(); err != nil {
			return e, err
		}
	}
	n, err := c.ReadUint16()
	if err != nil {
		return e, err
	}
	start := c.Offset()
	if err := c.Skip(int(n)); err != nil {
		return e, fmt.Errorf("attributes declare %d bytes, %d left: %w", n, c.Remaining(), err)
	}
	e.Attrs = body[start : start+int(n) : start+int(n)]
	return e, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
