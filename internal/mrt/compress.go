package mrt

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the container a dump is stored in.
type Compression int

const (
	None Compression = iota
	Gzip
	Bzip2
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff identifies the compression from the first bytes of a stream.
func Sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return Gzip
	case bytes.HasPrefix(head, magicBzip2):
		return Bzip2
	case bytes.HasPrefix(head, magicZstd):
		return Zstd
	default:
		return None
	}
}

// Decompress wraps r in the decompressor matching its magic bytes. The file
// name is never consulted.
func Decompress(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, None, fmt.Errorf("peek header: %w", err)
	}

	kind := Sniff(head)
	switch kind {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, kind, fmt.Errorf("gzip: %w", err)
		}
		return zr, kind, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(br)), kind, nil
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, kind, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), kind, nil
	default:
		return io.NopCloser(br), kind, nil
	}
}
