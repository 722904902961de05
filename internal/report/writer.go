// Package report writes bottleneck results to files, streams and Redis.
package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gustycube/asmap/internal/bottleneck"
)

// Format represents the output format
type Format string

const (
	// FormatText is the canonical "ip/mask|asn" line format.
	FormatText Format = "text"
	// FormatLegacy is "ip/mask ASasn".
	FormatLegacy Format = "legacy"
	FormatJSONL  Format = "jsonl"
	FormatCSV    Format = "csv"
)

// ParseFormat maps a configured name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "text", "txt":
		return FormatText, nil
	case "legacy":
		return FormatLegacy, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", name)
	}
}

// Extension is the file extension used for reports in this format.
func (f Format) Extension() string {
	switch f {
	case FormatJSONL:
		return ".jsonl"
	case FormatCSV:
		return ".csv"
	default:
		return ".txt"
	}
}

// Writer handles formatted output
type Writer struct {
	format    Format
	bw        *bufio.Writer
	csvWriter *csv.Writer
	mu        sync.Mutex
	hasHeader bool
	lines     int
}

// NewWriter creates a new report writer
func NewWriter(format string, w io.Writer) (*Writer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	writer := &Writer{
		format: f,
		bw:     bufio.NewWriterSize(w, 64*1024),
	}
	if f == FormatCSV {
		writer.csvWriter = csv.NewWriter(writer.bw)
	}
	return writer, nil
}

// WriteEntry writes one prefix line
func (w *Writer) WriteEntry(e bottleneck.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines++

	switch w.format {
	case FormatText:
		_, err := fmt.Fprintf(w.bw, "%s|%d\n", e.Prefix, e.ASN)
		return err

	case FormatLegacy:
		_, err := fmt.Fprintf(w.bw, "%s AS%d\n", e.Prefix, e.ASN)
		return err

	case FormatJSONL:
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := w.bw.Write(data); err != nil {
			return err
		}
		return w.bw.WriteByte('\n')

	case FormatCSV:
		if !w.hasHeader {
			if err := w.csvWriter.Write([]string{"prefix", "asn"}); err != nil {
				return err
			}
			w.hasHeader = true
		}
		return w.csvWriter.Write([]string{e.Prefix.String(), strconv.FormatUint(uint64(e.ASN), 10)})

	default:
		return fmt.Errorf("unsupported format: %s", w.format)
	}
}

// WriteResult writes every entry of res in sorted order and flushes.
func (w *Writer) WriteResult(res bottleneck.Result) error {
	for _, e := range res.Sorted() {
		if err := w.WriteEntry(e); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Lines is the number of entries written so far.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Flush flushes any buffered data
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.csvWriter != nil {
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}
