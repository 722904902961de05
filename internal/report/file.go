package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gustycube/asmap/internal/bottleneck"
)

// FileName returns the report name for a run finished at t.
func FileName(t time.Time, f Format) string {
	return fmt.Sprintf("bottleneck.%d%s", t.Unix(), f.Extension())
}

// Write sends res to out and returns where it went. An empty out or "-"
// means stdout. An existing directory, or a path ending in a separator,
// receives a file named by FileName. Any other out is used as the file path.
// Files are written under a temporary name and renamed once complete.
func Write(out, format string, res bottleneck.Result, now time.Time, stdout io.Writer) (string, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return "", err
	}

	if out == "" || out == "-" {
		w, err := NewWriter(string(f), stdout)
		if err != nil {
			return "", err
		}
		return "stdout", w.WriteResult(res)
	}

	dest := out
	if isDirTarget(out) {
		dest = filepath.Join(out, FileName(now, f))
	}
	if err := WriteFile(dest, string(f), res); err != nil {
		return "", err
	}
	return dest, nil
}

// WriteFile writes res to path through a temporary file in the same
// directory, so an interrupted run never leaves a partial report under the
// final name.
func WriteFile(path, format string, res bottleneck.Result) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bottleneck-*.tmp")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w, err := NewWriter(format, tmp)
	if err != nil {
		return err
	}
	if err := w.WriteResult(res); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

func isDirTarget(out string) bool {
	if strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(filepath.Separator)) {
		return true
	}
	info, err := os.Stat(out)
	return err == nil && info.IsDir()
}
