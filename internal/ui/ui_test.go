package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProgressBar(t *testing.T) {
	pb := NewProgressBar(4, "Ingesting dumps")
	pb.Add(1)
	require.Contains(t, pb.String(), "1/4 (25.0%)")

	pb.Add(10)
	require.Contains(t, pb.String(), "4/4 (100.0%)")

	pb.Finish()
	require.Contains(t, pb.String(), "[DONE in")

	empty := NewProgressBar(0, "nothing")
	require.Contains(t, empty.String(), "0/0 (100.0%)")
}

func TestStats(t *testing.T) {
	s := NewStats(3)
	s.FileDone(10, 20, 1, true)
	s.FileDone(0, 0, 0, false)

	done, failed, total := s.Progress()
	require.Equal(t, 2, done)
	require.Equal(t, 1, failed)
	require.Equal(t, 3, total)

	require.Contains(t, s.LogAndReset(), "2/3 files (1 failed), 10 records, 20 entries (1 rejected)")
	require.False(t, s.ShouldLog())
	require.Contains(t, s.Bar(), "2/3")
	require.Empty(t, NewStats(0).Bar())
}

func TestInteractiveLogger(t *testing.T) {
	var buf bytes.Buffer
	il := NewInteractiveLogger(zap.NewNop().Sugar(), 2, true)
	il.output = &buf
	il.showProgress = true

	il.FileDone("rrc00-latest-bview.gz", 5, 9, 0, nil)
	require.True(t, strings.HasSuffix(buf.String(), "\r"))
	require.Contains(t, buf.String(), "1/2")

	il.FileDone("broken.gz", 0, 0, 0, errors.New("unexpected EOF"))
	il.Finish()
	require.True(t, strings.HasSuffix(buf.String(), "\n"))

	done, failed, _ := il.Stats().Progress()
	require.Equal(t, 2, done)
	require.Equal(t, 1, failed)
}
