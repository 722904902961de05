package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/gustycube/asmap/internal/aspath"
	"github.com/gustycube/asmap/internal/collector"
	"github.com/gustycube/asmap/internal/mrt/mrttest"
	"github.com/gustycube/asmap/internal/prefix"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// Two collectors seeing overlapping prefixes.
func fixtureDir(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	a := writeFile(t, dir, "rrc00-latest-bview.gz", mrttest.Gzip(mrttest.Dump(
		mrttest.PeerIndexTable(2),
		mrttest.RIB(0, "1.0.139.0/24",
			mrttest.Attrs(2497, 38040, 23969),
			mrttest.Attrs(25152, 6939, 4766, 38040, 23969),
		),
		mrttest.RIB(1, "193.0.0.0/21",
			mrttest.Attrs(2497, 3333),
			// An entry without attributes is dropped, not fatal.
			[]byte{},
		),
	)))
	b := writeFile(t, dir, "rrc01-latest-bview.zst", mrttest.Zstd(mrttest.Dump(
		mrttest.RIB(0, "1.0.139.0/24",
			mrttest.Attrs(4777, 6939, 6939, 4766, 38040, 23969),
			mrttest.Attrs(2497, 38040, 23969),
		),
		mrttest.RIB(1, "2001:318::/32", mrttest.Attrs(6939, 2914, 7660)),
	)))
	c := writeFile(t, dir, "extra.paths", []byte("1.0.6.0/24|2497 4826 38803 56203\nnot a route\n"))
	return dir, []string{a, b, c}
}

func TestFilesMergesAllInputs(t *testing.T) {
	_, files := fixtureDir(t)

	var mu sync.Mutex
	var seen []FileStats
	var fileErrs []error
	in, err := New(Options{Workers: 2, CacheSize: 16, ContinueOnError: true, OnFile: func(st FileStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
		if err != nil {
			fileErrs = append(fileErrs, err)
		}
	}}, nil)
	require.NoError(t, err)

	c, err := in.Files(context.Background(), files, nil)
	require.NoError(t, err)
	require.Len(t, seen, 3)
	require.Empty(t, fileErrs)

	require.Equal(t, 4, c.Len())
	require.ElementsMatch(t, []aspath.Path{
		{2497, 38040, 23969},
		{25152, 6939, 4766, 38040, 23969},
		{4777, 6939, 4766, 38040, 23969},
	}, c.Paths(prefix.MustParse("1.0.139.0/24")))
	require.Len(t, c.Paths(prefix.MustParse("193.0.0.0/21")), 1)
	require.Len(t, c.Paths(prefix.MustParse("1.0.6.0/24")), 1)

	failed := 0
	for _, st := range seen {
		failed += st.Failed
	}
	require.Equal(t, 2, failed, "one empty entry and one malformed line")
}

func TestFileStats(t *testing.T) {
	_, files := fixtureDir(t)
	in, err := New(Options{}, nil)
	require.NoError(t, err)

	c, st, err := in.File(context.Background(), files[0], nil)
	require.NoError(t, err)
	require.Equal(t, 2, st.Records)
	require.Equal(t, 4, st.Entries)
	require.Equal(t, 1, st.Failed)
	require.Equal(t, 1, st.Reasons["missing_attribute"])
	require.Equal(t, 3, st.Paths)
	require.Equal(t, 3, c.PathCount())
}

func TestFilesWithFilter(t *testing.T) {
	_, files := fixtureDir(t)
	in, err := New(Options{Workers: 3}, nil)
	require.NoError(t, err)

	shard := collector.ShardRange{Lo: 0, Hi: 63}
	c, err := in.Files(context.Background(), files, shard.Contains)
	require.NoError(t, err)
	require.Equal(t, 3, c.Len(), "193.0.0.0/21 belongs to another shard")
	require.Empty(t, c.Paths(prefix.MustParse("193.0.0.0/21")))
}

func TestFilesContinueOnError(t *testing.T) {
	dir, files := fixtureDir(t)
	broken := writeFile(t, dir, "broken.gz", []byte{0x1f, 0x8b, 0, 0, 0, 0, 0, 0})
	missing := filepath.Join(dir, "missing.gz")
	files = append(files, broken, missing)

	in, err := New(Options{Workers: 2, ContinueOnError: true}, nil)
	require.NoError(t, err)

	c, err := in.Files(context.Background(), files, nil)
	require.Error(t, err)
	require.NotNil(t, c)
	require.Equal(t, 4, c.Len(), "good files still count")

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	var failedPaths []string
	for _, e := range errs {
		var fe *FileError
		require.True(t, errors.As(e, &fe))
		failedPaths = append(failedPaths, fe.Path)
	}
	require.ElementsMatch(t, []string{broken, missing}, failedPaths)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilesFailFast(t *testing.T) {
	dir, files := fixtureDir(t)
	files = append(files, filepath.Join(dir, "missing.gz"))

	in, err := New(Options{Workers: 1}, nil)
	require.NoError(t, err)

	c, err := in.Files(context.Background(), files, nil)
	require.Nil(t, c)
	var fe *FileError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, files[3], fe.Path)
}

func TestDecodeCache(t *testing.T) {
	in, err := New(Options{CacheSize: 4}, nil)
	require.NoError(t, err)

	attrs := mrttest.Attrs(2497, 38040, 23969)
	for i := 0; i < 3; i++ {
		p, err := in.decode(attrs)
		require.NoError(t, err)
		require.Equal(t, aspath.Path{2497, 38040, 23969}, p)
	}
	require.Equal(t, 1, in.cache.Len())

	// Failures are cached too.
	_, err = in.decode([]byte{0x40, 1, 1, 0})
	require.ErrorIs(t, err, aspath.ErrNoAsPathInAttributePath)
	_, err = in.decode([]byte{0x40, 1, 1, 0})
	require.ErrorIs(t, err, aspath.ErrNoAsPathInAttributePath)
	require.Equal(t, 2, in.cache.Len())
}

func TestStrictTypeCodes(t *testing.T) {
	dir := t.TempDir()
	attrs := append([]byte{0xC0, 99, 1, 0}, mrttest.Attrs(2497, 13335)...)
	path := writeFile(t, dir, "unknown.mrt", mrttest.RIB(0, "1.1.1.0/24", attrs))

	lenient, err := New(Options{}, nil)
	require.NoError(t, err)
	c, _, err := lenient.File(context.Background(), path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, c.PathCount())

	strict, err := New(Options{Strict: true}, nil)
	require.NoError(t, err)
	c, st, err := strict.File(context.Background(), path, nil)
	require.NoError(t, err)
	require.Zero(t, c.PathCount())
	require.Equal(t, 1, st.Reasons["unknown_type_code"])
}

func TestFileKeepsSiblingEntries(t *testing.T) {
	// 1.0.6.0/24 holds one good entry, then one whose attribute length runs
	// past the end of the record.
	good := mrttest.Attrs(2497, 4826, 38803, 56203)
	body := binary.BigEndian.AppendUint32(nil, 2)
	body = append(body, 24, 1, 0, 6)
	body = binary.BigEndian.AppendUint16(body, 2)
	body = binary.BigEndian.AppendUint16(body, 0)
	body = binary.BigEndian.AppendUint32(body, mrttest.Timestamp)
	body = binary.BigEndian.AppendUint16(body, uint16(len(good)))
	body = append(body, good...)
	body = binary.BigEndian.AppendUint16(body, 1)
	body = binary.BigEndian.AppendUint32(body, mrttest.Timestamp)
	body = binary.BigEndian.AppendUint16(body, 64)

	path := writeFile(t, t.TempDir(), "mixed.mrt", mrttest.Dump(
		mrttest.PeerIndexTable(4),
		mrttest.RIB(0, "1.0.139.0/24",
			mrttest.Attrs(2497, 38040, 23969),
			mrttest.AttrsSegment(5, 6939, 23969),
			mrttest.AttrsSegment(2),
			[]byte{0x40, 1, 1, 0, 0x40, 2, 10, 2, 1},
		),
		mrttest.RIB(1, "193.0.0.0/21",
			mrttest.AttrsSegment(3, 2497, 3333),
			mrttest.Attrs(2497, 3333),
		),
		mrttest.Record(mrttest.TypeTableDumpV2, mrttest.SubtypeRIBIPv4Unicast, body),
	))

	in, err := New(Options{CacheSize: 16}, nil)
	require.NoError(t, err)
	c, st, err := in.File(context.Background(), path, nil)
	require.NoError(t, err)

	require.Equal(t, []aspath.Path{{2497, 38040, 23969}}, c.Paths(prefix.MustParse("1.0.139.0/24")))
	require.Equal(t, []aspath.Path{{2497, 3333}}, c.Paths(prefix.MustParse("193.0.0.0/21")))
	require.Equal(t, []aspath.Path{{2497, 4826, 38803, 56203}}, c.Paths(prefix.MustParse("1.0.6.0/24")))

	require.Equal(t, 3, st.Records)
	require.Equal(t, 8, st.Entries)
	require.Equal(t, 5, st.Failed)
	require.Equal(t, map[string]int{
		"unknown_segment": 2,
		"no_as_path":      1,
		"truncated":       2,
	}, st.Reasons)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.gz", nil)
	writeFile(t, dir, "a.gz", nil)
	writeFile(t, dir, ".rrc00-latest-bview.gz.part", nil)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, filepath.Join(dir, "nested"), "c.gz", nil)

	got, err := ExpandInputs([]string{dir, filepath.Join(dir, "a.gz")})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.gz"), filepath.Join(dir, "b.gz")}, got)

	_, err = ExpandInputs([]string{filepath.Join(dir, "nope")})
	require.ErrorIs(t, err, os.ErrNotExist)

	empty := t.TempDir()
	_, err = ExpandInputs([]string{empty})
	require.ErrorIs(t, err, ErrNoInputs)
}
