package restock

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeed(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

type mockCatalog struct {
	ids []string
	err error
}

func (m *mockCatalog) ListActiveIDs(context.Context) ([]string, error) { return m.ids, m.err }

type mockApplier struct {
	got   map[string]int
	calls int
	err   error
}

func (m *mockApplier) Restock(_ context.Context, increments map[string]int) (int, error) {
	m.calls++
	m.got = increments
	return len(increments), m.err
}

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		line    string
		id      string
		qty     int
		wantErr bool
	}{
		{line: "p1,5", id: "p1", qty: 5},
		{line: " p2 , 10 ", id: "p2", qty: 10},
		{line: "p1", wantErr: true},
		{line: ",5", wantErr: true},
		{line: "p1,abc", wantErr: true},
		{line: "p1,0", wantErr: true},
		{line: "p1,-3", wantErr: true},
	} {
		t.Run(tc.line, func(t *testing.T) {
			id, qty, err := ParseLine(tc.line)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.id, id)
			assert.Equal(t, tc.qty, qty)
		})
	}
}

func TestAggregate(t *testing.T) {
	a := writeFeed(t, "a.gz", "# header", "p1,5", "p2,1", "", "garbage", "p1,2")
	b := writeFeed(t, "b.gz", "p2,4", "ghost,100", "p3,1")

	totals, stats, err := Aggregate(context.Background(), []string{a, b}, NewFilter([]string{"p1", "p2", "p3"}))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"p1": 7, "p2": 5, "p3": 1}, totals)
	assert.Equal(t, int64(7), stats.Lines)
	assert.Equal(t, int64(1), stats.Malformed)
	assert.Equal(t, int64(1), stats.Unknown)
	assert.Equal(t, 3, stats.Products)
}

func TestAggregate_MissingFile(t *testing.T) {
	_, _, err := Aggregate(context.Background(), []string{filepath.Join(t.TempDir(), "nope.gz")}, NewFilter(nil))
	require.Error(t, err)
}

func TestAggregate_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.gz")
	require.NoError(t, os.WriteFile(path, []byte("p1,1\n"), 0o600))

	_, _, err := Aggregate(context.Background(), []string{path}, NewFilter([]string{"p1"}))
	require.Error(t, err)
}

func TestImport(t *testing.T) {
	feed := writeFeed(t, "feed.gz", "p1,3", "p2,2", "p1,1")
	applier := &mockApplier{}

	stats, err := Import(context.Background(), &mockCatalog{ids: []string{"p1", "p2"}}, applier, []string{feed})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 4, "p2": 2}, applier.got)
	assert.Equal(t, 2, stats.Updated)
}

type mockCache struct {
	invalidated []string
	err         error
}

func (m *mockCache) Invalidate(_ context.Context, ids ...string) error {
	m.invalidated = append(m.invalidated, ids...)
	return m.err
}

func TestImport_InvalidatesCache(t *testing.T) {
	feed := writeFeed(t, "feed.gz", "p2,2", "p1,3", "p2,1")
	cache := &mockCache{}

	_, err := Import(context.Background(), &mockCatalog{ids: []string{"p1", "p2"}}, &mockApplier{}, []string{feed}, WithCache(cache))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, cache.invalidated)
}

func TestImport_CacheFailureKeepsResult(t *testing.T) {
	feed := writeFeed(t, "feed.gz", "p1,3")
	cache := &mockCache{err: errors.New("redis down")}

	stats, err := Import(context.Background(), &mockCatalog{ids: []string{"p1"}}, &mockApplier{}, []string{feed}, WithCache(cache))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, []string{"p1"}, cache.invalidated)
}

func TestImport_NoInvalidationOnFailure(t *testing.T) {
	feed := writeFeed(t, "feed.gz", "p1,3")
	cache := &mockCache{}

	_, err := Import(context.Background(), &mockCatalog{ids: []string{"p1"}}, &mockApplier{err: errors.New("tx aborted")}, []string{feed}, WithCache(cache))
	require.Error(t, err)
	assert.Empty(t, cache.invalidated)
}

func TestImport_NothingToApply(t *testing.T) {
	feed := writeFeed(t, "feed.gz", "ghost,3")
	applier := &mockApplier{}

	stats, err := Import(context.Background(), &mockCatalog{ids: []string{"p1"}}, applier, []string{feed})
	require.NoError(t, err)
	assert.Zero(t, applier.calls)
	assert.Equal(t, int64(1), stats.Unknown)
}

func TestImport_Errors(t *testing.T) {
	feed := writeFeed(t, "feed.gz", "p1,3")

	_, err := Import(context.Background(), &mockCatalog{err: errors.New("db down")}, &mockApplier{}, []string{feed})
	require.ErrorContains(t, err, "list catalog")

	_, err = Import(context.Background(), &mockCatalog{ids: []string{"p1"}}, &mockApplier{err: errors.New("tx aborted")}, []string{feed})
	require.ErrorContains(t, err, "apply increments")
}
