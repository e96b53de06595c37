package mediacache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/store"
)

func newCache(t *testing.T, maxSize int64) (*Cache, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), waLog.Noop, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c, err := New(filepath.Join(t.TempDir(), "media"), s.MediaCache, maxSize, waLog.Noop)
	require.NoError(t, err)
	return c, s
}

func TestPutAndLookup(t *testing.T) {
	c, _ := newCache(t, 0)

	e, err := c.PutReader("ME1", "image/png", "cat.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), e.Size)
	assert.Equal(t, ".png", filepath.Ext(e.Path))
	assert.True(t, strings.HasPrefix(e.Path, c.Dir()))

	got, ok := c.Lookup("ME1")
	require.True(t, ok)
	assert.Equal(t, e.Path, got.Path)
	assert.Equal(t, "image/png", got.ContentType)

	f, err := c.Open("ME1")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestFailedPutLeavesNothing(t *testing.T) {
	c, _ := newCache(t, 0)
	boom := errors.New("connection reset")

	_, err := c.Put("ME2", "image/png", "", func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Has("ME2"))

	count, _, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSizeLimit(t *testing.T) {
	c, _ := newCache(t, 4)
	_, err := c.PutReader("ME3", "text/plain", "", strings.NewReader("too long"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, c.Has("ME3"))
}

func TestStaleIndexEntryIsAMiss(t *testing.T) {
	c, s := newCache(t, 0)
	e, err := c.PutReader("ME4", "image/png", "", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(e.Path))

	assert.False(t, c.Has("ME4"))
	_, ok, err := s.MediaCache.Get("ME4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithoutIndexScansDisk(t *testing.T) {
	c, err := New(t.TempDir(), nil, 0, waLog.Noop)
	require.NoError(t, err)

	_, err = c.PutReader("ME5", "audio/ogg; codecs=opus", "", strings.NewReader("ogg"))
	require.NoError(t, err)
	e, ok := c.Lookup("ME5")
	require.True(t, ok)
	assert.Equal(t, ".ogg", filepath.Ext(e.Path))
}

func TestDeletePurgeUsage(t *testing.T) {
	c, s := newCache(t, 0)
	for _, sid := range []string{"ME6", "ME7", "ME8"} {
		_, err := c.PutReader(sid, "text/plain", "", strings.NewReader("abc"))
		require.NoError(t, err)
	}
	count, size, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(9), size)

	require.NoError(t, c.Delete("ME6"))
	require.NoError(t, c.Delete("ME6"))
	assert.False(t, c.Has("ME6"))

	require.NoError(t, c.Purge())
	count, _, err = c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	n, _, err := s.MediaCache.Usage()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSidIsSanitized(t *testing.T) {
	c, _ := newCache(t, 0)
	e, err := c.PutReader("../../etc/passwd", "", "", strings.NewReader("x"))
	require.NoError(t, err)
	rel, err := filepath.Rel(c.Dir(), e.Path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."))
}
