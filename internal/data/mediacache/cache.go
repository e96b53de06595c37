// Package mediacache stores downloaded and sent attachments on disk, keyed
// by media sid.
//
// Files are written to a temporary file in the cache directory, synced and
// renamed into place, so a reader either sees a complete file or none.
package mediacache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/store"
	"chatcache/internal/utils/media"
)

// ErrTooLarge is returned when content exceeds the size limit.
var ErrTooLarge = errors.New("media exceeds size limit")

// Index records cache entries. *store.MediaCacheIndex implements it.
type Index interface {
	Put(e store.MediaCacheEntry) error
	Get(sid string) (store.MediaCacheEntry, bool, error)
	Delete(sid string) error
	Clear() error
}

// Entry is a cached file.
type Entry struct {
	Sid         string
	Path        string
	ContentType string
	Size        int64
}

// Cache is a content-addressed file cache.
type Cache struct {
	dir     string
	index   Index
	maxSize int64
	log     waLog.Logger
}

// New creates the cache under dir. index may be nil. maxSize of zero means
// unlimited.
func New(dir string, index Index, maxSize int64, log waLog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media cache directory: %w", err)
	}
	return &Cache{dir: dir, index: index, maxSize: maxSize, log: log.Sub("MediaCache")}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

func shard(sid string) string {
	sum := sha256.Sum256([]byte(sid))
	return hex.EncodeToString(sum[:1])
}

func baseName(sid string) string {
	return media.SanitizeFilename(sid)
}

// Path returns where sid is stored for a content type and filename.
func (c *Cache) Path(sid, contentType, filename string) string {
	return filepath.Join(c.dir, shard(sid), baseName(sid)+media.Extension(contentType, filename))
}

// Lookup returns the cached entry of sid. An indexed entry whose file is
// gone is dropped from the index and reported as a miss.
func (c *Cache) Lookup(sid string) (Entry, bool) {
	if sid == "" {
		return Entry{}, false
	}
	if c.index != nil {
		e, ok, err := c.index.Get(sid)
		if err != nil {
			c.log.Warnf("Failed to read media cache index for %s: %v", sid, err)
		} else if ok {
			info, err := os.Stat(e.LocalPath)
			if err == nil && info.Mode().IsRegular() {
				return Entry{Sid: sid, Path: e.LocalPath, ContentType: e.ContentType, Size: info.Size()}, true
			}
			if err := c.index.Delete(sid); err != nil {
				c.log.Warnf("Failed to drop stale media cache entry %s: %v", sid, err)
			}
			return Entry{}, false
		}
	}
	return c.scan(sid)
}

// scan looks for sid on disk regardless of extension.
func (c *Cache) scan(sid string) (Entry, bool) {
	dir := filepath.Join(c.dir, shard(sid))
	base := baseName(sid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Entry{}, false
	}
	for _, de := range entries {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if name != base && strings.TrimSuffix(name, filepath.Ext(name)) != base {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		return Entry{Sid: sid, Path: filepath.Join(dir, name), Size: info.Size()}, true
	}
	return Entry{}, false
}

// Has reports whether sid is cached.
func (c *Cache) Has(sid string) bool {
	_, ok := c.Lookup(sid)
	return ok
}

// Open opens the cached file of sid.
func (c *Cache) Open(sid string) (*os.File, error) {
	e, ok := c.Lookup(sid)
	if !ok {
		return nil, fs.ErrNotExist
	}
	return os.Open(e.Path)
}

// Put stores the content written by fill under sid. On any error nothing
// is left in the cache.
func (c *Cache) Put(sid, contentType, filename string, fill func(w io.Writer) error) (Entry, error) {
	if sid == "" {
		return Entry{}, errors.New("media sid is required")
	}
	path := c.Path(sid, contentType, filename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+baseName(sid)+"-*")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := &limitedWriter{w: tmp, limit: c.maxSize}
	if err := fill(w); err != nil {
		return Entry{}, err
	}
	if err := tmp.Sync(); err != nil {
		return Entry{}, fmt.Errorf("failed to sync media file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("failed to close media file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Entry{}, fmt.Errorf("failed to move media file into cache: %w", err)
	}
	committed = true

	e := Entry{Sid: sid, Path: path, ContentType: contentType, Size: w.n}
	if c.index != nil {
		if err := c.index.Put(store.MediaCacheEntry{
			Sid:         sid,
			LocalPath:   path,
			ContentType: contentType,
			Size:        w.n,
		}); err != nil {
			c.log.Warnf("Failed to index media %s: %v", sid, err)
		}
	}
	c.log.Debugf("Cached media %s (%d bytes)", sid, w.n)
	return e, nil
}

// PutReader stores r under sid.
func (c *Cache) PutReader(sid, contentType, filename string, r io.Reader) (Entry, error) {
	return c.Put(sid, contentType, filename, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// Delete removes sid from the cache. Missing entries are not an error.
func (c *Cache) Delete(sid string) error {
	if e, ok := c.Lookup(sid); ok {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if c.index != nil {
		return c.index.Delete(sid)
	}
	return nil
}

// Purge removes every cached file.
func (c *Cache) Purge() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, de.Name())); err != nil {
			return err
		}
	}
	if c.index != nil {
		return c.index.Clear()
	}
	return nil
}

// Usage returns the number of cached files and their total size.
func (c *Cache) Usage() (count int, size int64, err error) {
	err = filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		size += info.Size()
		return nil
	})
	return count, size, err
}

type limitedWriter struct {
	w     io.Writer
	limit int64
	n     int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.limit > 0 && l.n+int64(len(p)) > l.limit {
		return 0, ErrTooLarge
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}
