package store

import (
	"database/sql"
	"errors"
	"time"
)

// MediaCacheEntry is an indexed file of the media cache.
type MediaCacheEntry struct {
	Sid         string
	LocalPath   string
	ContentType string
	Size        int64
	StoredAt    time.Time
}

// MediaCacheIndex tracks the files of the media cache. Writes go straight to
// sqlite; the index is not part of the observable tables.
type MediaCacheIndex struct {
	db *sql.DB
}

// NewMediaCacheIndex creates an index over db.
func NewMediaCacheIndex(db *sql.DB) *MediaCacheIndex {
	return &MediaCacheIndex{db: db}
}

// Put stores or updates an entry.
func (s *MediaCacheIndex) Put(e MediaCacheEntry) error {
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO media_cache (sid, local_path, content_type, size, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET
			local_path = excluded.local_path,
			content_type = excluded.content_type,
			size = excluded.size,
			stored_at = excluded.stored_at
	`, e.Sid, e.LocalPath, nullString(e.ContentType), e.Size, nullTime(storedAt))
	return err
}

// Get returns the entry of sid. ok is false when the sid is not indexed.
func (s *MediaCacheIndex) Get(sid string) (e MediaCacheEntry, ok bool, err error) {
	var contentType sql.NullString
	var storedAt sql.NullInt64
	err = s.db.QueryRow(`
		SELECT sid, local_path, content_type, size, stored_at
		FROM media_cache WHERE sid = ?
	`, sid).Scan(&e.Sid, &e.LocalPath, &contentType, &e.Size, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaCacheEntry{}, false, nil
	}
	if err != nil {
		return MediaCacheEntry{}, false, err
	}
	e.ContentType = contentType.String
	e.StoredAt = parseNullTime(storedAt)
	return e, true, nil
}

// Delete removes the entry of sid.
func (s *MediaCacheIndex) Delete(sid string) error {
	_, err := s.db.Exec(`DELETE FROM media_cache WHERE sid = ?`, sid)
	return err
}

// Clear removes every entry.
func (s *MediaCacheIndex) Clear() error {
	_, err := s.db.Exec(`DELETE FROM media_cache`)
	return err
}

// Usage returns the number of entries and their total size.
func (s *MediaCacheIndex) Usage() (count int, size int64, err error) {
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM media_cache`).Scan(&count, &size)
	return count, size, err
}
