// Package store is the entity store: one in-memory table per entity kind
// backed by sqlite through a coalescing write scheduler.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/infra/metrics"
)

// Options tunes persistence.
type Options struct {
	FlushDelay   time.Duration
	FlushRetries int
	Metrics      *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.FlushDelay <= 0 {
		o.FlushDelay = 250 * time.Millisecond
	}
	if o.FlushRetries <= 0 {
		o.FlushRetries = 5
	}
	return o
}

// Store groups the entity tables.
type Store struct {
	Conversations *Conversations
	Messages      *Messages
	Participants  *Participants
	Media         *MediaTable

	// MediaCache is nil for memory stores.
	MediaCache *MediaCacheIndex

	db      *sql.DB
	sched   *scheduler
	log     waLog.Logger
	metrics *metrics.Metrics
	cancels []func()
}

// Stats holds row counts.
type Stats struct {
	Conversations int
	Messages      int
	Participants  int
	Media         int
	PendingWrites int
}

func newTables(log waLog.Logger, m *metrics.Metrics) *Store {
	s := &Store{
		Conversations: NewTable[entity.Conversation, entity.ConversationPatch](conversationSchema()),
		Messages:      NewTable[entity.Message, entity.MessagePatch](messageSchema()),
		Participants:  NewTable[entity.Participant, entity.ParticipantPatch](participantSchema()),
		Media:         NewTable[entity.Media, entity.MediaPatch](mediaSchema()),
		log:           log,
		metrics:       m,
	}
	s.cancels = append(s.cancels,
		countChanges(s.Conversations, m),
		countChanges(s.Messages, m),
		countChanges(s.Participants, m),
		countChanges(s.Media, m),
	)
	return s
}

func countChanges[E any, P Patch[E]](t *Table[E, P], m *metrics.Metrics) func() {
	if m == nil {
		return func() {}
	}
	kind := string(t.Kind())
	_, cancel := t.Watch(func(ch Change[E]) {
		m.Upserted(kind, len(ch.Upserted))
		m.Deleted(kind, len(ch.Deleted))
	})
	return cancel
}

// OpenMemory creates a store without persistence.
func OpenMemory(log waLog.Logger, opts Options) *Store {
	return newTables(log.Sub("Store"), opts.Metrics)
}

// Open opens or creates the sqlite database at path and loads every table.
func Open(path string, log waLog.Logger, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s := newTables(log.Sub("Store"), opts.Metrics)
	s.db = db
	s.MediaCache = NewMediaCacheIndex(db)

	if err := loadTable(db, s.Conversations, conversationCodec); err != nil {
		db.Close()
		return nil, err
	}
	if err := loadTable(db, s.Messages, messageCodec); err != nil {
		db.Close()
		return nil, err
	}
	if err := loadTable(db, s.Participants, participantCodec); err != nil {
		db.Close()
		return nil, err
	}
	if err := loadTable(db, s.Media, mediaCodec); err != nil {
		db.Close()
		return nil, err
	}

	s.sched = newScheduler(db, opts.FlushDelay, opts.FlushRetries, opts.Metrics, s.log.Sub("Writer"))
	attach(s.sched, s.Conversations, conversationCodec)
	attach(s.sched, s.Messages, messageCodec)
	attach(s.sched, s.Participants, participantCodec)
	attach(s.sched, s.Media, mediaCodec)

	settled, err := s.settleTransfers()
	if err != nil {
		s.sched.close()
		db.Close()
		return nil, fmt.Errorf("failed to settle interrupted transfers: %w", err)
	}
	if settled > 0 {
		s.log.Infof("Marked %d interrupted messages as failed", settled)
	}

	st := s.Stats()
	s.log.Infof("Loaded %d conversations, %d messages, %d participants, %d media",
		st.Conversations, st.Messages, st.Participants, st.Media)
	return s, nil
}

// settleTransfers moves messages left mid-send or mid-transfer by a previous
// run into the error state, where they can be retried.
func (s *Store) settleTransfers() (int, error) {
	stuck := s.Messages.Query(func(m entity.Message) bool {
		return m.SendStatus == entity.SendStatusSending || interrupted(m.MediaStatus)
	}, nil)
	if len(stuck) == 0 {
		return 0, nil
	}
	patches := make([]entity.MessagePatch, 0, len(stuck))
	for _, m := range stuck {
		p := entity.MessagePatch{UUID: m.UUID}
		if m.SendStatus == entity.SendStatusSending {
			p.SendStatus = entity.Set(entity.SendStatusError)
		}
		if interrupted(m.MediaStatus) {
			p.MediaStatus = entity.Set(entity.MediaStatusError)
		}
		patches = append(patches, p)
	}
	if _, err := s.Messages.Upsert(patches...); err != nil {
		return 0, err
	}
	return len(stuck), nil
}

func interrupted(st entity.MediaStatus) bool {
	return st == entity.MediaStatusUploading || st == entity.MediaStatusDownloading
}

func loadTable[E any, P Patch[E]](db *sql.DB, t *Table[E, P], c codec[E]) error {
	rows, err := c.load(db)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", c.table, err)
	}
	t.load(rows)
	return nil
}

// DB returns the underlying database, nil for memory stores.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Flush writes pending changes to disk.
func (s *Store) Flush(ctx context.Context) error {
	if s.sched == nil {
		return nil
	}
	if s.sched.isClosed() {
		return ErrClosed
	}
	return s.sched.Flush(ctx)
}

// Wipe deletes every row of every table in cascade order.
func (s *Store) Wipe() {
	conversations := s.Conversations.DeleteAll()
	messages := s.Messages.DeleteAll()
	participants := s.Participants.DeleteAll()
	media := s.Media.DeleteAll()
	s.log.Infof("Wiped %d conversations, %d messages, %d participants, %d media",
		conversations, messages, participants, media)
}

// Stats returns the current row counts.
func (s *Store) Stats() Stats {
	st := Stats{
		Conversations: s.Conversations.Len(),
		Messages:      s.Messages.Len(),
		Participants:  s.Participants.Len(),
		Media:         s.Media.Len(),
	}
	if s.sched != nil {
		st.PendingWrites = s.sched.Pending()
	}
	return st
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	if s.sched == nil {
		return nil
	}
	s.sched.close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flushErr := s.sched.Flush(ctx)
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}
