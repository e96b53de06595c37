package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/infra/metrics"
	"chatcache/internal/utils/retry"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrWritesDropped is returned by a flush that discarded writes sqlite
	// rejected permanently.
	ErrWritesDropped = errors.New("cache writes dropped")
)

// pending is the coalesced durable state of one table awaiting a flush.
type pending interface {
	take() flushBatch
	size() int
}

// flushBatch is a detached set of writes for one table.
type flushBatch interface {
	write(tx *sql.Tx) error
	salvage(db *sql.DB) (dropped int, err error)
	restore()
	empty() bool
}

// journal coalesces the committed changes of one table. A nil row is a
// tombstone. Guarded by the scheduler lock.
type journal[E any] struct {
	codec codec[E]
	keyOf func(E) string
	rows  map[string]*E
	wiped bool
	owner *scheduler
}

func newJournal[E any](s *scheduler, c codec[E], keyOf func(E) string) *journal[E] {
	return &journal[E]{codec: c, keyOf: keyOf, rows: map[string]*E{}, owner: s}
}

// record is a table watcher; it runs under the table writer lock.
func (j *journal[E]) record(ch Change[E]) {
	s := j.owner
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if ch.Wiped {
		j.wiped = true
		clear(j.rows)
	}
	for _, row := range ch.Deleted {
		j.rows[j.keyOf(row)] = nil
	}
	for _, u := range ch.Upserted {
		row := u.New
		j.rows[j.keyOf(row)] = &row
	}
	s.armLocked()
}

func (j *journal[E]) size() int {
	n := len(j.rows)
	if j.wiped {
		n++
	}
	return n
}

func (j *journal[E]) take() flushBatch {
	b := &journalBatch[E]{j: j, rows: j.rows, wiped: j.wiped}
	j.rows = map[string]*E{}
	j.wiped = false
	return b
}

type journalBatch[E any] struct {
	j     *journal[E]
	rows  map[string]*E
	wiped bool
}

func (b *journalBatch[E]) empty() bool {
	return len(b.rows) == 0 && !b.wiped
}

// write applies the wipe, then deletes, then upserts.
func (b *journalBatch[E]) write(tx *sql.Tx) error {
	c := b.j.codec
	if b.wiped {
		if err := c.wipe(tx); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", c.table, err)
		}
	}

	keys := make([]string, 0, len(b.rows))
	for key := range b.rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if b.rows[key] == nil {
			if err := c.delete(tx, key); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", c.table, err)
			}
		}
	}
	for _, key := range keys {
		if row := b.rows[key]; row != nil {
			if err := c.upsert(tx, *row); err != nil {
				return fmt.Errorf("failed to write %s: %w", c.table, err)
			}
		}
	}
	return nil
}

// salvage writes the batch one entry per transaction. Entries failing with a
// transient error stay in the batch for restore; any other failure drops the
// entry. It reports the dropped count and the first failure.
func (b *journalBatch[E]) salvage(db *sql.DB) (int, error) {
	c := b.j.codec
	dropped := 0
	var first error
	fail := func(err error) {
		dropped++
		if first == nil {
			first = err
		}
	}

	if b.wiped {
		if err := inTx(db, c.wipe); err != nil {
			if isBusy(err) {
				return 0, err
			}
			dropped = len(b.rows) + 1
			b.rows, b.wiped = nil, false
			return dropped, fmt.Errorf("failed to wipe %s: %w", c.table, err)
		}
		b.wiped = false
	}

	keys := make([]string, 0, len(b.rows))
	for key := range b.rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		row := b.rows[key]
		err := inTx(db, func(tx *sql.Tx) error {
			if row == nil {
				return c.delete(tx, key)
			}
			return c.upsert(tx, *row)
		})
		switch {
		case err == nil:
			delete(b.rows, key)
		case isBusy(err):
		default:
			delete(b.rows, key)
			fail(fmt.Errorf("failed to write %s %s: %w", c.table, key, err))
		}
	}
	return dropped, first
}

func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// restore merges a failed batch back beneath writes recorded since take.
// Caller holds the scheduler lock.
func (b *journalBatch[E]) restore() {
	j := b.j
	if j.wiped {
		// A newer wipe supersedes everything in the batch.
		return
	}
	j.wiped = b.wiped
	for key, row := range b.rows {
		if _, newer := j.rows[key]; !newer {
			j.rows[key] = row
		}
	}
}

// scheduler persists table changes in coalesced transactions.
type scheduler struct {
	db      *sql.DB
	log     waLog.Logger
	delay   time.Duration
	retry   retry.Config
	metrics *metrics.Metrics

	flushMu sync.Mutex

	mu       sync.Mutex
	journals []pending
	timer    *time.Timer
	closed   bool
}

func newScheduler(db *sql.DB, delay time.Duration, attempts int, m *metrics.Metrics, log waLog.Logger) *scheduler {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialWait = 20 * time.Millisecond
	cfg.MaxWait = time.Second
	cfg.Retryable = isBusy
	return &scheduler{
		db:      db,
		log:     log,
		delay:   delay,
		retry:   cfg,
		metrics: m,
	}
}

// attach makes table durable through the scheduler.
func attach[E any, P Patch[E]](s *scheduler, t *Table[E, P], c codec[E]) {
	j := newJournal(s, c, t.schema.KeyOf)
	s.mu.Lock()
	s.journals = append(s.journals, j)
	s.mu.Unlock()
	t.Watch(j.record)
}

func (s *scheduler) armLocked() {
	if s.timer == nil && !s.closed {
		s.timer = time.AfterFunc(s.delay, s.onTimer)
	}
}

func (s *scheduler) onTimer() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()

	if err := s.Flush(context.Background()); err != nil && !errors.Is(err, ErrWritesDropped) {
		s.log.Errorf("Failed to flush cache writes: %v", err)
	}
}

// Pending returns the number of coalesced writes awaiting a flush.
func (s *scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, j := range s.journals {
		n += j.size()
	}
	return n
}

// Flush writes every pending change in one transaction. On a transient
// failure the batch is restored under any newer writes and a later flush is
// scheduled. When the transaction fails permanently the writes are retried
// one at a time and the ones that still fail are dropped.
func (s *scheduler) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batches := make([]flushBatch, 0, len(s.journals))
	total := 0
	for _, j := range s.journals {
		total += j.size()
		batches = append(batches, j.take())
	}
	s.mu.Unlock()

	if total == 0 {
		return nil
	}

	err := retry.DoSimple(ctx, s.retry, func() error {
		return s.writeAll(batches)
	})
	if err != nil && permanent(err) {
		return s.salvage(batches, total, err)
	}
	if err != nil {
		s.metrics.Flushed(metrics.OutcomeError)
		s.mu.Lock()
		for _, b := range batches {
			b.restore()
		}
		s.armLocked()
		s.mu.Unlock()
		return fmt.Errorf("failed to flush %d writes: %w", total, err)
	}

	s.metrics.Flushed(metrics.OutcomeOK)
	s.log.Debugf("Flushed %d cache writes", total)
	return nil
}

// salvage handles a batch set that cannot be committed as a whole. Entries
// are written one by one so a single bad row does not hold back the rest;
// rows that cannot be written are dropped and reported once.
func (s *scheduler) salvage(batches []flushBatch, total int, cause error) error {
	dropped := 0
	var first error
	for _, b := range batches {
		if b.empty() {
			continue
		}
		n, err := b.salvage(s.db)
		dropped += n
		if first == nil && n > 0 {
			first = err
		}
	}

	s.mu.Lock()
	retained := false
	for _, b := range batches {
		if !b.empty() {
			b.restore()
			retained = true
		}
	}
	if retained {
		s.armLocked()
	}
	s.mu.Unlock()

	if dropped == 0 {
		s.metrics.Flushed(metrics.OutcomeOK)
		s.log.Debugf("Flushed %d cache writes individually after: %v", total, cause)
		return nil
	}
	s.metrics.Flushed(metrics.OutcomeError)
	s.log.Errorf("Failed to persist %d of %d cache writes, dropping them: %v", dropped, total, first)
	return fmt.Errorf("%w: %d of %d: %w", ErrWritesDropped, dropped, total, first)
}

// permanent reports whether a flush error will recur on retry.
func permanent(err error) bool {
	return !isBusy(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (s *scheduler) writeAll(batches []flushBatch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, b := range batches {
		if b.empty() {
			continue
		}
		if err := b.write(tx); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close stops the timer and rejects further recording.
func (s *scheduler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
