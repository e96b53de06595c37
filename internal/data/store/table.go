package store

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"chatcache/internal/data/entity"
)

// Patch is a partial update that can be merged into an entity.
type Patch[E any] interface {
	Key() string
	Validate() error
	Apply(*E)
}

// altKeyed is implemented by patches that may carry an alternate key.
type altKeyed interface {
	AltKey() string
}

// Schema describes how a table keys and validates its rows.
type Schema[E any] struct {
	Kind   entity.Kind
	KeyOf  func(E) string
	SetKey func(*E, string)

	// AltKeyOf enables the alternate key index. Empty alternate keys are
	// not indexed.
	AltKeyOf func(E) string
	// NewKey mints a key for patches that only carry an alternate key.
	NewKey func() string
	// Validate checks a merged row before it is committed.
	Validate func(E) error
}

// Snapshot is an immutable committed state of a table.
type Snapshot[E any] struct {
	Version uint64

	rows   map[string]E
	alt    map[string]string
	schema *Schema[E]
}

// Len returns the number of rows.
func (s *Snapshot[E]) Len() int {
	return len(s.rows)
}

// Get returns the row stored under key.
func (s *Snapshot[E]) Get(key string) (E, bool) {
	row, ok := s.rows[key]
	return row, ok
}

// GetByAlt returns the row owning the alternate key.
func (s *Snapshot[E]) GetByAlt(alt string) (E, bool) {
	key, ok := s.alt[alt]
	if !ok {
		var zero E
		return zero, false
	}
	return s.Get(key)
}

// Query returns the rows matching pred ordered by less. A nil pred matches
// every row; a nil less orders by key.
func (s *Snapshot[E]) Query(pred func(E) bool, less func(a, b E) bool) []E {
	out := make([]E, 0, len(s.rows))
	for _, row := range s.rows {
		if pred == nil || pred(row) {
			out = append(out, row)
		}
	}
	keyOf := s.schema.KeyOf
	sort.Slice(out, func(i, j int) bool {
		if less != nil {
			if less(out[i], out[j]) {
				return true
			}
			if less(out[j], out[i]) {
				return false
			}
		}
		return keyOf(out[i]) < keyOf(out[j])
	})
	return out
}

// Upserted describes one row written by a commit.
type Upserted[E any] struct {
	Old     E
	New     E
	Existed bool
}

// Change is delivered to watchers after every commit that altered the table.
type Change[E any] struct {
	Kind     entity.Kind
	Version  uint64
	Snapshot *Snapshot[E]
	Upserted []Upserted[E]
	Deleted  []E
	Wiped    bool
}

// Table holds the rows of one entity kind.
//
// Writes are serialized by a single writer lock and publish a new immutable
// snapshot; reads load the current snapshot without locking.
type Table[E any, P Patch[E]] struct {
	schema Schema[E]

	mu   sync.Mutex
	head atomic.Pointer[Snapshot[E]]

	watchers  map[int]func(Change[E])
	watcherID int
}

// NewTable creates an empty table.
func NewTable[E any, P Patch[E]](schema Schema[E]) *Table[E, P] {
	t := &Table[E, P]{
		schema:   schema,
		watchers: make(map[int]func(Change[E])),
	}
	t.head.Store(&Snapshot[E]{
		rows:   map[string]E{},
		alt:    map[string]string{},
		schema: &t.schema,
	})
	return t
}

// Kind returns the entity kind of the table.
func (t *Table[E, P]) Kind() entity.Kind {
	return t.schema.Kind
}

// load replaces the contents without notifying watchers.
func (t *Table[E, P]) load(rows []E) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := &Snapshot[E]{
		Version: t.head.Load().Version,
		rows:    make(map[string]E, len(rows)),
		alt:     make(map[string]string, len(rows)),
		schema:  &t.schema,
	}
	for _, row := range rows {
		key := t.schema.KeyOf(row)
		snap.rows[key] = row
		if alt := t.altOf(row); alt != "" {
			snap.alt[alt] = key
		}
	}
	t.head.Store(snap)
}

// Snapshot returns the current committed snapshot.
func (t *Table[E, P]) Snapshot() *Snapshot[E] {
	return t.head.Load()
}

// Get returns the row stored under key.
func (t *Table[E, P]) Get(key string) (E, bool) {
	return t.Snapshot().Get(key)
}

// GetByAlt returns the row owning the alternate key.
func (t *Table[E, P]) GetByAlt(alt string) (E, bool) {
	return t.Snapshot().GetByAlt(alt)
}

// Query runs pred over the current snapshot.
func (t *Table[E, P]) Query(pred func(E) bool, less func(a, b E) bool) []E {
	return t.Snapshot().Query(pred, less)
}

// Len returns the current number of rows.
func (t *Table[E, P]) Len() int {
	return t.Snapshot().Len()
}

// Watch registers fn for every subsequent commit and returns the snapshot
// the first delivered change follows. fn runs under the writer lock and must
// not block or write to the table.
func (t *Table[E, P]) Watch(fn func(Change[E])) (*Snapshot[E], func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.watcherID++
	id := t.watcherID
	t.watchers[id] = fn

	cancel := func() {
		t.mu.Lock()
		delete(t.watchers, id)
		t.mu.Unlock()
	}
	return t.head.Load(), cancel
}

// Upsert merges every patch in one batch. Either all patches are committed
// or none is.
func (t *Table[E, P]) Upsert(patches ...P) ([]E, error) {
	for _, p := range patches {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tx := t.begin()
	out := make([]E, 0, len(patches))
	for _, p := range patches {
		row, err := tx.apply(p)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	t.commit(tx)
	return out, nil
}

// Modify computes a patch from the current row of key and commits it
// atomically. ok is false when no row exists. An error returned by fn
// aborts without writing.
func (t *Table[E, P]) Modify(key string, fn func(cur E, ok bool) (P, error)) (E, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero E
	cur, ok := t.head.Load().Get(key)
	p, err := fn(cur, ok)
	if err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}
	tx := t.begin()
	row, err := tx.apply(p)
	if err != nil {
		return zero, err
	}
	t.commit(tx)
	return row, nil
}

// Update merges p into the existing row of its key. A missing row is left
// missing and reported with ok false.
func (t *Table[E, P]) Update(p P) (row E, ok bool, err error) {
	if err := p.Validate(); err != nil {
		return row, false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.head.Load().Get(p.Key()); !exists {
		return row, false, nil
	}
	tx := t.begin()
	row, err = tx.apply(p)
	if err != nil {
		return row, false, err
	}
	t.commit(tx)
	return row, true, nil
}

// Delete removes the rows of the given keys and reports how many existed.
func (t *Table[E, P]) Delete(keys ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := t.begin()
	for _, key := range keys {
		tx.remove(key)
	}
	n := len(tx.deleted)
	t.commit(tx)
	return n
}

// DeleteWhere removes every row matching pred.
func (t *Table[E, P]) DeleteWhere(pred func(E) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := t.begin()
	for key, row := range t.head.Load().rows {
		if pred(row) {
			tx.remove(key)
		}
	}
	n := len(tx.deleted)
	t.commit(tx)
	return n
}

// DeleteAll empties the table.
func (t *Table[E, P]) DeleteAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := t.begin()
	for key := range t.head.Load().rows {
		tx.remove(key)
	}
	tx.wiped = true
	n := len(tx.deleted)
	t.commit(tx)
	return n
}

func (t *Table[E, P]) altOf(row E) string {
	if t.schema.AltKeyOf == nil {
		return ""
	}
	return t.schema.AltKeyOf(row)
}

// batch is a working copy of the head snapshot. Maps are cloned on the
// first write.
type batch[E any, P Patch[E]] struct {
	t      *Table[E, P]
	base   *Snapshot[E]
	rows   map[string]E
	alt    map[string]string
	cloned bool

	upserted map[string]int
	changes  []Upserted[E]
	deleted  []E
	wiped    bool
}

func (t *Table[E, P]) begin() *batch[E, P] {
	base := t.head.Load()
	return &batch[E, P]{
		t:        t,
		base:     base,
		rows:     base.rows,
		alt:      base.alt,
		upserted: map[string]int{},
	}
}

func (b *batch[E, P]) clone() {
	if b.cloned {
		return
	}
	rows := make(map[string]E, len(b.rows)+1)
	for k, v := range b.rows {
		rows[k] = v
	}
	alt := make(map[string]string, len(b.alt)+1)
	for k, v := range b.alt {
		alt[k] = v
	}
	b.rows, b.alt, b.cloned = rows, alt, true
}

// apply merges one patch, resolving and absorbing alternate key owners.
func (b *batch[E, P]) apply(p P) (E, error) {
	var zero E
	schema := &b.t.schema

	key := p.Key()
	var alt string
	if ak, ok := any(p).(altKeyed); ok && schema.AltKeyOf != nil {
		alt = ak.AltKey()
	}

	b.clone()

	var base E
	existed := false
	owner, owned := "", false
	if alt != "" {
		owner, owned = b.alt[alt]
	}

	switch {
	case key == "" && owned:
		key = owner
	case key == "":
		if schema.NewKey == nil {
			return zero, fmt.Errorf("%s patch without key", schema.Kind)
		}
		key = schema.NewKey()
	case owned && owner != key:
		// The alternate key already belongs to another row. The keyed row
		// takes it over; if the keyed row is new it inherits the owner's
		// fields.
		ownerRow := b.rows[owner]
		if _, ok := b.rows[key]; !ok {
			base = ownerRow
			schema.SetKey(&base, key)
		}
		b.remove(owner)
	}

	var old E
	if cur, ok := b.rows[key]; ok {
		base, old = cur, cur
		existed = true
	}

	merged := base
	p.Apply(&merged)
	schema.SetKey(&merged, key)
	if schema.Validate != nil {
		if err := schema.Validate(merged); err != nil {
			return zero, err
		}
	}

	if existed {
		if prev := b.t.altOf(old); prev != "" && b.alt[prev] == key {
			delete(b.alt, prev)
		}
	}
	if next := b.t.altOf(merged); next != "" {
		if other, ok := b.alt[next]; ok && other != key {
			b.remove(other)
		}
		b.alt[next] = key
	}
	b.rows[key] = merged

	if i, ok := b.upserted[key]; ok {
		b.changes[i].New = merged
	} else {
		b.upserted[key] = len(b.changes)
		b.changes = append(b.changes, Upserted[E]{Old: old, New: merged, Existed: existed})
	}
	return merged, nil
}

func (b *batch[E, P]) remove(key string) {
	row, ok := b.rows[key]
	if !ok {
		return
	}
	b.clone()
	delete(b.rows, key)
	if alt := b.t.altOf(row); alt != "" && b.alt[alt] == key {
		delete(b.alt, alt)
	}
	if i, ok := b.upserted[key]; ok {
		// Written earlier in this batch: the deletion reports the row as it
		// was before the batch, if it existed at all.
		prev := b.changes[i]
		b.changes = append(b.changes[:i], b.changes[i+1:]...)
		delete(b.upserted, key)
		for k, j := range b.upserted {
			if j > i {
				b.upserted[k] = j - 1
			}
		}
		if !prev.Existed {
			return
		}
		row = prev.Old
	}
	b.deleted = append(b.deleted, row)
}

// commit publishes the batch and notifies watchers.
func (t *Table[E, P]) commit(b *batch[E, P]) {
	if len(b.changes) == 0 && len(b.deleted) == 0 {
		return
	}
	snap := &Snapshot[E]{
		Version: b.base.Version + 1,
		rows:    b.rows,
		alt:     b.alt,
		schema:  &t.schema,
	}
	t.head.Store(snap)

	ch := Change[E]{
		Kind:     t.schema.Kind,
		Version:  snap.Version,
		Snapshot: snap,
		Upserted: b.changes,
		Deleted:  b.deleted,
		Wiped:    b.wiped,
	}
	ids := make([]int, 0, len(t.watchers))
	for id := range t.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		t.watchers[id](ch)
	}
}
