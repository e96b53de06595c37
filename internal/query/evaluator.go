package query

import (
	"sync"
	"sync/atomic"

	"chatcache/internal/data/store"
)

// subscriber state other than active is guarded by the evaluator lock.
// Until ready, results are held instead of delivered.
type subscriber[E any] struct {
	fn      func(Result[E])
	since   uint64
	initial Result[E]
	ready   bool
	held    *Result[E]
	active  atomic.Bool
}

// evaluator runs one query for all of its subscribers. Table changes are
// queued without bound by the watcher and drained by a single goroutine.
type evaluator[E any] struct {
	reg   *Registry[E]
	query Query[E]

	cancelWatch func()
	wake        chan struct{}
	done        chan struct{}

	mu      sync.Mutex
	queue   []store.Change[E]
	subs    []*subscriber[E]
	stopped bool
}

func newEvaluator[E any](r *Registry[E], q Query[E]) *evaluator[E] {
	return &evaluator[E]{
		reg:   r,
		query: q,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (ev *evaluator[E]) start() {
	_, cancel := ev.reg.source.Watch(ev.enqueue)
	ev.cancelWatch = cancel
	go ev.loop()
}

// enqueue runs under the table writer lock.
func (ev *evaluator[E]) enqueue(ch store.Change[E]) {
	ev.mu.Lock()
	if !ev.stopped {
		ev.queue = append(ev.queue, ch)
	}
	ev.mu.Unlock()

	select {
	case ev.wake <- struct{}{}:
	default:
	}
}

// add registers fn with a result of the current head. The head is read
// under the same lock the loop uses to pick targets, so every later change
// reaches the subscriber exactly once. Nothing is delivered to fn until
// activate.
func (ev *evaluator[E]) add(fn func(Result[E])) *subscriber[E] {
	sub := &subscriber[E]{fn: fn}
	sub.active.Store(true)

	ev.mu.Lock()
	snap := ev.reg.source.Snapshot()
	sub.since = snap.Version
	ev.subs = append(ev.subs, sub)
	ev.mu.Unlock()

	sub.initial = ev.evaluate(snap)
	return sub
}

// activate enables delivery to sub and returns its initial result. A result
// the loop held back while the initial was evaluated is newer and replaces
// it, so fn only ever sees versions after the returned one.
func (ev *evaluator[E]) activate(sub *subscriber[E]) Result[E] {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	sub.ready = true
	if sub.held != nil {
		sub.initial = *sub.held
		sub.held = nil
	}
	return sub.initial
}

// drop removes sub and reports whether it was the last one.
func (ev *evaluator[E]) drop(sub *subscriber[E]) bool {
	sub.active.Store(false)

	ev.mu.Lock()
	defer ev.mu.Unlock()
	for i, s := range ev.subs {
		if s == sub {
			ev.subs = append(ev.subs[:i], ev.subs[i+1:]...)
			break
		}
	}
	return len(ev.subs) == 0
}

// stop detaches from the table. It does not wait for the loop, so it may be
// called from a delivery.
func (ev *evaluator[E]) stop() {
	ev.mu.Lock()
	if ev.stopped {
		ev.mu.Unlock()
		return
	}
	ev.stopped = true
	ev.queue = nil
	ev.mu.Unlock()

	ev.cancelWatch()
	close(ev.done)
}

func (ev *evaluator[E]) loop() {
	for {
		select {
		case <-ev.done:
			return
		case <-ev.wake:
		}

		for {
			ev.mu.Lock()
			if ev.stopped || len(ev.queue) == 0 {
				ev.mu.Unlock()
				break
			}
			ch := ev.queue[0]
			ev.queue[0] = store.Change[E]{}
			ev.queue = ev.queue[1:]
			ev.mu.Unlock()

			ev.process(ch)
		}
	}
}

func (ev *evaluator[E]) process(ch store.Change[E]) {
	if !ev.relevant(ch) {
		return
	}

	ev.mu.Lock()
	targets := make([]*subscriber[E], 0, len(ev.subs))
	for _, s := range ev.subs {
		if s.since < ch.Version {
			targets = append(targets, s)
		}
	}
	ev.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	res := ev.evaluate(ch.Snapshot)
	ev.reg.metrics.Evaluated(ev.reg.kind)

	delivered := 0
	for _, s := range targets {
		if !s.active.Load() {
			continue
		}
		ev.mu.Lock()
		s.since = res.Version
		if !s.ready {
			s.held = &res
			ev.mu.Unlock()
			continue
		}
		ev.mu.Unlock()
		s.fn(res)
		delivered++
	}
	ev.reg.metrics.Notified(ev.reg.kind, delivered)
}

// relevant reports whether a changed row matches before or after the change.
func (ev *evaluator[E]) relevant(ch store.Change[E]) bool {
	match := ev.query.Match
	if match == nil {
		return true
	}
	for _, u := range ch.Upserted {
		if match(u.New) || (u.Existed && match(u.Old)) {
			return true
		}
	}
	for _, row := range ch.Deleted {
		if match(row) {
			return true
		}
	}
	return false
}

func (ev *evaluator[E]) evaluate(snap *store.Snapshot[E]) Result[E] {
	rows := snap.Query(ev.query.Match, ev.query.Less)
	if ev.query.Limit > 0 && len(rows) > ev.query.Limit {
		rows = rows[:ev.query.Limit]
	}
	return Result[E]{Version: snap.Version, Rows: rows}
}
