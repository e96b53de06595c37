// Package query implements observable queries over the entity tables.
//
// Subscribers of the same query share one evaluator. The evaluator runs each
// relevant table change once and fans the result out, in commit order, to
// every subscriber that has not yet seen that version.
package query

import (
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/store"
	"chatcache/internal/infra/metrics"
)

// Query is a predicate over one entity kind with a canonical identity.
// Queries with the same ID must select the same rows.
type Query[E any] struct {
	ID    string
	Match func(E) bool
	Less  func(a, b E) bool
	// Limit keeps the first Limit rows after ordering. Zero keeps all.
	Limit int
}

// Result is an evaluated query.
type Result[E any] struct {
	Version uint64
	Rows    []E
}

// Source is a table that can be watched.
type Source[E any] interface {
	Snapshot() *store.Snapshot[E]
	Watch(fn func(store.Change[E])) (*store.Snapshot[E], func())
}

// Registry deduplicates query evaluation for one table.
type Registry[E any] struct {
	source  Source[E]
	log     waLog.Logger
	metrics *metrics.Metrics
	kind    string

	mu    sync.Mutex
	evals map[string]*evaluator[E]
}

// NewRegistry creates a registry over source.
func NewRegistry[E any](source Source[E], kind string, m *metrics.Metrics, log waLog.Logger) *Registry[E] {
	return &Registry[E]{
		source:  source,
		log:     log,
		metrics: m,
		kind:    kind,
		evals:   make(map[string]*evaluator[E]),
	}
}

// Subscription is a handle on a subscribed query.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscribe returns the current result of q and delivers every later result
// to fn. Deliveries for one subscriber are serialized and ordered by version,
// and each carries a version newer than the returned result. fn is not
// called before that result is fixed, though it may run while Subscribe is
// returning; callers keeping the returned result should compare versions.
func (r *Registry[E]) Subscribe(q Query[E], fn func(Result[E])) (Result[E], *Subscription) {
	r.mu.Lock()
	ev, ok := r.evals[q.ID]
	if !ok {
		ev = newEvaluator(r, q)
		r.evals[q.ID] = ev
		ev.start()
		r.log.Debugf("Started evaluator for %s", q.ID)
	}
	sub := ev.add(fn)
	r.mu.Unlock()

	initial := ev.activate(sub)
	return initial, &Subscription{cancel: func() { r.remove(ev, sub) }}
}

// Active returns the number of live evaluators.
func (r *Registry[E]) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evals)
}

func (r *Registry[E]) remove(ev *evaluator[E], sub *subscriber[E]) {
	r.mu.Lock()
	last := ev.drop(sub)
	if last && r.evals[ev.query.ID] == ev {
		delete(r.evals, ev.query.ID)
	}
	r.mu.Unlock()

	if last {
		ev.stop()
		r.log.Debugf("Stopped evaluator for %s", ev.query.ID)
	}
}
