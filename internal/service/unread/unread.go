// Package unread maintains the total unread message count across every
// cached conversation.
package unread

import (
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/query"
)

// Counts is the aggregate unread state.
type Counts struct {
	// Total sums the unread count of every conversation.
	Total int
	// Unmuted leaves out muted conversations.
	Unmuted int
}

// Tracker follows the conversation list and keeps Counts current.
type Tracker struct {
	log waLog.Logger
	sub *query.Subscription

	mu        sync.Mutex
	version   uint64
	counts    Counts
	listeners map[int]func(Counts)
	nextID    int
}

// NewTracker subscribes to every conversation of reg.
func NewTracker(reg *query.Registry[entity.Conversation], log waLog.Logger) *Tracker {
	t := &Tracker{
		log:       log.Sub("Unread"),
		listeners: make(map[int]func(Counts)),
	}
	initial, sub := reg.Subscribe(query.AllConversations(), t.update)
	t.sub = sub
	t.update(initial)
	return t
}

func (t *Tracker) update(res query.Result[entity.Conversation]) {
	var c Counts
	for _, conv := range res.Rows {
		c.Total += conv.UnreadCount
		if !conv.Muted() {
			c.Unmuted += conv.UnreadCount
		}
	}

	t.mu.Lock()
	if res.Version < t.version {
		t.mu.Unlock()
		return
	}
	t.version = res.Version
	changed := c != t.counts
	t.counts = c
	listeners := make([]func(Counts), 0, len(t.listeners))
	if changed {
		for _, fn := range t.listeners {
			listeners = append(listeners, fn)
		}
	}
	t.mu.Unlock()

	if changed {
		t.log.Debugf("Unread count is %d (%d unmuted)", c.Total, c.Unmuted)
	}
	for _, fn := range listeners {
		fn(c)
	}
}

// Counts returns the current counts.
func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

// Total returns the unread count across every conversation.
func (t *Tracker) Total() int {
	return t.Counts().Total
}

// Unmuted returns the unread count of conversations that are not muted.
func (t *Tracker) Unmuted() int {
	return t.Counts().Unmuted
}

// OnChange registers fn for every change of the counts. The returned func
// removes it.
func (t *Tracker) OnChange(fn func(Counts)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Close stops following the conversation list.
func (t *Tracker) Close() {
	t.sub.Unsubscribe()
}
