package unread

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/store"
	"chatcache/internal/query"
)

func setUnread(t *testing.T, s *store.Store, sid string, n int, level entity.NotificationLevel) {
	t.Helper()
	_, err := s.Conversations.Upsert(entity.ConversationPatch{
		Sid:               sid,
		UnreadCount:       entity.Set(n),
		NotificationLevel: entity.Set(level),
	})
	require.NoError(t, err)
}

func TestTracksTotals(t *testing.T) {
	s := store.OpenMemory(waLog.Noop, store.Options{})
	setUnread(t, s, "C1", 5, entity.NotificationDefault)

	tr := NewTracker(query.NewRegistries(s, nil, waLog.Noop).Conversations, waLog.Noop)
	defer tr.Close()
	assert.Equal(t, 5, tr.Total())

	var last atomic.Value
	cancel := tr.OnChange(func(c Counts) { last.Store(c) })
	defer cancel()

	setUnread(t, s, "C2", 3, entity.NotificationMuted)
	require.Eventually(t, func() bool { return tr.Total() == 8 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, tr.Unmuted())
	require.Eventually(t, func() bool {
		c, ok := last.Load().(Counts)
		return ok && c == Counts{Total: 8, Unmuted: 5}
	}, time.Second, 5*time.Millisecond)

	s.Conversations.Delete("C1")
	require.Eventually(t, func() bool { return tr.Total() == 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, tr.Unmuted())
}

func TestCloseStopsUpdates(t *testing.T) {
	s := store.OpenMemory(waLog.Noop, store.Options{})
	regs := query.NewRegistries(s, nil, waLog.Noop)
	tr := NewTracker(regs.Conversations, waLog.Noop)
	assert.Equal(t, 1, regs.Conversations.Active())

	tr.Close()
	assert.Equal(t, 0, regs.Conversations.Active())

	setUnread(t, s, "C1", 2, entity.NotificationDefault)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, tr.Total())
}
