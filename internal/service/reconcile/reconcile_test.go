package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/types/known/structpb"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/mediacache"
	"chatcache/internal/data/store"
	"chatcache/internal/infra/config"
	"chatcache/internal/remote"
	"chatcache/internal/remote/remotetest"
)

const me = "alice"

type fixture struct {
	svc    *Service
	store  *store.Store
	client *remotetest.Client
	cache  *mediacache.Cache
}

func newFixture(t *testing.T, client remote.Client, stats config.StatsConfig) *fixture {
	t.Helper()
	st := store.OpenMemory(waLog.Noop, store.Options{})
	t.Cleanup(func() { st.Close() })

	cache, err := mediacache.New(filepath.Join(t.TempDir(), "media"), nil, 0, waLog.Noop)
	require.NoError(t, err)

	svc := NewService(context.Background(), waLog.Noop, st, client, cache, me, stats, nil)
	t.Cleanup(svc.Close)

	f := &fixture{svc: svc, store: st, cache: cache}
	switch c := client.(type) {
	case *remotetest.Client:
		f.client = c
	case *remotetest.Batched:
		f.client = c.Client
	}
	return f
}

func event(typ remote.EventType, kind entity.Kind, key, conv string, fields map[string]any) remote.Event {
	var s *structpb.Struct
	if fields != nil {
		s = remote.MustFields(fields)
	}
	return remote.Event{Type: typ, Kind: kind, Key: key, ConversationSid: conv, Fields: s}
}

func TestConversationAddedRefreshesStats(t *testing.T) {
	client := &remotetest.Client{
		UnreadMessagesCountFunc: func(ctx context.Context, sid string) (int, error) { return 5, nil },
		ParticipantsCountFunc:   func(ctx context.Context, sid string) (int, error) { return 3, nil },
	}
	f := newFixture(t, client, config.StatsConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindConversation, "C1", "", map[string]any{
		"friendlyName":      "Team",
		"notificationLevel": "default",
		"dateCreated":       "2024-05-01T10:00:00Z",
	})))
	f.svc.Wait()

	conv, ok := f.store.Conversations.Get("C1")
	require.True(t, ok)
	assert.Equal(t, "Team", conv.FriendlyName)
	assert.Equal(t, 5, conv.UnreadCount)
	assert.Equal(t, 3, conv.ParticipantsCount)
	assert.Equal(t, 2024, conv.DateCreated.Year())
	assert.Equal(t, int32(1), client.UnreadCalls.Load())
	assert.Equal(t, int32(1), client.LastMessageCalls.Load())
}

func TestConversationUpdateIsPartial(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindConversation, "C1", "", map[string]any{
		"friendlyName": "Team",
		"uniqueName":   "team",
		"attributes":   map[string]any{"topic": "release"},
	})))
	require.NoError(t, f.svc.Apply(ctx, event(remote.EventUpdated, entity.KindConversation, "C1", "", map[string]any{
		"friendlyName": "Team 2",
		"uniqueName":   nil,
	})))
	f.svc.Wait()

	conv, _ := f.store.Conversations.Get("C1")
	assert.Equal(t, "Team 2", conv.FriendlyName)
	assert.Empty(t, conv.UniqueName)
	assert.JSONEq(t, `{"topic":"release"}`, conv.Attributes)
}

func TestMessageAddedStubsParent(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})

	require.NoError(t, f.svc.Apply(context.Background(), event(remote.EventAdded, entity.KindMessage, "IM1", "C9", map[string]any{
		"author":      me,
		"body":        "hi",
		"index":       4,
		"dateCreated": 1714557600000,
	})))
	f.svc.Wait()

	conv, ok := f.store.Conversations.Get("C9")
	require.True(t, ok)
	assert.Equal(t, "IM1", conv.LastMessage.Sid)
	assert.Equal(t, int64(4), conv.LastMessage.Index)
	assert.Equal(t, "text", conv.LastMessage.Type)

	msg, ok := f.store.Messages.GetByAlt("IM1")
	require.True(t, ok)
	assert.NotEmpty(t, msg.UUID)
	assert.Equal(t, entity.DirectionOutgoing, msg.Direction)
	assert.Equal(t, entity.SendStatusSent, msg.SendStatus)
	assert.Equal(t, "C9", msg.ConversationSid)
}

func TestMessageEchoLandsOnOptimisticRow(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	_, err := f.store.Messages.Upsert(entity.MessagePatch{
		UUID:            "u1",
		ConversationSid: entity.Set("C1"),
		Body:            entity.Set("hello"),
		Direction:       entity.Set(entity.DirectionOutgoing),
		SendStatus:      entity.Set(entity.SendStatusSending),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Apply(context.Background(), event(remote.EventAdded, entity.KindMessage, "IM1", "C1", map[string]any{
		"uuid":   "u1",
		"author": me,
		"index":  0,
	})))
	f.svc.Wait()

	assert.Equal(t, 1, f.store.Messages.Len())
	msg, ok := f.store.Messages.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "IM1", msg.Sid)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, entity.SendStatusSent, msg.SendStatus)
}

func TestInvalidAttachmentIsDropped(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})

	require.NoError(t, f.svc.Apply(context.Background(), event(remote.EventAdded, entity.KindMessage, "IM1", "C1", map[string]any{
		"author": "bob",
		"media":  map[string]any{"sid": "ME1", "contentType": "image/png"},
	})))
	f.svc.Wait()

	assert.Equal(t, 0, f.store.Media.Len())
	msg, ok := f.store.Messages.GetByAlt("IM1")
	require.True(t, ok)
	assert.Empty(t, msg.MediaSid)
	assert.Equal(t, entity.DirectionIncoming, msg.Direction)
}

func TestMessageDeletedRemovesAttachment(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindMessage, "IM1", "C1", map[string]any{
		"author": "bob",
		"index":  1,
		"media":  map[string]any{"sid": "ME1", "filename": "cat.png", "contentType": "image/png", "size": 3},
	})))
	_, err := f.cache.PutReader("ME1", "image/png", "cat.png", strings.NewReader("png"))
	require.NoError(t, err)
	f.svc.Wait()

	conv, _ := f.store.Conversations.Get("C1")
	assert.Equal(t, "image", conv.LastMessage.Type)

	m, ok := f.store.Media.Get("ME1")
	require.True(t, ok)
	assert.Equal(t, "IM1", m.MessageSid)
	assert.Equal(t, entity.MediaCategoryMedia, m.Category)

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventDeleted, entity.KindMessage, "IM1", "C1", nil)))
	f.svc.Wait()

	assert.Equal(t, 0, f.store.Messages.Len())
	assert.Equal(t, 0, f.store.Media.Len())
	assert.False(t, f.cache.Has("ME1"))
	conv, _ = f.store.Conversations.Get("C1")
	assert.True(t, conv.LastMessage.IsZero())
}

func TestDeleteConversationCascades(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindConversation, "C1", "", map[string]any{"friendlyName": "Team"})))
	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindConversation, "C2", "", map[string]any{"friendlyName": "Other"})))
	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindParticipant, "MB1", "C1", map[string]any{"identity": "bob"})))
	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindMessage, "IM1", "C1", map[string]any{
		"media": map[string]any{"sid": "ME1", "filename": "a.txt", "contentType": "text/plain"},
	})))
	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindMessage, "IM2", "C2", map[string]any{"body": "keep"})))
	_, err := f.cache.PutReader("ME1", "text/plain", "a.txt", strings.NewReader("abc"))
	require.NoError(t, err)
	f.svc.Wait()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventDeleted, entity.KindConversation, "C1", "", nil)))

	_, ok := f.store.Conversations.Get("C1")
	assert.False(t, ok)
	assert.Equal(t, 1, f.store.Messages.Len())
	assert.Equal(t, 0, f.store.Participants.Len())
	assert.Equal(t, 0, f.store.Media.Len())
	assert.False(t, f.cache.Has("ME1"))

	version := f.store.Messages.Snapshot().Version
	require.NoError(t, f.svc.DeleteConversation("C1"))
	assert.Equal(t, version, f.store.Messages.Snapshot().Version)
	_, ok = f.store.Conversations.Get("C2")
	assert.True(t, ok)
}

func TestStatsDoNotResurrectDeletedConversation(t *testing.T) {
	release := make(chan struct{})
	client := &remotetest.Client{
		MessagesCountFunc: func(ctx context.Context, sid string) (int, error) {
			<-release
			return 7, nil
		},
	}
	f := newFixture(t, client, config.StatsConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindConversation, "C1", "", nil)))
	require.NoError(t, f.svc.DeleteConversation("C1"))
	close(release)
	f.svc.Wait()

	_, ok := f.store.Conversations.Get("C1")
	assert.False(t, ok)
}

func TestBatchedStats(t *testing.T) {
	client := &remotetest.Batched{
		Client: &remotetest.Client{},
		CountsFunc: func(ctx context.Context, sid string) (remote.Counts, error) {
			return remote.Counts{Participants: 2, Messages: 10, Unread: 1}, nil
		},
	}
	f := newFixture(t, client, config.StatsConfig{Batch: true})

	require.NoError(t, f.svc.Apply(context.Background(), event(remote.EventAdded, entity.KindConversation, "C1", "", nil)))
	f.svc.Wait()

	conv, _ := f.store.Conversations.Get("C1")
	assert.Equal(t, 2, conv.ParticipantsCount)
	assert.Equal(t, 10, conv.MessagesCount)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, int32(1), client.CountCalls.Load())
	assert.Zero(t, f.client.ParticipantsCalls.Load())
	assert.Zero(t, f.client.UnreadCalls.Load())
}

func TestTypingDoesNotRefreshStats(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindParticipant, "MB1", "C1", map[string]any{
		"identity": "bob",
		"channel":  "chat",
	})))
	f.svc.Wait()
	calls := f.client.ParticipantsCalls.Load()

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventUpdated, entity.KindParticipant, "MB1", "C1", map[string]any{"isTyping": true})))
	f.svc.Wait()
	p, _ := f.store.Participants.Get("MB1")
	assert.True(t, p.IsTyping)
	assert.Equal(t, "bob", p.Identity)
	assert.Equal(t, calls, f.client.ParticipantsCalls.Load())

	require.NoError(t, f.svc.Apply(ctx, event(remote.EventUpdated, entity.KindParticipant, "MB1", "C1", map[string]any{"lastReadMessageIndex": 3})))
	f.svc.Wait()
	assert.Greater(t, f.client.ParticipantsCalls.Load(), calls)
}

func TestRejectedEvents(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	ctx := context.Background()

	err := f.svc.Apply(ctx, event(remote.EventAdded, entity.KindConversation, "C1", "", map[string]any{"participantsCount": "many"}))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	err = f.svc.Apply(ctx, event(remote.EventAdded, entity.KindMessage, "IM1", "", nil))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	err = f.svc.Apply(ctx, event(remote.EventAdded, entity.KindMedia, "ME1", "C1", nil))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	assert.Equal(t, 0, f.store.Conversations.Len())
}

func TestHandleFromEventSource(t *testing.T) {
	client := &remotetest.Client{}
	f := newFixture(t, client, config.StatsConfig{})
	client.AddEventHandler(f.svc.Handle)

	client.Emit(event(remote.EventAdded, entity.KindConversation, "C1", "", map[string]any{"friendlyName": "Team"}))
	client.Emit(event(remote.EventAdded, entity.KindMessage, "IM1", "", nil))
	f.svc.Wait()

	assert.Equal(t, 1, f.store.Conversations.Len())
	assert.Equal(t, 0, f.store.Messages.Len())
}

func TestWipe(t *testing.T) {
	f := newFixture(t, &remotetest.Client{}, config.StatsConfig{})
	ctx := context.Background()
	require.NoError(t, f.svc.Apply(ctx, event(remote.EventAdded, entity.KindMessage, "IM1", "C1", nil)))
	_, err := f.cache.PutReader("ME1", "text/plain", "", strings.NewReader("x"))
	require.NoError(t, err)
	f.svc.Wait()

	require.NoError(t, f.svc.Wipe())
	assert.Equal(t, 0, f.store.Conversations.Len())
	assert.Equal(t, 0, f.store.Messages.Len())
	count, _, err := f.cache.Usage()
	require.NoError(t, err)
	assert.Zero(t, count)
}
