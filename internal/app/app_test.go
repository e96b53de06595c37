package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcache/internal/data/entity"
	"chatcache/internal/infra/config"
	"chatcache/internal/remote"
	"chatcache/internal/remote/remotetest"
	"chatcache/internal/service/send"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.StorePath = t.TempDir()
	cfg.LogLevel = "ERROR"
	cfg.Identity = "alice"
	cfg.Store.FlushDelay = 10 * time.Millisecond
	return cfg
}

func TestEventsPersistAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	client := &remotetest.Client{
		UnreadMessagesCountFunc: func(ctx context.Context, sid string) (int, error) { return 2, nil },
	}
	reg := prometheus.NewRegistry()

	a, err := New(cfg, client, reg)
	require.NoError(t, err)

	client.Emit(remote.Event{
		Type:   remote.EventAdded,
		Kind:   entity.KindConversation,
		Key:    "C1",
		Fields: remote.MustFields(map[string]any{"friendlyName": "Team"}),
	})
	_, err = a.SendService.Send(context.Background(), "C1", "hello")
	require.NoError(t, err)
	a.Reconcile.Wait()

	require.Eventually(t, func() bool { return a.Unread.Total() == 2 }, time.Second, 5*time.Millisecond)
	sends, err := testutil.GatherAndCount(reg, "chatcache_lifecycle_sends_total")
	require.NoError(t, err)
	assert.Equal(t, 1, sends)
	require.NoError(t, a.Shutdown())

	b, err := New(cfg, remote.Offline{}, nil)
	require.NoError(t, err)
	defer b.Shutdown()

	conv, ok := b.Store.Conversations.Get("C1")
	require.True(t, ok)
	assert.Equal(t, "Team", conv.FriendlyName)
	assert.Equal(t, 2, conv.UnreadCount)
	assert.Equal(t, 1, b.Store.Messages.Len())
	assert.Equal(t, 2, b.Unread.Total())
}

func TestWipe(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, remote.Offline{}, nil)
	require.NoError(t, err)

	require.NoError(t, a.Reconcile.Apply(context.Background(), remote.Event{
		Type: remote.EventAdded, Kind: entity.KindMessage, Key: "IM1", ConversationSid: "C1",
	}))
	require.NoError(t, a.Wipe())
	a.Reconcile.Wait()
	require.NoError(t, a.Shutdown())

	b, err := New(cfg, remote.Offline{}, nil)
	require.NoError(t, err)
	defer b.Shutdown()
	assert.Equal(t, 0, b.Store.Stats().Messages)
	assert.Equal(t, 0, b.Store.Stats().Conversations)
}

func TestShutdownDuringSendLeavesRetryableMessage(t *testing.T) {
	cfg := testConfig(t)
	client := &remotetest.Client{
		SendMessageFunc: func(ctx context.Context, req *remote.SendRequest) (*remote.SendResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	a, err := New(cfg, client, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := a.SendService.Send(context.Background(), "C1", "hello", send.WithUUID("u1"))
		done <- err
	}()
	require.Eventually(t, func() bool { return client.Sends.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Shutdown())
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not finish on shutdown")
	}

	b, err := New(cfg, &remotetest.Client{}, nil)
	require.NoError(t, err)
	defer b.Shutdown()

	msg, ok := b.Store.Messages.Get("u1")
	require.True(t, ok)
	assert.Equal(t, entity.SendStatusError, msg.SendStatus)

	msg, err = b.SendService.Retry(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.SendStatusSent, msg.SendStatus)
}
