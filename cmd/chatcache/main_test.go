package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcache/internal/app"
	"chatcache/internal/data/entity"
	"chatcache/internal/infra/config"
	"chatcache/internal/remote"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func seed(t *testing.T, dir string) {
	t.Helper()
	cfg := config.Default()
	cfg.StorePath = dir
	cfg.LogLevel = "ERROR"
	a, err := app.New(cfg, remote.Offline{}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Reconcile.Apply(ctx, remote.Event{
		Type: remote.EventAdded, Kind: entity.KindConversation, Key: "C1",
		Fields: remote.MustFields(map[string]any{"friendlyName": "Team", "unreadMessagesCount": 4}),
	}))
	require.NoError(t, a.Reconcile.Apply(ctx, remote.Event{
		Type: remote.EventAdded, Kind: entity.KindMessage, Key: "IM1", ConversationSid: "C1",
		Fields: remote.MustFields(map[string]any{"author": "bob", "body": "hello there", "index": 0}),
	}))
	a.Reconcile.Wait()
	require.NoError(t, a.Shutdown())
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out := run(t, "inspect", "--store", dir)
	assert.Contains(t, out, "Conversations: 1")
	assert.Contains(t, out, "Messages:      1")

	out = run(t, "conversations", "--store", dir)
	assert.Contains(t, out, "Team")

	out = run(t, "messages", "C1", "--store", dir)
	assert.Contains(t, out, "hello there")

	out = run(t, "wipe", "--yes", "--store", dir)
	assert.Contains(t, out, "Cache wiped.")

	out = run(t, "inspect", "--store", dir)
	assert.Contains(t, out, "Conversations: 0")
}
