// Package remotetest provides a scriptable remote client for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"chatcache/internal/data/entity"
	"chatcache/internal/remote"
)

// Client is a fake remote.Client. Unset funcs return zero values.
type Client struct {
	SendMessageFunc             func(ctx context.Context, req *remote.SendRequest) (*remote.SendResult, error)
	UpdateMessageAttributesFunc func(ctx context.Context, conversationSid, messageSid, attributes string) error
	ParticipantsCountFunc       func(ctx context.Context, conversationSid string) (int, error)
	MessagesCountFunc           func(ctx context.Context, conversationSid string) (int, error)
	UnreadMessagesCountFunc     func(ctx context.Context, conversationSid string) (int, error)
	LastMessageFunc             func(ctx context.Context, conversationSid string) (entity.LastMessage, error)
	TemporaryMediaURLFunc       func(ctx context.Context, mediaSid string) (string, error)

	Sends             atomic.Int32
	AttributeUpdates  atomic.Int32
	ParticipantsCalls atomic.Int32
	MessagesCalls     atomic.Int32
	UnreadCalls       atomic.Int32
	LastMessageCalls  atomic.Int32
	MediaURLCalls     atomic.Int32

	mu       sync.Mutex
	handlers map[uint32]func(remote.Event)
	nextID   uint32
	sent     []remote.SendRequest
}

var _ remote.Client = (*Client)(nil)
var _ remote.EventSource = (*Client)(nil)

func (c *Client) SendMessage(ctx context.Context, req *remote.SendRequest) (*remote.SendResult, error) {
	n := c.Sends.Add(1)
	recorded := *req
	if req.Media != nil {
		media := *req.Media
		media.Content = nil
		recorded.Media = &media
	}
	c.mu.Lock()
	c.sent = append(c.sent, recorded)
	c.mu.Unlock()

	if c.SendMessageFunc != nil {
		return c.SendMessageFunc(ctx, req)
	}
	if req.Media != nil && req.Media.Content != nil {
		if _, err := io.Copy(io.Discard, req.Media.Content); err != nil {
			return nil, err
		}
	}
	res := &remote.SendResult{Sid: fmt.Sprintf("IM%d", n), Index: int64(n)}
	if req.Media != nil {
		res.MediaSid = fmt.Sprintf("ME%d", n)
	}
	return res, nil
}

// Sent returns every send request seen so far, without media content.
func (c *Client) Sent() []remote.SendRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.SendRequest(nil), c.sent...)
}

func (c *Client) UpdateMessageAttributes(ctx context.Context, conversationSid, messageSid, attributes string) error {
	c.AttributeUpdates.Add(1)
	if c.UpdateMessageAttributesFunc != nil {
		return c.UpdateMessageAttributesFunc(ctx, conversationSid, messageSid, attributes)
	}
	return nil
}

func (c *Client) ParticipantsCount(ctx context.Context, conversationSid string) (int, error) {
	c.ParticipantsCalls.Add(1)
	if c.ParticipantsCountFunc != nil {
		return c.ParticipantsCountFunc(ctx, conversationSid)
	}
	return 0, nil
}

func (c *Client) MessagesCount(ctx context.Context, conversationSid string) (int, error) {
	c.MessagesCalls.Add(1)
	if c.MessagesCountFunc != nil {
		return c.MessagesCountFunc(ctx, conversationSid)
	}
	return 0, nil
}

func (c *Client) UnreadMessagesCount(ctx context.Context, conversationSid string) (int, error) {
	c.UnreadCalls.Add(1)
	if c.UnreadMessagesCountFunc != nil {
		return c.UnreadMessagesCountFunc(ctx, conversationSid)
	}
	return 0, nil
}

func (c *Client) LastMessage(ctx context.Context, conversationSid string) (entity.LastMessage, error) {
	c.LastMessageCalls.Add(1)
	if c.LastMessageFunc != nil {
		return c.LastMessageFunc(ctx, conversationSid)
	}
	return entity.LastMessage{}, nil
}

func (c *Client) TemporaryMediaURL(ctx context.Context, mediaSid string) (string, error) {
	c.MediaURLCalls.Add(1)
	if c.TemporaryMediaURLFunc != nil {
		return c.TemporaryMediaURLFunc(ctx, mediaSid)
	}
	return "", remote.ErrNotFound
}

// AddEventHandler registers a handler for Emit.
func (c *Client) AddEventHandler(handler func(remote.Event)) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[uint32]func(remote.Event))
	}
	c.nextID++
	c.handlers[c.nextID] = handler
	return c.nextID
}

// Emit delivers evt to every registered handler.
func (c *Client) Emit(evt remote.Event) {
	c.mu.Lock()
	handlers := make([]func(remote.Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

// Batched wraps a Client with a CountsFetcher.
type Batched struct {
	*Client
	CountsFunc func(ctx context.Context, conversationSid string) (remote.Counts, error)
	CountCalls atomic.Int32
}

var _ remote.CountsFetcher = (*Batched)(nil)

func (b *Batched) Counts(ctx context.Context, conversationSid string) (remote.Counts, error) {
	b.CountCalls.Add(1)
	if b.CountsFunc != nil {
		return b.CountsFunc(ctx, conversationSid)
	}
	return remote.Counts{}, nil
}
