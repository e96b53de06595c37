// Package remote defines the collaborators the cache talks to: the
// messaging backend client and its stream of entity deltas.
package remote

import (
	"context"
	"errors"
	"io"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"chatcache/internal/data/entity"
)

// ErrNotFound is returned by clients for entities the backend does not know.
var ErrNotFound = errors.New("remote entity not found")

// EventType is the kind of delta.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is one entity delta from the backend.
//
// Fields carries the changed attributes in camelCase. An absent field is
// unchanged; a present null clears it.
type Event struct {
	Type            EventType
	Kind            entity.Kind
	Key             string
	ConversationSid string
	Fields          *structpb.Struct
}

// SendRequest is an outbound message.
type SendRequest struct {
	ConversationSid string
	UUID            string
	Body            string
	Attributes      string
	Media           *Upload
}

// Upload is an outbound attachment. Content is read once per attempt.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// SendResult is the server's answer to a send.
type SendResult struct {
	Sid         string
	Index       int64
	DateCreated time.Time
	MediaSid    string
}

// Counts is a batched aggregate snapshot of a conversation.
type Counts struct {
	Participants int
	Messages     int
	Unread       int
}

// Client is the messaging backend.
type Client interface {
	SendMessage(ctx context.Context, req *SendRequest) (*SendResult, error)
	UpdateMessageAttributes(ctx context.Context, conversationSid, messageSid, attributes string) error

	ParticipantsCount(ctx context.Context, conversationSid string) (int, error)
	MessagesCount(ctx context.Context, conversationSid string) (int, error)
	UnreadMessagesCount(ctx context.Context, conversationSid string) (int, error)
	LastMessage(ctx context.Context, conversationSid string) (entity.LastMessage, error)

	TemporaryMediaURL(ctx context.Context, mediaSid string) (string, error)
}

// CountsFetcher is implemented by clients that can fetch every aggregate of
// a conversation in one round trip.
type CountsFetcher interface {
	Counts(ctx context.Context, conversationSid string) (Counts, error)
}

// EventSource is implemented by clients that push deltas.
type EventSource interface {
	AddEventHandler(handler func(Event)) uint32
}
