package remote

import (
	"context"
	"errors"

	"chatcache/internal/data/entity"
)

// ErrOffline is returned by Offline for every call.
var ErrOffline = errors.New("no remote connection")

// Offline is a Client for working on the local cache alone.
type Offline struct{}

var _ Client = Offline{}

func (Offline) SendMessage(context.Context, *SendRequest) (*SendResult, error) {
	return nil, ErrOffline
}

func (Offline) UpdateMessageAttributes(context.Context, string, string, string) error {
	return ErrOffline
}

func (Offline) ParticipantsCount(context.Context, string) (int, error) { return 0, ErrOffline }
func (Offline) MessagesCount(context.Context, string) (int, error)     { return 0, ErrOffline }
func (Offline) UnreadMessagesCount(context.Context, string) (int, error) {
	return 0, ErrOffline
}

func (Offline) LastMessage(context.Context, string) (entity.LastMessage, error) {
	return entity.LastMessage{}, ErrOffline
}

func (Offline) TemporaryMediaURL(context.Context, string) (string, error) {
	return "", ErrOffline
}
