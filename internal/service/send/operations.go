package send

import (
	"context"
	"errors"
	"fmt"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/reaction"
)

var errSuperseded = errors.New("attributes changed since write")

// Retry resends a failed message under its original uuid. Media messages
// reuse their source and restart the upload from zero.
func (s *SendService) Retry(ctx context.Context, uuid string) (entity.Message, error) {
	var att *Attachment
	row, err := s.messages.Modify(uuid, func(cur entity.Message, ok bool) (entity.MessagePatch, error) {
		if !ok {
			return entity.MessagePatch{}, ErrMessageNotFound
		}
		if cur.SendStatus != entity.SendStatusError {
			return entity.MessagePatch{}, fmt.Errorf("%w: %s", ErrInvalidState, cur.SendStatus)
		}
		p := entity.MessagePatch{UUID: uuid, SendStatus: entity.Set(entity.SendStatusSending)}
		if cur.HasMedia() {
			s.mu.Lock()
			src, ok := s.sources[uuid]
			s.mu.Unlock()
			if !ok {
				return entity.MessagePatch{}, ErrSourceUnavailable
			}
			att = &src
			p.MediaStatus = entity.Set(entity.MediaStatusUploading)
			p.MediaUploadedBytes = entity.Set(int64(0))
		}
		return p, nil
	})
	if err != nil {
		return entity.Message{}, err
	}
	s.log.Infof("Retrying message %s", uuid)
	return s.deliver(ctx, row, att)
}

// ToggleReaction toggles the local identity's reaction on a confirmed
// message and pushes the new attributes. Concurrent edits from other devices
// are resolved by the backend, last writer wins. A toggle the backend
// rejects is undone locally.
func (s *SendService) ToggleReaction(ctx context.Context, uuid string, t reaction.Type) (entity.Message, error) {
	if s.identity == "" {
		return entity.Message{}, ErrNoIdentity
	}
	if _, err := reaction.Parse(string(t)); err != nil {
		return entity.Message{}, err
	}

	var prev string
	row, err := s.messages.Modify(uuid, func(cur entity.Message, ok bool) (entity.MessagePatch, error) {
		if !ok {
			return entity.MessagePatch{}, ErrMessageNotFound
		}
		if !cur.Confirmed() {
			return entity.MessagePatch{}, ErrNotConfirmed
		}
		set := cur.Reactions().Toggle(t, s.identity)
		attrs, err := reaction.IntoAttributes(cur.Attributes, set)
		if err != nil {
			return entity.MessagePatch{}, err
		}
		prev = cur.Attributes
		return entity.MessagePatch{UUID: uuid, Attributes: entity.Set(attrs)}, nil
	})
	if err != nil {
		return entity.Message{}, err
	}

	if err := s.client.UpdateMessageAttributes(ctx, row.ConversationSid, row.Sid, row.Attributes); err != nil {
		return s.revertAttributes(row, prev), fmt.Errorf("failed to update message attributes: %w", err)
	}
	return row, nil
}

// revertAttributes restores prev on a row whose attributes the backend
// rejected, unless a newer write has replaced them since.
func (s *SendService) revertAttributes(written entity.Message, prev string) entity.Message {
	row, err := s.messages.Modify(written.UUID, func(cur entity.Message, ok bool) (entity.MessagePatch, error) {
		if !ok || cur.Attributes != written.Attributes {
			return entity.MessagePatch{}, errSuperseded
		}
		return entity.MessagePatch{UUID: written.UUID, Attributes: entity.Set(prev)}, nil
	})
	if err != nil {
		cur, _ := s.messages.Get(written.UUID)
		return cur
	}
	s.log.Debugf("Reverted reaction on %s", written.UUID)
	return row
}
