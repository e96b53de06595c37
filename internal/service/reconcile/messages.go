package reconcile

import (
	"context"
	"errors"
	"fmt"

	"chatcache/internal/data/entity"
	"chatcache/internal/remote"
)

// OnMessageAdded stores a confirmed message. An echo of a local send carries
// its uuid and lands on the optimistic row.
func (s *Service) OnMessageAdded(ctx context.Context, evt remote.Event) error {
	if err := requireConversation(evt); err != nil {
		return err
	}
	p, attachment, err := s.decodeMessage(evt)
	if err != nil {
		return err
	}
	p.SendStatus = entity.Set(entity.SendStatusSent)

	if err := s.ensureConversation(evt.ConversationSid); err != nil {
		return err
	}
	msg, err := s.upsertMessage(p, attachment)
	if err != nil {
		return err
	}
	s.updateLastMessage(msg)
	s.RefreshStats(evt.ConversationSid)
	return nil
}

// OnMessageUpdated merges the changed message fields.
func (s *Service) OnMessageUpdated(ctx context.Context, evt remote.Event) error {
	p, attachment, err := s.decodeMessage(evt)
	if err != nil {
		return err
	}
	if evt.ConversationSid != "" {
		if err := s.ensureConversation(evt.ConversationSid); err != nil {
			return err
		}
	}
	_, err = s.upsertMessage(p, attachment)
	return err
}

// OnMessageDeleted removes the message of sid with its attachment.
func (s *Service) OnMessageDeleted(ctx context.Context, evt remote.Event) error {
	msg, ok := s.store.Messages.GetByAlt(evt.Key)
	if !ok {
		return nil
	}
	s.store.Messages.Delete(msg.UUID)

	mediaSids := make(map[string]struct{})
	if msg.MediaSid != "" {
		mediaSids[msg.MediaSid] = struct{}{}
	}
	for _, m := range s.store.Media.Query(func(m entity.Media) bool { return m.MessageSid == evt.Key }, nil) {
		mediaSids[m.Sid] = struct{}{}
	}
	var errs []error
	for sid := range mediaSids {
		s.store.Media.Delete(sid)
		if s.cache != nil {
			if err := s.cache.Delete(sid); err != nil {
				errs = append(errs, fmt.Errorf("failed to delete cached media %s: %w", sid, err))
			}
		}
	}

	if conv, ok := s.store.Conversations.Get(msg.ConversationSid); ok && conv.LastMessage.Sid == msg.Sid {
		if _, _, err := s.store.Conversations.Update(entity.ConversationPatch{
			Sid:         conv.Sid,
			LastMessage: entity.Set(entity.LastMessage{}),
		}); err != nil {
			errs = append(errs, err)
		}
	}
	s.RefreshStats(msg.ConversationSid)
	return errors.Join(errs...)
}

func (s *Service) decodeMessage(evt remote.Event) (entity.MessagePatch, *entity.Media, error) {
	p, mf, err := decodeMessage(evt.Key, newFieldSet(evt.Fields))
	if err != nil {
		return p, nil, err
	}
	if evt.ConversationSid != "" {
		p.ConversationSid = entity.Set(evt.ConversationSid)
	}
	if author, ok := p.Author.Get(); ok {
		p.Direction = entity.Set(s.direction(author))
	}
	if mf == nil {
		return p, nil, nil
	}

	convSid := evt.ConversationSid
	if convSid == "" {
		if cur, ok := s.store.Messages.GetByAlt(evt.Key); ok {
			convSid = cur.ConversationSid
		}
	}
	attachment, err := entity.NewMedia(mf.Sid, evt.Key, convSid, mf.Filename, mf.ContentType, mf.Size, mf.Category)
	if err != nil {
		s.log.Warnf("Dropping attachment of message %s: %v", evt.Key, err)
		p.MediaSid = entity.Field[string]{}
		p.MediaFilename = entity.Field[string]{}
		p.MediaContentType = entity.Field[string]{}
		p.MediaSize = entity.Field[int64]{}
		return p, nil, nil
	}
	return p, &attachment, nil
}

func (s *Service) upsertMessage(p entity.MessagePatch, attachment *entity.Media) (entity.Message, error) {
	rows, err := s.store.Messages.Upsert(p)
	if err != nil {
		return entity.Message{}, fmt.Errorf("failed to upsert message %s: %w", p.AltKey(), err)
	}
	msg := rows[0]
	if attachment != nil {
		if attachment.ConversationSid == "" {
			attachment.ConversationSid = msg.ConversationSid
		}
		if _, err := s.store.Media.Upsert(attachment.Patch()); err != nil {
			return msg, fmt.Errorf("failed to upsert media %s: %w", attachment.Sid, err)
		}
	}
	return msg, nil
}

func (s *Service) direction(author string) entity.Direction {
	if s.identity != "" && author == s.identity {
		return entity.DirectionOutgoing
	}
	return entity.DirectionIncoming
}
