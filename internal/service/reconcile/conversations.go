package reconcile

import (
	"context"
	"errors"
	"fmt"

	"chatcache/internal/data/entity"
	"chatcache/internal/remote"
	"chatcache/internal/utils/media"
)

// previewText is the last-message type of a message without attachment.
const previewText = "text"

// errUnchanged aborts a Modify that has nothing to write.
var errUnchanged = errors.New("unchanged")

// OnConversationAdded upserts the conversation and refreshes its aggregates.
func (s *Service) OnConversationAdded(ctx context.Context, evt remote.Event) error {
	if err := s.upsertConversation(evt); err != nil {
		return err
	}
	s.RefreshStats(evt.Key)
	return nil
}

// OnConversationUpdated merges the changed conversation fields.
func (s *Service) OnConversationUpdated(ctx context.Context, evt remote.Event) error {
	return s.upsertConversation(evt)
}

func (s *Service) upsertConversation(evt remote.Event) error {
	p, err := decodeConversation(evt.Key, newFieldSet(evt.Fields))
	if err != nil {
		return err
	}
	if _, err := s.store.Conversations.Upsert(p); err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", evt.Key, err)
	}
	return nil
}

// DeleteConversation removes the conversation with its messages,
// participants, attachments and cached files. Deleting an unknown sid is a
// no-op.
func (s *Service) DeleteConversation(sid string) error {
	var mediaSids []string
	for _, m := range s.store.Media.Query(func(m entity.Media) bool { return m.ConversationSid == sid }, nil) {
		mediaSids = append(mediaSids, m.Sid)
	}
	for _, m := range s.store.Messages.Query(func(m entity.Message) bool {
		return m.ConversationSid == sid && m.MediaSid != ""
	}, nil) {
		mediaSids = append(mediaSids, m.MediaSid)
	}

	conversations := s.store.Conversations.Delete(sid)
	messages := s.store.Messages.DeleteWhere(func(m entity.Message) bool { return m.ConversationSid == sid })
	participants := s.store.Participants.DeleteWhere(func(p entity.Participant) bool { return p.ConversationSid == sid })
	attachments := s.store.Media.DeleteWhere(func(m entity.Media) bool { return m.ConversationSid == sid })

	var errs []error
	if s.cache != nil {
		for _, mediaSid := range mediaSids {
			if err := s.cache.Delete(mediaSid); err != nil {
				errs = append(errs, fmt.Errorf("failed to delete cached media %s: %w", mediaSid, err))
			}
		}
	}
	if conversations+messages+participants+attachments > 0 {
		s.log.Infof("Deleted conversation %s (%d messages, %d participants, %d attachments)",
			sid, messages, participants, attachments)
	}
	return errors.Join(errs...)
}

// updateLastMessage advances the preview to m unless a newer one is known.
func (s *Service) updateLastMessage(m entity.Message) {
	typ := previewText
	if m.HasMedia() {
		typ = string(media.Classify(m.MediaContentType, m.MediaFilename))
	}
	preview := entity.LastMessage{
		Sid:    m.Sid,
		Author: m.Author,
		Type:   typ,
		Index:  m.Index,
		Date:   m.DateCreated,
	}
	if err := s.advanceLastMessage(m.ConversationSid, preview); err != nil {
		s.log.Warnf("Failed to update last message of %s: %v", m.ConversationSid, err)
	}
}

// advanceLastMessage stores lm as the preview of sid when it is at least as
// recent as the current one. The conversation is never created here.
func (s *Service) advanceLastMessage(sid string, lm entity.LastMessage) error {
	_, err := s.store.Conversations.Modify(sid, func(cur entity.Conversation, ok bool) (entity.ConversationPatch, error) {
		if !ok {
			return entity.ConversationPatch{}, errUnchanged
		}
		last := cur.LastMessage
		if lm.IsZero() || lm == last || (!last.IsZero() && lm.Index < last.Index) {
			return entity.ConversationPatch{}, errUnchanged
		}
		return entity.ConversationPatch{Sid: sid, LastMessage: entity.Set(lm)}, nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}
