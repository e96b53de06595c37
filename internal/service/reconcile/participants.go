package reconcile

import (
	"context"
	"fmt"

	"chatcache/internal/data/entity"
	"chatcache/internal/remote"
)

// OnParticipantChanged upserts a participant. Aggregates are refreshed when
// it joins or its read horizon moves; typing updates only touch the row.
func (s *Service) OnParticipantChanged(ctx context.Context, evt remote.Event) error {
	p, err := decodeParticipant(evt.Key, newFieldSet(evt.Fields))
	if err != nil {
		return err
	}
	if evt.ConversationSid != "" {
		p.ConversationSid = entity.Set(evt.ConversationSid)
		if err := s.ensureConversation(evt.ConversationSid); err != nil {
			return err
		}
	}

	rows, err := s.store.Participants.Upsert(p)
	if err != nil {
		return fmt.Errorf("failed to upsert participant %s: %w", evt.Key, err)
	}
	if evt.Type == remote.EventAdded || p.LastReadMessageIndex.IsSet() {
		s.RefreshStats(rows[0].ConversationSid)
	}
	return nil
}

// OnParticipantDeleted removes a participant.
func (s *Service) OnParticipantDeleted(ctx context.Context, evt remote.Event) error {
	cur, ok := s.store.Participants.Get(evt.Key)
	if !ok {
		return nil
	}
	s.store.Participants.Delete(evt.Key)
	s.RefreshStats(cur.ConversationSid)
	return nil
}
