package reconcile

import (
	"context"
	"errors"

	"chatcache/internal/data/entity"
	"chatcache/internal/infra/metrics"
	"chatcache/internal/remote"
)

// RefreshStats fetches the aggregates of a conversation in the background.
// Each aggregate is fetched and applied on its own, so one failure leaves
// the others current. Rows deleted meanwhile are not recreated.
func (s *Service) RefreshStats(sid string) {
	if sid == "" {
		return
	}

	if s.stats.Batch {
		if cf, ok := s.client.(remote.CountsFetcher); ok {
			s.spawn("counts", sid, func(ctx context.Context) error {
				c, err := cf.Counts(ctx, sid)
				if err != nil {
					return err
				}
				return s.applyStats(entity.ConversationPatch{
					Sid:               sid,
					ParticipantsCount: entity.Set(c.Participants),
					MessagesCount:     entity.Set(c.Messages),
					UnreadCount:       entity.Set(c.Unread),
				})
			})
			s.spawn("last_message", sid, s.refreshLastMessage(sid))
			return
		}
	}

	s.spawn("participants", sid, func(ctx context.Context) error {
		n, err := s.client.ParticipantsCount(ctx, sid)
		if err != nil {
			return err
		}
		return s.applyStats(entity.ConversationPatch{Sid: sid, ParticipantsCount: entity.Set(n)})
	})
	s.spawn("messages", sid, func(ctx context.Context) error {
		n, err := s.client.MessagesCount(ctx, sid)
		if err != nil {
			return err
		}
		return s.applyStats(entity.ConversationPatch{Sid: sid, MessagesCount: entity.Set(n)})
	})
	s.spawn("unread", sid, func(ctx context.Context) error {
		n, err := s.client.UnreadMessagesCount(ctx, sid)
		if err != nil {
			return err
		}
		return s.applyStats(entity.ConversationPatch{Sid: sid, UnreadCount: entity.Set(n)})
	})
	s.spawn("last_message", sid, s.refreshLastMessage(sid))
}

func (s *Service) refreshLastMessage(sid string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		lm, err := s.client.LastMessage(ctx, sid)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.advanceLastMessage(sid, lm)
	}
}

func (s *Service) applyStats(p entity.ConversationPatch) error {
	_, ok, err := s.store.Conversations.Update(p)
	if err == nil && !ok {
		s.log.Debugf("Conversation %s is gone, dropping stats", p.Sid)
	}
	return err
}

func (s *Service) spawn(aggregate, sid string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.stats.Timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				s.metrics.StatsRefreshed(aggregate, metrics.OutcomeCancelled)
				return
			}
			s.log.Errorf("Failed to refresh %s of %s: %v", aggregate, sid, err)
			s.metrics.StatsRefreshed(aggregate, metrics.OutcomeError)
			return
		}
		s.metrics.StatsRefreshed(aggregate, metrics.OutcomeOK)
	}()
}
