// Package reconcile applies remote entity deltas to the local store.
//
// Each event is decoded into a partial patch and merged into the row it
// names. Parents are stubbed when a child arrives first, deletes cascade, and
// conversation aggregates are refreshed in the background after membership
// or message changes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/mediacache"
	"chatcache/internal/data/store"
	"chatcache/internal/infra/config"
	"chatcache/internal/infra/metrics"
	"chatcache/internal/remote"
)

const defaultStatsTimeout = 15 * time.Second

// Service is the reconciliation engine.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	log      waLog.Logger
	client   remote.Client
	cache    *mediacache.Cache
	identity string
	stats    config.StatsConfig
	metrics  *metrics.Metrics

	// Internal dispatcher
	dispatcher *Dispatcher

	store *store.Store
	wg    sync.WaitGroup
}

// NewService creates the engine. cache may be nil. Background refreshes stop
// when ctx is done or Close is called.
func NewService(
	ctx context.Context,
	log waLog.Logger,
	st *store.Store,
	client remote.Client,
	cache *mediacache.Cache,
	identity string,
	stats config.StatsConfig,
	m *metrics.Metrics,
) *Service {
	if stats.Timeout <= 0 {
		stats.Timeout = defaultStatsTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:      ctx,
		cancel:   cancel,
		log:      log.Sub("Reconcile"),
		client:   client,
		cache:    cache,
		identity: identity,
		stats:    stats,
		metrics:  m,
		store:    st,
	}
	s.dispatcher = NewDispatcher(s, s.log)
	return s
}

// Apply applies one event and reports why it was rejected.
func (s *Service) Apply(ctx context.Context, evt remote.Event) error {
	return s.dispatcher.Handle(ctx, evt)
}

// Handle applies evt and logs failures. It is the remote.EventSource handler.
func (s *Service) Handle(evt remote.Event) {
	if err := s.Apply(s.ctx, evt); err != nil {
		s.log.Errorf("Failed to apply %s %s %s: %v", evt.Kind, evt.Type, evt.Key, err)
	}
}

// Wait blocks until background refreshes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background refreshes and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wipe empties every table and the media cache.
func (s *Service) Wipe() error {
	s.store.Wipe()
	if s.cache != nil {
		if err := s.cache.Purge(); err != nil {
			return fmt.Errorf("failed to purge media cache: %w", err)
		}
	}
	s.log.Infof("Cache wiped")
	return nil
}

// ensureConversation stubs the conversation sid if no row exists yet.
func (s *Service) ensureConversation(sid string) error {
	if _, ok := s.store.Conversations.Get(sid); ok {
		return nil
	}
	_, err := s.store.Conversations.Modify(sid, func(_ entity.Conversation, ok bool) (entity.ConversationPatch, error) {
		if ok {
			return entity.ConversationPatch{}, errUnchanged
		}
		return entity.ConversationPatch{Sid: sid}, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("failed to stub conversation %s: %w", sid, err)
	}
	return nil
}

func requireConversation(evt remote.Event) error {
	if evt.ConversationSid == "" {
		return fmt.Errorf("%w: %s %s without conversation sid", ErrMalformedEvent, evt.Kind, evt.Key)
	}
	return nil
}
