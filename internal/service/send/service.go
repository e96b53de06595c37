// Package send implements the outbound message lifecycle.
//
// A message is inserted optimistically as "sending" before the backend is
// called, and ends as "sent" with its server sid or as "error". No store lock
// is held across the remote call.
package send

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/mediacache"
	"chatcache/internal/data/store"
	"chatcache/internal/infra/config"
	"chatcache/internal/infra/metrics"
	"chatcache/internal/remote"
)

// SendService sends messages through the backend and tracks their state in
// the store.
type SendService struct {
	client   remote.Client
	messages *store.Messages
	media    *store.MediaTable
	cache    *mediacache.Cache
	identity string
	config   config.MediaConfig
	metrics  *metrics.Metrics
	log      waLog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	sources  map[string]Attachment
	stopped  bool
	wg       sync.WaitGroup
}

// NewSendService creates a new SendService. cache may be nil.
func NewSendService(
	client remote.Client,
	messages *store.Messages,
	media *store.MediaTable,
	cache *mediacache.Cache,
	identity string,
	cfg config.MediaConfig,
	m *metrics.Metrics,
	log waLog.Logger,
) *SendService {
	return &SendService{
		client:   client,
		messages: messages,
		media:    media,
		cache:    cache,
		identity: identity,
		config:   cfg,
		metrics:  m,
		log:      log.Sub("SendService"),
		inflight: make(map[string]context.CancelFunc),
		sources:  make(map[string]Attachment),
	}
}

// Send sends a text message. The returned message is the final row; on
// failure it is in error state and the error is returned alongside.
func (s *SendService) Send(ctx context.Context, conversationSid, body string, opts ...Option) (entity.Message, error) {
	if conversationSid == "" {
		return entity.Message{}, errors.New("conversation sid is required")
	}
	cfg := applyOptions(opts)
	p := s.optimistic(conversationSid, body, cfg)

	rows, err := s.messages.Upsert(p)
	if err != nil {
		return entity.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return s.deliver(ctx, rows[0], nil)
}

func (s *SendService) optimistic(conversationSid, body string, cfg *sendConfig) entity.MessagePatch {
	id := cfg.UUID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return entity.MessagePatch{
		UUID:            id,
		ConversationSid: entity.Set(conversationSid),
		Author:          entity.Set(s.identity),
		Body:            entity.Set(body),
		Direction:       entity.Set(entity.DirectionOutgoing),
		DateCreated:     entity.Set(now),
		DateUpdated:     entity.Set(now),
		SendStatus:      entity.Set(entity.SendStatusSending),
		Attributes:      entity.Set(cfg.Attributes),
	}
}

// deliver performs the remote send of msg and records the outcome.
func (s *SendService) deliver(ctx context.Context, msg entity.Message, att *Attachment) (entity.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return s.fail(msg, att != nil, ErrStopped)
	}
	s.inflight[msg.UUID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, msg.UUID)
		s.mu.Unlock()
		cancel()
		s.wg.Done()
	}()

	req := &remote.SendRequest{
		ConversationSid: msg.ConversationSid,
		UUID:            msg.UUID,
		Body:            msg.Body,
		Attributes:      msg.Attributes,
	}

	var size int64
	if att != nil {
		rc, n, err := att.open()
		if err != nil {
			return s.fail(msg, true, err)
		}
		defer rc.Close()
		size = n
		req.Media = &remote.Upload{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        n,
			Content:     s.progress(msg.UUID, rc),
		}
	}

	res, err := s.client.SendMessage(ctx, req)
	if err != nil {
		return s.fail(msg, att != nil, err)
	}

	p := entity.MessagePatch{
		UUID:       msg.UUID,
		Sid:        entity.Set(res.Sid),
		Index:      entity.Set(res.Index),
		SendStatus: entity.Set(entity.SendStatusSent),
	}
	if !res.DateCreated.IsZero() {
		p.DateCreated = entity.Set(res.DateCreated)
	}
	if att != nil {
		p.MediaSid = entity.Set(res.MediaSid)
		p.MediaStatus = entity.Set(entity.MediaStatusUploaded)
		p.MediaUploadedBytes = entity.Set(size)
		if path := s.keepUpload(msg, res, att, size); path != "" {
			p.MediaLocalPath = entity.Set(path)
		}
		s.mu.Lock()
		delete(s.sources, msg.UUID)
		s.mu.Unlock()
	}

	row, ok, err := s.messages.Update(p)
	if err != nil {
		return msg, fmt.Errorf("failed to record sent message: %w", err)
	}
	if !ok {
		s.log.Debugf("Message %s was removed while sending", msg.UUID)
		return msg, ErrMessageNotFound
	}
	s.metrics.Sent(metrics.OutcomeOK)
	s.log.Debugf("Sent message %s as %s", msg.UUID, res.Sid)
	return row, nil
}

// fail records a failed send.
func (s *SendService) fail(msg entity.Message, hasMedia bool, cause error) (entity.Message, error) {
	p := entity.MessagePatch{UUID: msg.UUID, SendStatus: entity.Set(entity.SendStatusError)}
	if hasMedia {
		p.MediaStatus = entity.Set(entity.MediaStatusError)
	}
	row, ok, err := s.messages.Update(p)
	if err != nil {
		s.log.Errorf("Failed to record send failure of %s: %v", msg.UUID, err)
	}
	if !ok {
		row = msg
	}

	if errors.Is(cause, context.Canceled) || errors.Is(cause, ErrStopped) {
		s.metrics.Sent(metrics.OutcomeCancelled)
		s.log.Infof("Send of %s cancelled", msg.UUID)
	} else {
		s.metrics.Sent(metrics.OutcomeError)
		s.log.Warnf("Failed to send message %s: %v", msg.UUID, cause)
	}
	return row, fmt.Errorf("failed to send message: %w", cause)
}

// Stop cancels every in-flight send and waits until each has recorded its
// outcome. Sends started afterwards fail with ErrStopped.
func (s *SendService) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, cancel := range s.inflight {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Cancel cancels the in-flight send of uuid and reports whether one was
// running.
func (s *SendService) Cancel(uuid string) bool {
	s.mu.Lock()
	cancel, ok := s.inflight[uuid]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
