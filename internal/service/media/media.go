// Package media provides the inbound attachment lifecycle.
//
// MediaService resolves a message's temporary media URL, downloads it into
// the media cache and records the transfer state on the message. A cached
// attachment is served without touching the network, and concurrent
// requests for one media sid share a single download.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/sync/singleflight"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/mediacache"
	"chatcache/internal/data/store"
	"chatcache/internal/infra/metrics"
	"chatcache/internal/remote"
)

var (
	// ErrMessageNotFound is returned when no confirmed message has the index.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNoMedia is returned for messages without an attachment.
	ErrNoMedia = errors.New("message has no media")
)

// MediaService downloads message attachments.
type MediaService struct {
	client     remote.Client
	messages   *store.Messages
	media      *store.MediaTable
	cache      *mediacache.Cache
	downloader Downloader
	metrics    *metrics.Metrics
	log        waLog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	group  singleflight.Group
	mu      sync.Mutex
	active  map[string]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewMediaService creates a new MediaService.
func NewMediaService(
	client remote.Client,
	messages *store.Messages,
	media *store.MediaTable,
	cache *mediacache.Cache,
	downloader Downloader,
	m *metrics.Metrics,
	log waLog.Logger,
) *MediaService {
	ctx, stop := context.WithCancel(context.Background())
	return &MediaService{
		client:     client,
		messages:   messages,
		media:      media,
		cache:      cache,
		downloader: downloader,
		metrics:    m,
		log:        log.Sub("MediaService"),
		ctx:        ctx,
		stop:       stop,
		active:     make(map[string]context.CancelFunc),
	}
}

// Stop cancels every running download and waits until each has recorded
// its outcome.
func (s *MediaService) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stop()
	s.wg.Wait()
}

// StartDownload makes the attachment of the message at index available
// locally and returns the updated message. Returning early because ctx is
// done leaves a shared download running.
func (s *MediaService) StartDownload(ctx context.Context, conversationSid string, index int64) (entity.Message, error) {
	msg, err := s.find(conversationSid, index)
	if err != nil {
		return entity.Message{}, err
	}
	if msg.MediaSid == "" {
		return msg, ErrNoMedia
	}

	if e, ok := s.cache.Lookup(msg.MediaSid); ok {
		s.metrics.Downloaded(metrics.OutcomeCached)
		return s.record(msg.MediaSid, entity.MediaStatusDownloaded, e.Path, e.Size, msg)
	}

	ch := s.group.DoChan(msg.MediaSid, func() (any, error) {
		return s.download(msg)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			cur, _ := s.messages.Get(msg.UUID)
			return cur, res.Err
		}
		cur, ok := s.messages.Get(msg.UUID)
		if !ok {
			return msg, ErrMessageNotFound
		}
		return cur, nil
	case <-ctx.Done():
		return msg, ctx.Err()
	}
}

func (s *MediaService) find(conversationSid string, index int64) (entity.Message, error) {
	rows := s.messages.Query(func(m entity.Message) bool {
		return m.ConversationSid == conversationSid && m.Confirmed() && m.Index == index
	}, nil)
	if len(rows) == 0 {
		return entity.Message{}, fmt.Errorf("%w: %s #%d", ErrMessageNotFound, conversationSid, index)
	}
	return rows[0], nil
}

// download runs once per media sid at a time.
func (s *MediaService) download(msg entity.Message) (mediacache.Entry, error) {
	mediaSid := msg.MediaSid
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return mediacache.Entry{}, context.Canceled
	}
	s.active[mediaSid] = cancel
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, mediaSid)
		s.mu.Unlock()
		cancel()
		s.wg.Done()
	}()

	contentType, filename := msg.MediaContentType, msg.MediaFilename
	if m, ok := s.media.Get(mediaSid); ok {
		if contentType == "" {
			contentType = m.ContentType
		}
		if filename == "" {
			filename = m.Filename
		}
	}

	if _, err := s.record(mediaSid, entity.MediaStatusDownloading, "", 0, msg); err != nil {
		return mediacache.Entry{}, err
	}
	s.log.Debugf("Downloading media %s", mediaSid)

	e, err := s.fetch(ctx, mediaSid, contentType, filename)
	if err != nil {
		if _, rerr := s.record(mediaSid, entity.MediaStatusError, "", 0, msg); rerr != nil {
			s.log.Errorf("Failed to record download failure of %s: %v", mediaSid, rerr)
		}
		if errors.Is(err, context.Canceled) {
			s.metrics.Downloaded(metrics.OutcomeCancelled)
			s.log.Infof("Download of %s cancelled", mediaSid)
		} else {
			s.metrics.Downloaded(metrics.OutcomeError)
			s.log.Warnf("Failed to download media %s: %v", mediaSid, err)
		}
		return e, err
	}

	s.metrics.Downloaded(metrics.OutcomeOK)
	if _, err := s.record(mediaSid, entity.MediaStatusDownloaded, e.Path, e.Size, msg); err != nil {
		return e, err
	}
	return e, nil
}

func (s *MediaService) fetch(ctx context.Context, mediaSid, contentType, filename string) (mediacache.Entry, error) {
	url, err := s.client.TemporaryMediaURL(ctx, mediaSid)
	if err != nil {
		return mediacache.Entry{}, fmt.Errorf("failed to get media url: %w", err)
	}
	return s.cache.Put(mediaSid, contentType, filename, func(w io.Writer) error {
		_, err := s.downloader.Download(ctx, url, w)
		return err
	})
}

// record sets the transfer state on every message referencing mediaSid and
// returns the row of msg.
func (s *MediaService) record(mediaSid string, status entity.MediaStatus, path string, size int64, msg entity.Message) (entity.Message, error) {
	mine := msg
	for _, m := range s.messages.Query(func(m entity.Message) bool { return m.MediaSid == mediaSid }, nil) {
		p := entity.MessagePatch{UUID: m.UUID, MediaStatus: entity.Set(status)}
		if status == entity.MediaStatusDownloaded {
			p.MediaLocalPath = entity.Set(path)
			p.MediaSize = entity.Set(size)
		}
		row, ok, err := s.messages.Update(p)
		if err != nil {
			return msg, fmt.Errorf("failed to update media status: %w", err)
		}
		if ok && row.UUID == msg.UUID {
			mine = row
		}
	}
	return mine, nil
}

// Cancel cancels the running download of mediaSid and reports whether one
// was running.
func (s *MediaService) Cancel(mediaSid string) bool {
	s.mu.Lock()
	cancel, ok := s.active[mediaSid]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
