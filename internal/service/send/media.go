package send

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chatcache/internal/data/entity"
	"chatcache/internal/remote"
)

const defaultProgressStep = 64 * 1024

// SendMedia sends an attachment with an optional caption from opts. The
// source is kept until the send succeeds, so a failed send can be retried.
func (s *SendService) SendMedia(ctx context.Context, conversationSid string, att Attachment, body string, opts ...Option) (entity.Message, error) {
	if conversationSid == "" {
		return entity.Message{}, errors.New("conversation sid is required")
	}
	if att.Filename == "" {
		return entity.Message{}, errors.New("attachment filename is required")
	}
	rc, size, err := att.open()
	if err != nil {
		return entity.Message{}, err
	}
	rc.Close()
	if limit := s.config.MaxFileSize(); limit > 0 && size > limit {
		return entity.Message{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	cfg := applyOptions(opts)
	p := s.optimistic(conversationSid, body, cfg)
	p.MediaStatus = entity.Set(entity.MediaStatusUploading)
	p.MediaFilename = entity.Set(att.Filename)
	p.MediaContentType = entity.Set(att.ContentType)
	p.MediaSize = entity.Set(size)
	p.MediaUploadedBytes = entity.Set(int64(0))

	rows, err := s.messages.Upsert(p)
	if err != nil {
		return entity.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	s.mu.Lock()
	s.sources[p.UUID] = att
	s.mu.Unlock()
	return s.deliver(ctx, rows[0], &att)
}

// progress wraps r so uploaded bytes are recorded every progress step.
func (s *SendService) progress(uuid string, r io.Reader) io.Reader {
	step := s.config.ProgressStep()
	if step <= 0 {
		step = defaultProgressStep
	}
	return &progressReader{r: r, step: step, report: func(n int64) {
		if _, _, err := s.messages.Update(entity.MessagePatch{
			UUID:               uuid,
			MediaUploadedBytes: entity.Set(n),
		}); err != nil {
			s.log.Warnf("Failed to record upload progress of %s: %v", uuid, err)
		}
	}}
}

type progressReader struct {
	r        io.Reader
	step     int64
	n        int64
	reported int64
	report   func(n int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	if p.n-p.reported >= p.step || (errors.Is(err, io.EOF) && p.n > p.reported) {
		p.reported = p.n
		p.report(p.n)
	}
	return n, err
}

// keepUpload stores a sent attachment in the media cache and records its
// descriptor, so the sender never downloads it. It returns the cached path.
func (s *SendService) keepUpload(msg entity.Message, res *remote.SendResult, att *Attachment, size int64) string {
	if res.MediaSid == "" {
		return ""
	}
	m, err := entity.NewMedia(res.MediaSid, res.Sid, msg.ConversationSid, att.Filename, att.ContentType, size, entity.MediaCategoryMedia)
	if err != nil {
		s.log.Warnf("Failed to describe sent media %s: %v", res.MediaSid, err)
	} else if _, err := s.media.Upsert(m.Patch()); err != nil {
		s.log.Warnf("Failed to store sent media %s: %v", res.MediaSid, err)
	}

	if s.cache == nil {
		return ""
	}
	rc, _, err := att.open()
	if err != nil {
		s.log.Warnf("Failed to reopen sent media %s: %v", res.MediaSid, err)
		return ""
	}
	defer rc.Close()
	e, err := s.cache.PutReader(res.MediaSid, att.ContentType, att.Filename, rc)
	if err != nil {
		s.log.Warnf("Failed to cache sent media %s: %v", res.MediaSid, err)
		return ""
	}
	return e.Path
}
