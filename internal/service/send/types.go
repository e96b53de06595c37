package send

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chatcache/internal/utils/media"
)

var (
	// ErrMessageNotFound is returned when no cached message has the uuid.
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidState is returned when retrying a message that has not failed.
	ErrInvalidState = errors.New("message is not in error state")
	// ErrSourceUnavailable is returned when the source of a failed media
	// message is gone, as after a restart.
	ErrSourceUnavailable = errors.New("media source unavailable")
	// ErrNotConfirmed is returned for operations that need a server sid.
	ErrNotConfirmed = errors.New("message is not confirmed")
	// ErrNoIdentity is returned when reacting without a local identity.
	ErrNoIdentity = errors.New("local identity is not configured")
	// ErrTooLarge is returned for attachments over the size limit.
	ErrTooLarge = errors.New("attachment exceeds size limit")
	// ErrStopped is returned for sends attempted after Stop.
	ErrStopped = errors.New("send service stopped")
)

// Attachment is an outbound media source. It is reopened for every attempt.
type Attachment struct {
	Filename    string
	ContentType string

	data []byte
	path string
}

// Bytes creates an attachment from memory.
func Bytes(filename, contentType string, data []byte) Attachment {
	if contentType == "" {
		contentType = media.ContentType(filename)
	}
	return Attachment{Filename: filename, ContentType: contentType, data: data}
}

// File creates an attachment read from path.
func File(path, contentType string) Attachment {
	filename := filepath.Base(path)
	if contentType == "" {
		contentType = media.ContentType(filename)
	}
	return Attachment{Filename: filename, ContentType: contentType, path: path}
}

func (a Attachment) open() (io.ReadCloser, int64, error) {
	if a.path == "" {
		return io.NopCloser(bytes.NewReader(a.data)), int64(len(a.data)), nil
	}
	f, err := os.Open(a.path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Option configures a send.
type Option func(*sendConfig)

type sendConfig struct {
	UUID       string
	Attributes string
}

// WithUUID sets the client identifier instead of minting one.
func WithUUID(uuid string) Option {
	return func(c *sendConfig) {
		c.UUID = uuid
	}
}

// WithAttributes sets the message attributes JSON.
func WithAttributes(attributes string) Option {
	return func(c *sendConfig) {
		c.Attributes = attributes
	}
}

func applyOptions(opts []Option) *sendConfig {
	cfg := &sendConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
