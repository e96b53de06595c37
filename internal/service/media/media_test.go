package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/mediacache"
	"chatcache/internal/data/store"
	"chatcache/internal/remote"
	"chatcache/internal/remote/remotetest"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

type fixture struct {
	svc    *MediaService
	store  *store.Store
	client *remotetest.Client
	cache  *mediacache.Cache
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st := store.OpenMemory(waLog.Noop, store.Options{})
	t.Cleanup(func() { st.Close() })
	cache, err := mediacache.New(t.TempDir(), nil, 0, waLog.Noop)
	require.NoError(t, err)

	client := &remotetest.Client{
		TemporaryMediaURLFunc: func(ctx context.Context, mediaSid string) (string, error) {
			return srv.URL + "/" + mediaSid, nil
		},
	}
	svc := NewMediaService(client, st.Messages, st.Media, cache, NewHTTPDownloader(srv.Client(), 0, 0), nil, waLog.Noop)
	t.Cleanup(svc.Stop)
	return &fixture{svc: svc, store: st, client: client, cache: cache}
}

func (f *fixture) addMessage(t *testing.T, uuid, sid string, index int64, mediaSid string) {
	t.Helper()
	p := entity.MessagePatch{
		UUID:            uuid,
		Sid:             entity.Set(sid),
		ConversationSid: entity.Set("C1"),
		Index:           entity.Set(index),
	}
	if mediaSid != "" {
		p.MediaSid = entity.Set(mediaSid)
		p.MediaFilename = entity.Set("cat.png")
		p.MediaContentType = entity.Set("image/png")
	}
	_, err := f.store.Messages.Upsert(p)
	require.NoError(t, err)
}

func TestDownloadThenCacheHit(t *testing.T) {
	var hits atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("png-bytes"))
	})
	f.addMessage(t, "u1", "IM1", 3, "ME1")

	msg, err := f.svc.StartDownload(context.Background(), "C1", 3)
	require.NoError(t, err)
	assert.Equal(t, entity.MediaStatusDownloaded, msg.MediaStatus)
	assert.Equal(t, int64(9), msg.MediaSize)
	data, err := os.ReadFile(msg.MediaLocalPath)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	msg, err = f.svc.StartDownload(context.Background(), "C1", 3)
	require.NoError(t, err)
	assert.Equal(t, entity.MediaStatusDownloaded, msg.MediaStatus)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), f.client.MediaURLCalls.Load())
}

func TestDownloadErrors(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	f.addMessage(t, "u1", "IM1", 1, "")
	f.addMessage(t, "u2", "IM2", 2, "ME2")

	_, err := f.svc.StartDownload(context.Background(), "C1", 9)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = f.svc.StartDownload(context.Background(), "C1", 1)
	assert.ErrorIs(t, err, ErrNoMedia)

	msg, err := f.svc.StartDownload(context.Background(), "C1", 2)
	require.Error(t, err)
	assert.Equal(t, entity.MediaStatusError, msg.MediaStatus)
	assert.False(t, f.cache.Has("ME2"))
}

func TestMissingURLIsAnError(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	f.client.TemporaryMediaURLFunc = nil
	f.addMessage(t, "u1", "IM1", 1, "ME1")

	msg, err := f.svc.StartDownload(context.Background(), "C1", 1)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Equal(t, entity.MediaStatusError, msg.MediaStatus)
}

func TestConcurrentDownloadsShareOneFetch(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("shared"))
	})
	f.addMessage(t, "u1", "IM1", 1, "ME1")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.StartDownload(context.Background(), "C1", 1)
		}(i)
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, testTimeout, testTick)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
	msg, _ := f.store.Messages.Get("u1")
	assert.Equal(t, entity.MediaStatusDownloaded, msg.MediaStatus)
}

func TestCancelDownload(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	f.addMessage(t, "u1", "IM1", 1, "ME1")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.StartDownload(context.Background(), "C1", 1)
		done <- err
	}()
	<-started
	assert.True(t, f.svc.Cancel("ME1"))

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	msg, _ := f.store.Messages.Get("u1")
	assert.Equal(t, entity.MediaStatusError, msg.MediaStatus)
	assert.False(t, f.cache.Has("ME1"))
	assert.False(t, f.svc.Cancel("ME1"))
}

func TestStopWaitsForDownloads(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	f.addMessage(t, "u1", "IM1", 1, "ME1")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.StartDownload(context.Background(), "C1", 1)
		done <- err
	}()
	<-started

	f.svc.Stop()
	msg, _ := f.store.Messages.Get("u1")
	assert.Equal(t, entity.MediaStatusError, msg.MediaStatus)
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err := f.svc.StartDownload(context.Background(), "C1", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), f.client.MediaURLCalls.Load())
}

func TestHTTPDownloaderLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), 0, 10)
	_, err := d.Download(context.Background(), srv.URL, io.Discard)
	assert.ErrorIs(t, err, ErrTooLarge)

	d = NewHTTPDownloader(srv.Client(), 0, 0)
	n, err := d.Download(context.Background(), srv.URL, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}
