package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"chatcache/internal/data/mediacache"
	"chatcache/internal/data/store"
	"chatcache/internal/infra/config"
	"chatcache/internal/infra/logger"
	"chatcache/internal/infra/metrics"
	"chatcache/internal/query"
	"chatcache/internal/remote"
	"chatcache/internal/service/media"
	"chatcache/internal/service/reconcile"
	"chatcache/internal/service/send"
	"chatcache/internal/service/unread"
)

// App owns the cache and every service built on it.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Client  remote.Client

	Store   *store.Store
	Queries *query.Registries
	Cache   *mediacache.Cache

	Reconcile    *reconcile.Service
	SendService  *send.SendService
	MediaService *media.MediaService
	Unread       *unread.Tracker

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the cache described by cfg and wires the services to client.
// Events pushed by client are applied when it is a remote.EventSource. reg
// may be nil to skip metric registration.
func New(cfg *config.Config, client remote.Client, reg prometheus.Registerer) (*App, error) {
	log := logger.NewWithWriter(os.Stderr, "chatcache", cfg.LogLevel, cfg.LogFormat == "json")
	log.Infof("Opening cache at %s", cfg.StorePath)

	if err := cfg.EnsureStorePath(); err != nil {
		return nil, fmt.Errorf("failed to ensure store path: %w", err)
	}

	m := metrics.New(reg)
	appStore, err := store.Open(cfg.DatabasePath(), log, store.Options{
		FlushDelay:   cfg.Store.FlushDelay,
		FlushRetries: cfg.Store.FlushRetries,
		Metrics:      m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cache, err := mediacache.New(cfg.MediaCacheDir(), appStore.MediaCache, cfg.Media.MaxFileSize(), log)
	if err != nil {
		appStore.Close()
		return nil, fmt.Errorf("failed to open media cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	queries := query.NewRegistries(appStore, m, log)

	reconcileService := reconcile.NewService(ctx, log, appStore, client, cache, cfg.Identity, cfg.Stats, m)
	sendService := send.NewSendService(client, appStore.Messages, appStore.Media, cache, cfg.Identity, cfg.Media, m, log)
	downloader := media.NewHTTPDownloader(nil, cfg.Media.DownloadTimeout, cfg.Media.MaxFileSize())
	mediaService := media.NewMediaService(client, appStore.Messages, appStore.Media, cache, downloader, m, log)

	app := &App{
		Config:       cfg,
		Log:          log,
		Metrics:      m,
		Client:       client,
		Store:        appStore,
		Queries:      queries,
		Cache:        cache,
		Reconcile:    reconcileService,
		SendService:  sendService,
		MediaService: mediaService,
		Unread:       unread.NewTracker(queries.Conversations, log),
		ctx:          ctx,
		cancel:       cancel,
	}

	// Register event handler
	if src, ok := client.(remote.EventSource); ok {
		src.AddEventHandler(reconcileService.Handle)
	}

	return app, nil
}

// Flush writes pending changes to disk.
func (a *App) Flush() error {
	return a.Store.Flush(a.ctx)
}

// Wipe deletes every cached entity and file.
func (a *App) Wipe() error {
	if err := a.Reconcile.Wipe(); err != nil {
		return err
	}
	return a.Store.Flush(a.ctx)
}

// Shutdown stops the services and closes the store after a final flush.
// In-flight sends and downloads are cancelled and record their failure
// before the store closes.
func (a *App) Shutdown() error {
	a.cancel()
	a.Unread.Close()
	a.SendService.Stop()
	a.MediaService.Stop()
	a.Reconcile.Close()
	return a.Store.Close()
}
