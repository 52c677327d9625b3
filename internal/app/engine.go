// Package app assembles the sync engine from its parts. Nothing is opened or contacted until
// Initialize is called.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/analytics"
	"github.com/and161185/decksync/internal/api"
	"github.com/and161185/decksync/internal/auth"
	"github.com/and161185/decksync/internal/collection/sqlite"
	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/registry"
	"github.com/and161185/decksync/internal/syncer"
)

// ErrNotInitialized is returned by accessors used before Initialize.
var ErrNotInitialized = errors.New("engine not initialized")

// Engine owns every long-lived component of the client.
type Engine struct {
	settings *config.Settings
	log      *zap.Logger

	mu          sync.Mutex
	initialized bool

	State       *config.Cached
	Gateway     *api.Gateway
	Client      *api.Client
	Session     *auth.Session
	Collection  *sqlite.Store
	Registry    *registry.Registry
	Analytics   *analytics.Engine
	Coordinator *syncer.Coordinator
	Updater     *syncer.Updater
	Downloader  *syncer.Downloader
	Notifier    *syncer.Notifier
}

// New returns an engine for settings. log may be nil.
func New(settings *config.Settings, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{settings: settings, log: log}
}

// Initialize opens the collection and wires the components. Calling it twice is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	s := e.settings
	loc, err := s.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	e.State = config.NewCached(config.NewFileStore(s.StatePath), s.StateCacheTTL())

	e.Gateway = api.NewGateway(s.APIURL, e.log.Named("api"), api.Options{
		Timeout:         s.RequestTimeout(),
		DownloadTimeout: s.DownloadTimeout(),
	})
	e.Client, err = api.NewClient(e.Gateway)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}
	e.Session = auth.NewSession(e.State, e.Client, e.log.Named("auth"))
	e.Gateway.SetAuthorizer(e.Session)

	e.Collection, err = sqlite.Open(ctx, s.CollectionPath, e.log.Named("collection"))
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	e.Registry = registry.New(e.State, e.Collection, e.log.Named("registry"))
	e.Analytics = analytics.New(e.Collection, e.Collection, e.log.Named("analytics"),
		analytics.WithWindowDays(s.WindowDays),
		analytics.WithLocation(loc),
	)
	e.Coordinator = syncer.NewCoordinator(e.Registry, e.Analytics, e.Client, e.log.Named("sync"))
	e.Updater = syncer.NewUpdater(e.Client, e.Registry, e.log.Named("updates"))
	e.Downloader = syncer.NewDownloader(e.Client, e.Collection, e.Registry, e.log.Named("download"))
	e.Notifier = syncer.NewNotifier(e.Client, e.State, s.NotificationInterval(), e.log.Named("notifications"))

	e.initialized = true
	e.log.Debug("engine initialized",
		zap.String("api_url", s.APIURL),
		zap.String("collection", s.CollectionPath),
		zap.String("timezone", loc.String()))
	return nil
}

// Shutdown releases the collection. The engine may be initialized again afterwards.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}
	e.initialized = false
	err := e.Collection.Close()
	e.Collection = nil
	if e.State != nil {
		e.State.Invalidate()
	}
	return err
}

// Settings returns the settings the engine was built with.
func (e *Engine) Settings() *config.Settings { return e.settings }

// Ready returns ErrNotInitialized until Initialize has completed.
func (e *Engine) Ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	return nil
}
