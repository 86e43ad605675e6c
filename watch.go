package certpin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/avialdo/certpin/internal/config"
	"github.com/avialdo/certpin/internal/observability"
)

// Reloader keeps a Client in sync with its configuration file. When the
// file changes, or a pin certificate or identity bundle file it references
// rotates on disk, a replacement Client is built and swapped in without a
// process restart. A reload that fails to load, validate, or build keeps
// the current client.
type Reloader struct {
	watcher *config.Watcher
	opts    []Option
	logger  observability.Logger

	mu     sync.Mutex
	client *Client
}

// Watch builds a Client from the configuration file at path and rebuilds
// it on changes. The watch goroutine exits when ctx is cancelled; Stop
// releases the watcher and the current client.
func Watch(ctx context.Context, path string, opts ...Option) (*Reloader, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger, err = observability.NewLogger(cfg.Logging)
		if err != nil {
			client.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	r := &Reloader{
		opts:   opts,
		logger: logger,
		client: client,
	}

	wopts := []config.WatcherOption{config.WithWatcherLogger(logger)}
	if paths := referencedFiles(cfg); len(paths) > 0 {
		wopts = append(wopts, config.WithWatchPaths(paths...))
	}

	watcher, err := config.NewWatcher(path, r.rebuild, wopts...)
	if err != nil {
		client.Close() //nolint:errcheck
		return nil, err
	}
	r.watcher = watcher

	if err := watcher.Start(ctx); err != nil {
		watcher.Stop() //nolint:errcheck
		client.Close() //nolint:errcheck
		return nil, err
	}

	return r, nil
}

// Client returns the current client. Fetch it per use rather than caching
// it across calls, or connections will not follow reloads.
func (r *Reloader) Client() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

// HTTPClient returns an http.Client whose TLS connections always go
// through the current client, following configuration reloads.
func (r *Reloader) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return r.Client().DialTLS(ctx, network, addr)
			},
		},
		Timeout: 30 * time.Second,
	}
}

// ForceReload rebuilds the client from the configuration file immediately.
func (r *Reloader) ForceReload() error {
	return r.watcher.ForceReload()
}

// Stop stops watching and closes the current client.
func (r *Reloader) Stop() error {
	err := r.watcher.Stop()
	if cerr := r.Client().Close(); err == nil {
		err = cerr
	}
	return err
}

// rebuild is the watcher callback. The replacement client is built
// fail-closed the same way New builds the initial one; the old client is
// closed once the swap is done.
func (r *Reloader) rebuild(cfg *config.Config) {
	client, err := New(cfg, r.opts...)
	if err != nil {
		r.logger.Error("client rebuild failed, keeping current client",
			observability.Error(err),
		)
		return
	}

	r.mu.Lock()
	old := r.client
	r.client = client
	r.mu.Unlock()

	r.logger.Info("client rebuilt from updated configuration",
		observability.String("hostname", client.Hostname()),
	)

	if old != nil {
		old.Close() //nolint:errcheck
	}
}

// referencedFiles lists the files the configuration points at, so rotating
// a pinned certificate or identity bundle on disk also triggers a rebuild.
func referencedFiles(cfg *config.Config) []string {
	var paths []string
	if cfg.Pin.CertificateFile != "" {
		paths = append(paths, cfg.Pin.CertificateFile)
	}
	if cfg.Identity.BundleFile != "" {
		paths = append(paths, cfg.Identity.BundleFile)
	}
	return paths
}
