package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Router dispatches provider calls by the scheme of the remote URL and
// tracks background pushes so shutdown can wait for them.
type Router struct {
	providers map[string]Provider
	pending   sync.WaitGroup
}

type RouterConfig struct {
	CacheTTL time.Duration
}

func NewRouter(cfg *RouterConfig) *Router {
	ttl := DefaultCacheTTL
	if cfg != nil && cfg.CacheTTL > 0 {
		ttl = cfg.CacheTTL
	}

	cache := NewCache(ttl)
	httpProvider := NewHTTPProvider(HTTPClient, cache)

	return &Router{
		providers: map[string]Provider{
			"http":   httpProvider,
			"https":  httpProvider,
			"webcal": httpProvider,
			"s3":     NewS3Provider(cache),
		},
	}
}

// Register installs p for scheme, replacing any existing provider.
func (r *Router) Register(scheme string, p Provider) {
	r.providers[strings.ToLower(scheme)] = p
}

func (r *Router) provider(raw string) (Provider, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	p, ok := r.providers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return p, nil
}

// Supports reports whether a provider is registered for the URL's scheme.
func (r *Router) Supports(raw string) error {
	_, err := r.provider(raw)
	return err
}

func (r *Router) GetCalendar(ctx context.Context, sr *SyncRequest) (*Calendar, error) {
	p, err := r.provider(sr.RemoteURL)
	if err != nil {
		return nil, err
	}
	return p.GetCalendar(ctx, sr)
}

func (r *Router) PushNow(ctx context.Context, sr *SyncRequest) error {
	p, err := r.provider(sr.RemoteURL)
	if err != nil {
		return err
	}
	return p.PushNow(ctx, sr)
}

// NotifyChanged pushes in a tracked goroutine and returns immediately. The
// push outlives cancellation of ctx; Wait bounds it on shutdown.
func (r *Router) NotifyChanged(ctx context.Context, sr *SyncRequest) {
	p, err := r.provider(sr.RemoteURL)
	if err != nil {
		slog.Warn("remote push skipped", "url", sr.RemoteURL, "error", err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		if err := p.PushNow(ctx, sr); err != nil {
			slog.Warn("remote push failed", "url", sr.RemoteURL, "error", err)
		}
	}()
}

// Wait blocks until background pushes finish or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
