package remote

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
)

const contentTypeCalendar = "text/calendar; charset=utf-8"

// HTTPProvider reads a calendar with GET and replaces it with PUT. webcal://
// URLs are fetched over https.
type HTTPProvider struct {
	client *req.Client
	cache  *Cache
}

func NewHTTPProvider(client *req.Client, cache *Cache) *HTTPProvider {
	if client == nil {
		client = HTTPClient
	}
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &HTTPProvider{client: client, cache: cache}
}

func (p *HTTPProvider) GetCalendar(ctx context.Context, sr *SyncRequest) (*Calendar, error) {
	url := httpURL(sr.RemoteURL)

	r := p.client.R().
		SetContext(ctx).
		SetErrorResult(&APIError{})
	setAuth(r, sr.Credentials)

	cached, hasCached := p.cache.get(sr.RemoteURL)
	if hasCached {
		r.SetHeader("If-None-Match", cached.validator)
	}

	resp, err := r.Get(url)
	if err == nil && hasCached && resp.StatusCode == http.StatusNotModified {
		return cached.calendar, nil
	}
	if err := handleAPIError(resp, err, "get calendar"); err != nil {
		slog.Warn("remote fetch failed", "url", sr.RemoteURL, "error", err)
		return errorCalendar(err), nil
	}

	data := resp.Bytes()
	cal := NewCalendar(data)
	p.cache.put(sr.RemoteURL, resp.Header.Get("ETag"), cal)

	slog.Debug("remote fetch", "url", sr.RemoteURL, "status", resp.StatusCode, "size", humanize.Bytes(uint64(len(data))))
	return cal, nil
}

func (p *HTTPProvider) PushNow(ctx context.Context, sr *SyncRequest) error {
	url := httpURL(sr.RemoteURL)

	r := p.client.R().
		SetContext(ctx).
		SetErrorResult(&APIError{}).
		SetContentType(contentTypeCalendar).
		SetBody(sr.Data)
	setAuth(r, sr.Credentials)

	resp, err := r.Put(url)
	if err := handleAPIError(resp, err, "push calendar"); err != nil {
		return err
	}

	p.cache.Invalidate(sr.RemoteURL)
	slog.Debug("remote push", "url", sr.RemoteURL, "status", resp.StatusCode, "size", humanize.Bytes(uint64(len(sr.Data))))
	return nil
}

// NotifyChanged pushes in the background. Use a Router to track and wait for
// background pushes.
func (p *HTTPProvider) NotifyChanged(ctx context.Context, sr *SyncRequest) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.PushNow(ctx, sr); err != nil {
			slog.Warn("remote push failed", "url", sr.RemoteURL, "error", err)
		}
	}()
}

func setAuth(r *req.Request, creds Credentials) {
	if creds.Username != "" || creds.Password != "" {
		r.SetBasicAuth(creds.Username, creds.Password)
	}
}

func httpURL(raw string) string {
	if rest, ok := strings.CutPrefix(raw, "webcal://"); ok {
		return "https://" + rest
	}
	return raw
}
