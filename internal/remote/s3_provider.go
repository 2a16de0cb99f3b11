package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

const defaultRegion = "us-east-1"

// s3Location is a parsed s3://bucket/key?region=..&endpoint=.. URL.
type s3Location struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string
}

func parseS3URL(raw string) (*s3Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	loc := &s3Location{
		Bucket:   u.Host,
		Key:      strings.TrimPrefix(u.Path, "/"),
		Region:   u.Query().Get("region"),
		Endpoint: u.Query().Get("endpoint"),
	}
	if loc.Bucket == "" || loc.Key == "" {
		return nil, fmt.Errorf("s3 url %q needs a bucket and a key", raw)
	}
	if loc.Region == "" {
		loc.Region = defaultRegion
	}
	return loc, nil
}

// S3Provider keeps a calendar as a single object. Username and password of
// the entry are used as access key and secret key; without them the default
// AWS credential chain applies.
type S3Provider struct {
	cache   *Cache
	mu      sync.Mutex
	clients map[string]*s3.Client
}

func NewS3Provider(cache *Cache) *S3Provider {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &S3Provider{
		cache:   cache,
		clients: make(map[string]*s3.Client),
	}
}

func (p *S3Provider) client(ctx context.Context, loc *s3Location, creds Credentials) (*s3.Client, error) {
	key := loc.Region + "|" + loc.Endpoint + "|" + creds.Username

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(loc.Region)}
	if creds.Username != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.Username, creds.Password, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if loc.Endpoint != "" {
			o.BaseEndpoint = aws.String(loc.Endpoint)
			o.UsePathStyle = true
		}
	})
	p.clients[key] = c
	return c, nil
}

func (p *S3Provider) GetCalendar(ctx context.Context, sr *SyncRequest) (*Calendar, error) {
	cal, err := p.fetch(ctx, sr)
	if err != nil {
		slog.Warn("remote fetch failed", "url", sr.RemoteURL, "error", err)
		return errorCalendar(err), nil
	}
	return cal, nil
}

func (p *S3Provider) fetch(ctx context.Context, sr *SyncRequest) (*Calendar, error) {
	loc, err := parseS3URL(sr.RemoteURL)
	if err != nil {
		return nil, err
	}
	c, err := p.client(ctx, loc, sr.Credentials)
	if err != nil {
		return nil, err
	}

	// an unchanged etag saves the download
	if cached, ok := p.cache.get(sr.RemoteURL); ok {
		head, err := c.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err == nil && normalizeETag(aws.ToString(head.ETag)) == cached.validator {
			return cached.calendar, nil
		}
	}

	resp, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}

	cal := NewCalendar(data)
	p.cache.put(sr.RemoteURL, normalizeETag(aws.ToString(resp.ETag)), cal)

	slog.Debug("remote fetch", "url", sr.RemoteURL, "size", humanize.Bytes(uint64(len(data))))
	return cal, nil
}

func (p *S3Provider) PushNow(ctx context.Context, sr *SyncRequest) error {
	loc, err := parseS3URL(sr.RemoteURL)
	if err != nil {
		return err
	}
	c, err := p.client(ctx, loc, sr.Credentials)
	if err != nil {
		return err
	}

	_, err = c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          bytes.NewReader(sr.Data),
		ContentLength: aws.Int64(int64(len(sr.Data))),
		ContentType:   aws.String(contentTypeCalendar),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	p.cache.Invalidate(sr.RemoteURL)
	slog.Debug("remote push", "url", sr.RemoteURL, "size", humanize.Bytes(uint64(len(sr.Data))))
	return nil
}

func (p *S3Provider) NotifyChanged(ctx context.Context, sr *SyncRequest) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.PushNow(ctx, sr); err != nil {
			slog.Warn("remote push failed", "url", sr.RemoteURL, "error", err)
		}
	}()
}

func normalizeETag(etag string) string {
	return strings.ReplaceAll(etag, "\"", "")
}
