package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	appLog "tztimeline/internal/log"
)

const (
	fetchCacheSize = 64
	// maxBodyBytes bounds a single calendar download.
	maxBodyBytes = 4 << 20
)

// cacheEntry holds HTTP cache metadata and the last good body for one URL.
type cacheEntry struct {
	ETag         string
	LastModified string
	Body         []byte
	UpdatedAt    time.Time
}

// Fetcher downloads calendars with conditional requests (ETag /
// Last-Modified) and keeps the last good body per URL in memory.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, cacheEntry]
}

// NewFetcher returns a Fetcher using client, or a 15s-timeout client when
// nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cache, err := lru.New[string, cacheEntry](fetchCacheSize)
	if err != nil {
		panic(err)
	}
	return &Fetcher{client: client, cache: cache}
}

// Fetch returns the calendar at rawURL. webcal:// is treated as https://.
// On network errors or non-OK statuses the cached body is returned when
// there is one; fromCache reports that.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (body []byte, fromCache bool, err error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, false, err
	}
	key := u.String()
	meta, cached := f.cache.Get(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "text/calendar")
	if cached {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "url", redactURL(key))

	resp, err := f.client.Do(req)
	if err != nil {
		if cached {
			appLog.Error("ics fetch network error, using cached body", err, "url", redactURL(key))
			return meta.Body, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if err != nil {
			return nil, false, err
		}
		if len(data) > maxBodyBytes {
			return nil, false, fmt.Errorf("ics body exceeds %d bytes", maxBodyBytes)
		}
		f.cache.Add(key, cacheEntry{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         data,
			UpdatedAt:    time.Now().UTC(),
		})
		appLog.Info("ics fetch success", "url", redactURL(key), "bytes", len(data))
		return data, false, nil

	case http.StatusNotModified:
		if !cached {
			return nil, false, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "url", redactURL(key))
		return meta.Body, true, nil

	default:
		if cached {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(key))
			return meta.Body, true, nil
		}
		return nil, false, errors.New(resp.Status)
	}
}

func normalizeURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("ics url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "webcal":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("ics url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("ics url: missing host")
	}
	return u, nil
}

// redactURL hides the path and query, which often carry private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
