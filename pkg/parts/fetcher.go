package parts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when a library file does not exist.
var ErrNotFound = errors.New("part not found")

// maxFileSize bounds a single library download.
const maxFileSize = 64 << 20

// Fetcher retrieves library files over HTTP(S) or from the local disk.
// Results are cached, and concurrent requests for the same location
// share one download.
type Fetcher struct {
	client *http.Client
	cache  *Cache
	group  singleflight.Group
	log    *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client used for network locations.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.client = &http.Client{Timeout: d} }
}

// WithCache sets the cache. Each viewer session should own its cache.
func WithCache(c *Cache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = NewCache(DefaultCacheEntries)
	}
	return f
}

// Cache returns the fetcher's cache.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Fetch returns the contents of location, an http(s) URL, a file:// URL or
// a filesystem path. Missing files yield an error wrapping ErrNotFound.
//
// A download shared between callers is not tied to any one caller's
// context; each caller stops waiting when its own ctx ends, and the
// download is bounded by the client timeout.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if data, ok := f.cache.Get(location); ok {
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := f.group.DoChan(location, func() (any, error) {
		// A download that finished since the lookup above already filled the cache.
		if data, ok := f.cache.Get(location); ok {
			return data, nil
		}
		data, err := f.fetch(context.WithoutCancel(ctx), location)
		if err != nil {
			return nil, err
		}
		f.cache.Set(location, data)
		return data, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			f.log.Debug("shared fetch", zap.String("url", location))
		}
		return r.Val.([]byte), nil
	}
}

// FetchFirst tries each location in order and returns the first that
// exists, along with where it was found. Errors other than ErrNotFound
// stop the search.
func (f *Fetcher) FetchFirst(ctx context.Context, locations []string) ([]byte, string, error) {
	if len(locations) == 0 {
		return nil, "", fmt.Errorf("no locations: %w", ErrNotFound)
	}
	var lastErr error
	for _, loc := range locations {
		data, err := f.Fetch(ctx, loc)
		if err == nil {
			return data, loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, loc, err
		}
		lastErr = err
	}
	return nil, locations[0], lastErr
}

func (f *Fetcher) fetch(ctx context.Context, location string) ([]byte, error) {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return f.fetchHTTP(ctx, location)
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", location, err)
		}
		return f.readFile(u.Path)
	default:
		return f.readFile(location)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get %s: %w", location, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get %s: status %d: %s", location, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	f.log.Debug("fetched",
		zap.String("url", location),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(start)),
	)
	return data, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return data, nil
}
