// Package fetch downloads airspace datasets into a local cache directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/logger"
)

// maxBodySize bounds a single download
const maxBodySize = 512 << 20

// ErrEmptyDataset is returned when a download decodes to no airspaces
var ErrEmptyDataset = errors.New("dataset contains no airspaces")

// Result describes one fetched source
type Result struct {
	Source      *Source
	Path        string
	State       *State
	NotModified bool // served from cache after a 304
}

// Fetcher downloads airspace files from a source
type Fetcher struct {
	client      *http.Client
	cacheDir    string
	maxRetries  int
	retryDelay  time.Duration
	concurrency int
	now         func() time.Time
}

// NewFetcher creates a new fetcher caching into cacheDir
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		cacheDir:    cacheDir,
		maxRetries:  3,
		retryDelay:  5 * time.Second,
		concurrency: 4,
		now:         time.Now,
	}
}

// WithRetries sets retry count and delay
func (f *Fetcher) WithRetries(n int, delay time.Duration) *Fetcher {
	f.maxRetries = n
	f.retryDelay = delay
	return f
}

// WithTimeout sets the per-request timeout
func (f *Fetcher) WithTimeout(d time.Duration) *Fetcher {
	f.client.Timeout = d
	return f
}

// CacheDir returns the cache directory
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// CachePath returns where a source's data file is cached
func (f *Fetcher) CachePath(src *Source) string {
	return filepath.Join(f.cacheDir, src.FileName())
}

// StatePath returns where a source's state file is kept
func (f *Fetcher) StatePath(src *Source) string {
	return filepath.Join(f.cacheDir, src.StateFileName())
}

// LoadState returns the stored state for src, or nil if it was never fetched
func (f *Fetcher) LoadState(src *Source) (*State, error) {
	state, err := ParseStateFile(f.StatePath(src))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return state, err
}

// Fetch downloads src unless the server reports the cached copy current.
// With force set, conditional headers are not sent.
func (f *Fetcher) Fetch(ctx context.Context, src *Source, force bool) (*Result, error) {
	log := logger.Get()
	cacheFile := f.CachePath(src)

	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	prev, err := f.LoadState(src)
	if err != nil {
		log.Warn("Ignoring unreadable fetch state", zap.String("source", src.Name), zap.Error(err))
		prev = nil
	}
	if _, err := os.Stat(cacheFile); err != nil {
		prev = nil
	}

	header := http.Header{}
	if prev != nil && !force {
		if prev.ETag != "" {
			header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			header.Set("If-Modified-Since", prev.LastModified)
		}
	}

	log.Debug("Fetching airspaces", zap.String("source", src.Name), zap.String("url", src.URL))

	resp, err := f.fetchWithRetry(ctx, src.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && prev != nil {
		log.Debug("Using cached airspace file", zap.String("path", cacheFile))
		return &Result{Source: src, Path: cacheFile, State: prev, NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status code: %d", src.Name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src.Name, err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%s exceeds %d bytes", src.Name, maxBodySize)
	}

	// Validate before replacing the cached copy
	list, stats, err := airspace.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset from %s: %w", src.Name, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", src.Name, ErrEmptyDataset)
	}

	if err := writeAtomic(cacheFile, data); err != nil {
		return nil, err
	}

	state := &State{
		Source:       src.Name,
		URL:          src.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Fetched:      f.now().UTC().Truncate(time.Second),
		Airspaces:    len(list),
		Bytes:        int64(len(data)),
	}
	if err := WriteStateFile(f.StatePath(src), state); err != nil {
		return nil, fmt.Errorf("failed to write fetch state: %w", err)
	}

	log.Info("Downloaded airspaces",
		zap.String("source", src.Name),
		zap.Int("airspaces", len(list)),
		zap.Int("skipped", stats.Skipped()),
		zap.Int64("bytes", state.Bytes))

	return &Result{Source: src, Path: cacheFile, State: state}, nil
}

// FetchAll fetches sources concurrently. Results keep the order of sources.
func (f *Fetcher) FetchAll(ctx context.Context, sources []*Source, force bool) ([]*Result, error) {
	results := make([]*Result, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := f.Fetch(ctx, src, force)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeAtomic(path string, data []byte) error {
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// fetchWithRetry performs an HTTP GET with retries
func (f *Fetcher) fetchWithRetry(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("User-Agent", "airspace-go/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Retry on server errors and rate limiting
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// LoadCached decodes the cached files of sources and merges them. Records
// with an ID already seen are dropped; the result is sorted by altitude.
func (f *Fetcher) LoadCached(sources []*Source) ([]*airspace.Airspace, error) {
	var lists [][]*airspace.Airspace
	for _, src := range sources {
		list, _, err := airspace.LoadFile(f.CachePath(src))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s (run fetch first): %w", src.Name, err)
		}
		lists = append(lists, list)
	}
	return Merge(lists...), nil
}

// Merge concatenates lists, dropping duplicate IDs, and sorts by altitude
func Merge(lists ...[]*airspace.Airspace) []*airspace.Airspace {
	seen := make(map[string]struct{})
	var out []*airspace.Airspace
	for _, list := range lists {
		for _, a := range list {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	airspace.SortByAltitude(out)
	return out
}
