package noaa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/ushcn-etl/internal/observability"
)

// CacheConfig selects where downloads are kept. With Enabled, files persist
// in Dir and are reused by later runs. Otherwise they go to a temporary
// directory removed by Fetcher.Close.
type CacheConfig struct {
	Enabled bool
	Dir     string
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Fetcher downloads archive files to local paths.
type Fetcher struct {
	httpClient *http.Client
	cache      CacheConfig
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics

	// Concurrent fetches of one URL share a single download.
	mu       sync.Mutex
	inflight map[string]*download
	tempDir  string
}

type download struct {
	done chan struct{}
	path string
	err  error
}

// NewFetcher creates a Fetcher with the given per-request timeout and number
// of retries after the first attempt.
func NewFetcher(cache CacheConfig, timeout time.Duration, retries int, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    cache,
		retries:  retries,
		backoff:  initialBackoff,
		logger:   logger,
		metrics:  metrics,
		inflight: make(map[string]*download),
	}
}

// Fetch returns a local path holding the body of rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	if d, ok := f.inflight[rawURL]; ok {
		f.mu.Unlock()
		select {
		case <-d.done:
			return d.path, d.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	d := &download{done: make(chan struct{})}
	f.inflight[rawURL] = d
	f.mu.Unlock()

	d.path, d.err = f.fetch(ctx, rawURL)
	close(d.done)

	if d.err != nil {
		// Let a later caller retry.
		f.mu.Lock()
		delete(f.inflight, rawURL)
		f.mu.Unlock()
	}
	return d.path, d.err
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	dest, err := f.destination(rawURL)
	if err != nil {
		return "", err
	}

	if f.cache.Enabled {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			f.logger.Debug("using cached download", "url", rawURL, "path", dest)
			return dest, nil
		}
	}

	backoff := f.backoff
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.logger.Warn("download failed, retrying", "url", rawURL, "attempt", attempt, "backoff", backoff, "error", lastErr)
			if !retry.SleepWithContext(ctx, backoff) {
				return "", ctx.Err()
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
		}

		lastErr = f.download(ctx, rawURL, dest)
		if lastErr == nil {
			return dest, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var se *statusError
		if errors.As(lastErr, &se) && !se.retryable() {
			break
		}
	}
	return "", fmt.Errorf("download %s: %w", rawURL, lastErr)
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write download: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store download: %w", err)
	}

	f.metrics.DownloadBytes.WithLabelValues(path.Base(dest)).Add(float64(n))
	f.logger.Info("downloaded", "url", rawURL, "bytes", n, "path", dest)
	return nil
}

// destination maps a URL to its local file, creating the directory.
func (f *Fetcher) destination(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("url %q has no file name", rawURL)
	}

	dir, err := f.dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (f *Fetcher) dir() (string, error) {
	if f.cache.Enabled {
		if err := os.MkdirAll(f.cache.Dir, 0o755); err != nil {
			return "", fmt.Errorf("cache dir: %w", err)
		}
		return f.cache.Dir, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tempDir == "" {
		dir, err := os.MkdirTemp("", "ushcn-etl-*")
		if err != nil {
			return "", fmt.Errorf("temp dir: %w", err)
		}
		f.tempDir = dir
	}
	return f.tempDir, nil
}

// Close removes the temporary download directory. Cached files are kept.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(f.tempDir)
	f.tempDir = ""
	f.inflight = make(map[string]*download)
	return err
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// retryable reports whether the status may succeed on a later attempt.
func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}
