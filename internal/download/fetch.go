package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/option"
)

// Fetcher opens the content behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// ErrUnsupportedScheme is returned for URLs no fetcher handles.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// StatusError is a non-success HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// HTTPFetcher downloads http and https URLs, retrying transport errors,
// 429 and 5xx responses with exponential backoff.
type HTTPFetcher struct {
	Client    *http.Client
	Retries   uint64
	Backoff   time.Duration
	UserAgent string
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	base := f.Backoff
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithMaxRetries(f.Retries, retry.NewExponential(base))

	var body io.ReadCloser
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		if f.UserAgent != "" {
			req.Header.Set("User-Agent", f.UserAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			body = resp.Body
			return nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		serr := &StatusError{URL: u.Redacted(), Status: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(serr)
		}
		return serr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GCSFetcher reads gs://bucket/object URLs from Cloud Storage. The client is
// created on first use, from CredentialsFile when set and from application
// default credentials otherwise.
type GCSFetcher struct {
	CredentialsFile string

	mu     sync.Mutex
	client *storage.Client
}

func (f *GCSFetcher) storageClient(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	var opts []option.ClientOption
	if f.CredentialsFile != "" {
		if _, err := os.Stat(f.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", f.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(f.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	f.client = client
	return client, nil
}

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket, object, err := ParseGSURL(u)
	if err != nil {
		return nil, err
	}
	client, err := f.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}

// Close releases the storage client if one was created.
func (f *GCSFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}

// ParseGSURL splits gs://bucket/path/to/object into bucket and object name.
func ParseGSURL(u *url.URL) (bucket, object string, err error) {
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("%w: %q is not a gs URL", ErrUnsupportedScheme, u.String())
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs URL %q: want gs://bucket/object", u.String())
	}
	return u.Host, object, nil
}

// FileFetcher reads file:// URLs from the local filesystem.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	f, err := os.Open(p) //nolint:gosec // path comes from the download file
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return f, nil
}
