package download

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSnippetBytes is how much uncompressed content snippet mode keeps.
const DefaultSnippetBytes = 5 * 1024

// Status is the outcome of one source.
type Status string

// Source outcomes.
const (
	StatusDownloaded Status = "downloaded"
	StatusCached     Status = "cached"
	StatusFailed     Status = "failed"
)

// Outcome reports what happened to one source.
type Outcome struct {
	Source Source
	Path   string
	Status Status
	Bytes  int64
	Err    error
}

// Options configures a Downloader.
type Options struct {
	OutputDir    string
	SnippetOnly  bool
	IgnoreCache  bool
	SnippetBytes int64
	Retries      uint64
	Timeout      time.Duration
	// GCSCredentials is a service account key file for gs:// sources.
	GCSCredentials string
	Logger         *slog.Logger
}

// Downloader fetches sources into OutputDir.
type Downloader struct {
	opts     Options
	logger   *slog.Logger
	fetchers map[string]Fetcher
}

// New creates a downloader with fetchers for http, https, gs and file URLs.
func New(opts Options) *Downloader {
	if opts.SnippetBytes <= 0 {
		opts.SnippetBytes = DefaultSnippetBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	httpFetcher := &HTTPFetcher{
		Client:    &http.Client{Timeout: opts.Timeout},
		Retries:   opts.Retries,
		UserAgent: "kgforge",
	}
	return &Downloader{
		opts:   opts,
		logger: logger,
		fetchers: map[string]Fetcher{
			"http":  httpFetcher,
			"https": httpFetcher,
			"gs":    &GCSFetcher{CredentialsFile: opts.GCSCredentials},
			"file":  FileFetcher{},
		},
	}
}

// SetFetcher overrides the fetcher used for a URL scheme.
func (d *Downloader) SetFetcher(scheme string, f Fetcher) {
	d.fetchers[scheme] = f
}

// Close releases fetcher resources.
func (d *Downloader) Close() error {
	var errs []error
	for _, f := range d.fetchers {
		if c, ok := f.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Run downloads every source in order. A failed source is recorded and the
// run continues; the returned error joins every failure.
func (d *Downloader) Run(ctx context.Context, sources []Source) ([]Outcome, error) {
	if err := os.MkdirAll(d.opts.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	outcomes := make([]Outcome, 0, len(sources))
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out := d.fetchOne(ctx, src)
		outcomes = append(outcomes, out)
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.URL, out.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (d *Downloader) fetchOne(ctx context.Context, src Source) Outcome {
	target := filepath.Join(d.opts.OutputDir, src.Target())
	out := Outcome{Source: src, Path: target}
	log := d.logger.With(slog.String("url", src.URL), slog.String("path", target))

	if !d.opts.IgnoreCache {
		if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
			log.Info("using cached file")
			out.Status = StatusCached
			out.Bytes = info.Size()
			return out
		}
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return failed(out, log, fmt.Errorf("invalid url: %w", err))
	}
	fetcher, ok := d.fetchers[u.Scheme]
	if !ok {
		return failed(out, log, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme))
	}

	log.Info("downloading", slog.Bool("snippet", d.opts.SnippetOnly))
	body, err := fetcher.Fetch(ctx, u)
	if err != nil {
		return failed(out, log, err)
	}
	defer func() { _ = body.Close() }()

	n, err := d.save(target, body, isGzip(src))
	if err != nil {
		return failed(out, log, err)
	}
	out.Status = StatusDownloaded
	out.Bytes = n
	log.Debug("download complete", slog.Int64("bytes", n))
	return out
}

func failed(out Outcome, log *slog.Logger, err error) Outcome {
	log.Error("download failed", slog.String("error", err.Error()))
	out.Status = StatusFailed
	out.Err = err
	return out
}

// save streams body into a temp file next to target and renames it into
// place once complete.
func (d *Downloader) save(target string, body io.Reader, gz bool) (n int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if d.opts.SnippetOnly {
		n, err = writeSnippet(tmp, body, d.opts.SnippetBytes, gz)
	} else {
		n, err = io.Copy(tmp, body)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}

// writeSnippet copies at most limit bytes of uncompressed content. Gzip input
// is decompressed, truncated and compressed again.
func writeSnippet(w io.Writer, r io.Reader, limit int64, gz bool) (int64, error) {
	if !gz {
		return io.Copy(w, io.LimitReader(r, limit))
	}

	zr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read gzip stream: %w", err)
	}
	defer func() { _ = zr.Close() }()

	zw := gzip.NewWriter(w)
	n, err := io.Copy(zw, io.LimitReader(zr, limit))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, err
	}
	if err := zw.Close(); err != nil {
		return n, err
	}
	return n, nil
}

func isGzip(src Source) bool {
	return strings.HasSuffix(src.Target(), ".gz") || strings.HasSuffix(src.URL, ".gz")
}
