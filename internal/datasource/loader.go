// Package datasource opens the raw stop CSV from a local file, a direct URL,
// or a dataset landing page that links to the CSV.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"trafficstops/internal/config"
	"trafficstops/internal/metrics"
)

// ErrHTTPStatus is wrapped by errors for non-2xx responses.
var ErrHTTPStatus = errors.New("unexpected http status")

const userAgent = "clean-stops/1.0"

// Loader opens sources with a shared client and timeout policy.
type Loader struct {
	client  *http.Client
	timeout time.Duration
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
// timeout <= 0 disables the per-request deadline.
func NewLoader(client *http.Client, timeout time.Duration) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client, timeout: timeout}
}

// Open returns a reader over the decoded CSV bytes described by src. The
// caller must Close it. For HTTP sources the body is streamed; the request
// deadline covers the whole download and is released on Close.
func (l *Loader) Open(ctx context.Context, src config.Source) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch src.Kind {
	case config.SourceFile:
		rc, err = os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
	case config.SourceHTTP:
		rc, err = l.get(ctx, src.URL)
		if err != nil {
			return nil, err
		}
	case config.SourcePage:
		csvURL, err := l.ResolvePageLink(ctx, src.URL, src.LinkSelector)
		if err != nil {
			return nil, err
		}
		rc, err = l.get(ctx, csvURL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("open source: %w", config.ErrUnknownSourceKind)
	}

	dec, err := Decode(rc, src.Encoding)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return dec, nil
}

// get issues a GET and returns the streaming body. Non-2xx responses are
// errors carrying the status and up to 4KB of body.
func (l *Loader) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	cancel := context.CancelFunc(func() {})
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		cancel()
		metrics.RecordHTTP(0, time.Since(start), 0, true)
		return nil, fmt.Errorf("http get %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		metrics.RecordHTTP(resp.StatusCode, time.Since(start), 0, true)
		return nil, fmt.Errorf("http get %s: %w %d: %s", rawURL, ErrHTTPStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return &meteredBody{rc: resp.Body, status: resp.StatusCode, start: start, cancel: cancel}, nil
}

// meteredBody counts bytes read and records the request when closed.
type meteredBody struct {
	rc     io.ReadCloser
	status int
	start  time.Time
	cancel context.CancelFunc
	n      int64
	failed bool
	closed bool
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.n += int64(n)
	if err != nil && err != io.EOF {
		b.failed = true
	}
	return n, err
}

func (b *meteredBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.rc.Close()
	b.cancel()
	metrics.RecordHTTP(b.status, time.Since(b.start), b.n, b.failed)
	return err
}
