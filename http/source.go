// Package http provides a packstream.Source that streams a URL forward.
//
// The content size is learned up front from a HEAD request, falling back to a
// one-byte range probe. The body itself is fetched with a single GET that is
// opened on the first Read and consumed strictly in order, so the remote is
// contacted once no matter how the cached stream is accessed.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
)

var (
	// ErrUnknownSize is returned when the server reports neither a
	// Content-Length nor a Content-Range total.
	ErrUnknownSize = errors.New("http: unknown content size")

	// ErrModified is returned when conditional headers are enabled and the
	// remote content changed after the size was probed.
	ErrModified = errors.New("http: content modified")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("http: source closed")
)

// Source streams the content of a URL from start to end.
// It satisfies packstream.Source.
type Source struct {
	ctx                   context.Context
	url                   string
	client                *nethttp.Client
	headers               nethttp.Header
	logger                *slog.Logger
	size                  int64
	etag                  string
	lastModified          string
	useConditionalHeaders bool

	body   io.ReadCloser
	off    int64
	closed bool
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithConditionalHeaders sends If-Match / If-Unmodified-Since with the body
// request so a change between probe and download is detected.
// This is disabled by default because some servers reject conditional requests.
func WithConditionalHeaders() Option {
	return func(s *Source) {
		s.useConditionalHeaders = true
	}
}

// WithLogger sets the logger used for request events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource probes url for its size and returns a Source for it.
// ctx bounds the probe and the later body download.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:    ctx,
		url:    url,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}

	if err := s.fetchMetadata(); err != nil {
		return nil, err
	}
	s.log().Debug("http source probed", "url", s.url, "size", s.size, "etag", s.etag)
	return s, nil
}

func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// ETag returns the entity tag reported by the server, if any.
func (s *Source) ETag() string {
	return s.etag
}

// Read reads the next bytes of the body, opening the request on first use.
// A body that ends before Size bytes yields io.ErrUnexpectedEOF.
func (s *Source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.off >= s.size {
		return 0, io.EOF
	}
	if s.body == nil {
		body, err := s.openBody()
		if err != nil {
			return 0, err
		}
		s.body = body
	}

	if rem := s.size - s.off; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.body.Read(p)
	s.off += int64(n)
	if err == io.EOF {
		if s.off < s.size {
			return n, fmt.Errorf("read %s at %d of %d: %w", s.url, s.off, s.size, io.ErrUnexpectedEOF)
		}
		return n, io.EOF
	}
	return n, err
}

// Close releases the connection, if one was opened.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body == nil {
		return nil
	}
	s.log().Debug("http source closed", "url", s.url, "read", s.off, "size", s.size)
	return s.body.Close()
}

// openBody issues the GET for the whole content.
func (s *Source) openBody() (io.ReadCloser, error) {
	req, err := s.newRequest(nethttp.MethodGet, true)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == nethttp.StatusOK:
		// ok
	case resp.StatusCode == nethttp.StatusPreconditionFailed && s.hasConditionalHeaders():
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w", s.url, ErrModified)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %s", s.url, resp.Status)
	}
	s.log().Debug("http body opened", "url", s.url, "content_length", resp.ContentLength)
	return resp.Body, nil
}

// fetchMetadata learns the size and validators from HEAD, falling back to a
// range probe when HEAD is refused or carries no length.
func (s *Source) fetchMetadata() error {
	if resp, err := s.doHead(); err == nil {
		resp.Body.Close()
		if resp.StatusCode == nethttp.StatusOK && resp.ContentLength >= 0 {
			s.size = resp.ContentLength
			s.etag = resp.Header.Get("ETag")
			s.lastModified = resp.Header.Get("Last-Modified")
			return nil
		}
	}
	return s.rangeProbe()
}

// rangeProbe extracts the content size from the Content-Range of a one-byte request.
func (s *Source) rangeProbe() error {
	req, err := s.newRequest(nethttp.MethodGet, false)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		// ok
	case nethttp.StatusOK:
		if resp.ContentLength < 0 {
			return fmt.Errorf("probe %s: %w", s.url, ErrUnknownSize)
		}
		s.size = resp.ContentLength
		s.etag = resp.Header.Get("ETag")
		s.lastModified = resp.Header.Get("Last-Modified")
		return nil
	default:
		return fmt.Errorf("probe %s: %s", s.url, resp.Status)
	}

	crange := resp.Header.Get("Content-Range")
	if crange == "" {
		return fmt.Errorf("probe %s: %w", s.url, ErrUnknownSize)
	}
	size, err := parseContentRange(crange)
	if err != nil {
		return err
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	return nil
}

func (s *Source) doHead() (*nethttp.Response, error) {
	req, err := s.newRequest(nethttp.MethodHead, false)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}

// newRequest creates an HTTP request with configured headers and optional conditional headers.
func (s *Source) newRequest(method string, withConditions bool) (*nethttp.Request, error) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if method == nethttp.MethodGet && withConditions && s.useConditionalHeaders {
		if s.etag != "" && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.etag)
		}
		if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return req, nil
}

func (s *Source) hasConditionalHeaders() bool {
	if !s.useConditionalHeaders {
		return false
	}
	return s.etag != "" || s.lastModified != ""
}

// parseContentRange extracts the total size from a Content-Range header value.
// It expects the format "bytes start-end/size" and returns the size portion.
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	parts := strings.SplitN(strings.TrimPrefix(value, "bytes "), "/", 2)
	if len(parts) != 2 || parts[1] == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
