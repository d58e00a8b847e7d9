// Package uploader moves video bytes from a local source to a signed write
// URL and drives the signed-url, upload, confirm flow against the API.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
)

// RetryableTransportError is a failure worth another attempt against the
// same URL: timeouts, dropped connections, 5xx, 408 and 429.
type RetryableTransportError struct {
	StatusCode int
	Err        error
}

func (e *RetryableTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retryable upload failure: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retryable upload failure: %v", e.Err)
}

func (e *RetryableTransportError) Unwrap() error { return e.Err }

// TerminalTransportError ends the upload at once. An expired signed URL
// lands here (403) and needs a fresh issuance.
type TerminalTransportError struct {
	StatusCode int
	Err        error
}

func (e *TerminalTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload rejected: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *TerminalTransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a RetryableTransportError.
func IsRetryable(err error) bool {
	var re *RetryableTransportError
	return errors.As(err, &re)
}

// Source yields a fresh reader over the upload body for each attempt.
type Source interface {
	Open() (io.ReadCloser, int64, error)
}

// FileSource reads a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Open() (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is not a regular file", s.Path)
	}
	return f, info.Size(), nil
}

// Transport performs one upload attempt. onProgress receives the running
// byte count and must not block.
type Transport interface {
	Upload(ctx context.Context, url, contentType string, body io.Reader, size int64, onProgress func(sent int64)) error
}

// HTTPTransport PUTs the body to a signed URL.
type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{Client: client}
}

func (t *HTTPTransport) Upload(ctx context.Context, url, contentType string, body io.Reader, size int64, onProgress func(sent int64)) error {
	pr := &progressReader{r: body, onRead: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, pr)
	if err != nil {
		return &TerminalTransportError{Err: err}
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.Client.Do(req)
	if err != nil {
		if readErr := pr.readErr(); readErr != nil {
			return &TerminalTransportError{Err: readErr}
		}
		return classifyNetError(ctx, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func classifyStatus(status int, body string) error {
	msg := http.StatusText(status)
	if body != "" {
		msg = body
	}
	err := errors.New(msg)
	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return &RetryableTransportError{StatusCode: status, Err: err}
	default:
		return &TerminalTransportError{StatusCode: status, Err: err}
	}
}

func classifyNetError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return &RetryableTransportError{Err: err}
	}
	return &TerminalTransportError{Err: err}
}

// progressReader counts bytes as the HTTP client pulls them and remembers
// local read failures so they are not mistaken for network errors.
type progressReader struct {
	r      io.Reader
	sent   int64
	onRead func(int64)

	mu  sync.Mutex
	err error
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onRead != nil {
			p.onRead(p.sent)
		}
	}
	if err != nil && err != io.EOF {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressReader) readErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
