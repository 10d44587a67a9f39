// Package httpcall adapts net/http calls to invocation suppliers.
package httpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/seantiz/courier/internal/invocation"
	"github.com/seantiz/courier/internal/status"
)

// maxBodySize bounds how much of a body is read, successful or not.
const maxBodySize = 1 << 20 // 1 MB

// Decoder decodes the body of a successful response.
type Decoder[T any] func(r io.Reader) (T, error)

// JSON decodes a JSON body into T.
func JSON[T any](r io.Reader) (T, error) {
	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		var zero T
		return zero, fmt.Errorf("decode json body: %w", err)
	}
	return v, nil
}

// Text returns the body as a string.
func Text(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

// Compile-time interface satisfaction check.
var _ invocation.Response[string] = (*Response[string])(nil)

// Response is an HTTP response seen through the invocation.Response contract.
// The body of a successful response is decoded eagerly; the body of an
// unsuccessful one stays unread until ErrorPayload is called.
type Response[T any] struct {
	code int
	body T

	mu  sync.Mutex
	raw io.ReadCloser
}

// StatusCode returns the HTTP status code.
func (r *Response[T]) StatusCode() int {
	return r.code
}

// Successful reports whether the status code is 2xx.
func (r *Response[T]) Successful() bool {
	return status.FamilyOf(r.code) == status.FamilySuccessful
}

// Body returns the decoded body.
func (r *Response[T]) Body() T {
	return r.body
}

// ErrorPayload reads and closes the raw body. Later calls return "".
func (r *Response[T]) ErrorPayload() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raw == nil {
		return "", nil
	}
	raw := r.raw
	r.raw = nil
	defer raw.Close()

	b, err := io.ReadAll(io.LimitReader(raw, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read error body: %w", err)
	}
	return string(b), nil
}

// Close releases the raw body if it was never read.
func (r *Response[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raw == nil {
		return nil
	}
	err := r.raw.Close()
	r.raw = nil
	return err
}

// Do returns a supplier that sends the request built by newRequest with
// client and decodes successful bodies with decode. A transport error or a
// decoding error is returned as the supplier's error.
func Do[T any](client *http.Client, newRequest func() (*http.Request, error), decode Decoder[T]) invocation.Supplier[T] {
	return func() (invocation.Response[T], error) {
		req, err := newRequest()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		out := &Response[T]{code: resp.StatusCode}
		if !out.Successful() {
			out.raw = resp.Body
			return out, nil
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNoContent {
			return out, nil
		}
		body, err := decode(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		out.body = body
		return out, nil
	}
}

// Get returns a supplier that GETs target.
func Get[T any](ctx context.Context, client *http.Client, target string, decode Decoder[T]) invocation.Supplier[T] {
	return Do(client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")
		return req, nil
	}, decode)
}

// NewClient returns an HTTP client whose requests time out after timeout.
// A non-positive timeout disables the limit.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	return &http.Client{Timeout: timeout}
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
