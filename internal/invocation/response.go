package invocation

import (
	"sync"

	"github.com/seantiz/courier/internal/status"
)

// Supplier performs the blocking call. It is invoked at most once per
// invocation, never on the foreground.
type Supplier[T any] func() (Response[T], error)

// Response is the structured result of a call.
type Response[T any] interface {
	// StatusCode returns the numeric status code.
	StatusCode() int

	// Successful reports whether the call succeeded.
	Successful() bool

	// Body returns the decoded body of a successful response.
	Body() T

	// ErrorPayload returns the raw error payload. The payload can be consumed
	// only once; later calls return an empty string.
	ErrorPayload() (string, error)
}

// Compile-time interface satisfaction check.
var _ Response[string] = (*Reply[string])(nil)

// Reply is an in-memory Response.
type Reply[T any] struct {
	code int
	body T

	mu       sync.Mutex
	payload  string
	consumed bool
}

// NewReply returns a response carrying body. It is successful for 2xx codes.
func NewReply[T any](code int, body T) *Reply[T] {
	return &Reply[T]{code: code, body: body}
}

// NewErrorReply returns a response carrying an error payload.
func NewErrorReply[T any](code int, payload string) *Reply[T] {
	return &Reply[T]{code: code, payload: payload}
}

// StatusCode returns the status code.
func (r *Reply[T]) StatusCode() int {
	return r.code
}

// Successful reports whether the status code is in the 2xx family.
func (r *Reply[T]) Successful() bool {
	return status.FamilyOf(r.code) == status.FamilySuccessful
}

// Body returns the body.
func (r *Reply[T]) Body() T {
	return r.body
}

// ErrorPayload returns the payload on the first call and "" afterwards.
func (r *Reply[T]) ErrorPayload() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return "", nil
	}
	r.consumed = true
	p := r.payload
	r.payload = ""
	return p, nil
}
