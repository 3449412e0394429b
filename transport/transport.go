// Package transport sends requests to the storefront backend and returns the
// raw status and body. It does not interpret status codes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNetwork is matched by every *NetworkError.
var ErrNetwork = errors.New("network error")

// Request is one outbound call. Path is resolved against the transport's base URL.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Clone returns a copy of r with its own header map.
func (r *Request) Clone() *Request {
	c := *r
	c.Headers = make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		c.Headers[k] = v
	}
	return &c
}

// Response is a well-formed reply from the remote endpoint, whatever its status.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// NetworkError signals that the exchange never completed: DNS, dial,
// timeout, reset, or a truncated body.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// Transport sends a Request. A non-nil error is always a *NetworkError.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

func (f Func) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
