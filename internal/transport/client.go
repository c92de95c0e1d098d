// Package transport performs the single network call of the analysis
// pipeline: one JSON POST to the remote analysis endpoint, bounded by a
// client-side deadline. Failures are classified into the four kinds of
// Error so the retry controller can tell transient from terminal ones.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout is the per-request deadline.
const DefaultTimeout = 8 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Request is the JSON body sent to the endpoint.
type Request struct {
	Text string `json:"text"`
}

// RawResponse is the success body of the endpoint. Every field is optional;
// nil slices and a nil Flagged mean the field was absent.
type RawResponse struct {
	Flagged    *bool    `json:"flagged,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Insights   []string `json:"insights,omitempty"`
}

// errorBody is the optional JSON body of a non-2xx response.
type errorBody struct {
	Message string `json:"message"`
}

// Sender is the contract the retry controller wraps.
type Sender interface {
	Send(ctx context.Context, text string) (RawResponse, error)
}

// Client sends analysis requests over HTTP.
type Client struct {
	Endpoint string
	Timeout  time.Duration
	HTTP     *http.Client
}

// New returns a Client for endpoint with the given deadline (DefaultTimeout
// when <= 0). The underlying transport is instrumented with OpenTelemetry.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Endpoint: endpoint,
		Timeout:  timeout,
		HTTP: &http.Client{
			// Deadline is enforced per call via context.
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Send posts {"text": text} and decodes the response. The request is
// cancelled when the deadline elapses or ctx is done.
func (c *Client) Send(ctx context.Context, text string) (RawResponse, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(Request{Text: text})
	if err != nil {
		return RawResponse{}, &Error{Kind: MalformedResponse, Message: "encoding request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return RawResponse{}, &Error{Kind: NetworkFailure, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return RawResponse{}, classify(ctx, err, timeout)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return RawResponse{}, classify(ctx, err, timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("API error (%d)", resp.StatusCode)
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Message != "" {
			msg = eb.Message
		}
		return RawResponse{}, &Error{Kind: HTTPError, Status: resp.StatusCode, Message: msg}
	}

	var out RawResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return RawResponse{}, &Error{Kind: MalformedResponse, Message: "response is not valid JSON", Err: err}
	}
	return out, nil
}

// classify maps a client error to Timeout or NetworkFailure.
func classify(ctx context.Context, err error, timeout time.Duration) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Message: fmt.Sprintf("request timed out after %s", timeout), Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: Timeout, Message: fmt.Sprintf("request timed out after %s", timeout), Err: err}
	}
	return &Error{Kind: NetworkFailure, Message: "network failure", Err: err}
}
