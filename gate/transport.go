package gate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
)

const maxResponseBody = 10 << 20

// Request is a protected call. The body is held in memory so the request can be replayed.
type Request struct {
	Method string
	// URL is absolute, or a path resolved against the transport's base URL
	URL    string
	Header http.Header
	Body   []byte
}

func (r *Request) clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// Response is a fully read reply with its classification
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Class      Classification
}

// Transport executes one request. A returned error means no response was received.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is a Transport over net/http
type HTTPTransport struct {
	client  *http.Client
	baseURL string
}

var _ Transport = (*HTTPTransport)(nil)

type HTTPTransportOption func(*HTTPTransport)

func WithHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// NewHTTPTransport resolves relative request URLs against baseURL
func NewHTTPTransport(baseURL string, options ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	if strings.HasPrefix(target, "/") {
		target = t.baseURL + target
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("[HTTPTransport Do] build request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTransient(req.Method+" "+req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, apperrors.NewTransient(req.Method+" "+req.URL, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Class:      Classify(resp.StatusCode),
	}, nil
}

// StatusError is a non-success response turned into an error by DoJSON
type StatusError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	if e.Description == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

func newStatusError(resp *Response) *StatusError {
	e := &StatusError{StatusCode: resp.StatusCode}
	var body authapi.ErrorResponse
	if len(resp.Body) > 0 && authapi.Decode(bytes.NewReader(resp.Body), &body) == nil {
		e.Code = body.Error
		e.Description = body.ErrorDescription
	}
	return e
}
