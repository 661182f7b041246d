// Package httpclient issues calls against the service under test: URL joining,
// header layering per principal, bounded retries on transient failures and
// connection pools per (principal, origin).
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"coach-qa/internal/env"
	"coach-qa/internal/identity"
	"coach-qa/internal/inspect"
	"coach-qa/pkg/logging"
)

var (
	ErrTransport      = errors.New("transport error")
	ErrInvalidRequest = errors.New("invalid request")
)

// MaxBackoff caps the delay between attempts.
const MaxBackoff = 5 * time.Second

// IdempotencyHeader carries Request.IdempotencyKey.
const IdempotencyHeader = "Idempotency-Key"

// ---- Model ----

type Request struct {
	Method string
	Path   string // relative to base URL + API prefix; must start with "/"
	Query  map[string]string
	// Headers override engine defaults and principal headers. An empty value
	// removes the header.
	Headers map[string]string
	// Body is nil when absent. Strings and []byte go out verbatim, everything
	// else is JSON-encoded.
	Body           any
	Timeout        time.Duration
	IdempotencyKey string
}

// Exchange is what actually went over the wire on the final attempt.
type Exchange struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is never modified after Do returns it.
type Response struct {
	Status    int
	Header    http.Header
	BodyRaw   []byte
	BodyJSON  any // inspect.Undecoded when BodyRaw is not JSON
	DecodeErr error
	Elapsed   time.Duration
	Attempts  int
	Request   Exchange
}

func (r *Response) Decoded() bool { return !inspect.IsUndecoded(r.BodyJSON) }

func (r *Response) View() inspect.View { return inspect.Envelope(r.BodyJSON) }

// TransportError is returned once retries are exhausted without any response
// worth reporting. errors.Is(err, ErrTransport) holds.
type TransportError struct {
	Attempts int
	Elapsed  time.Duration
	Request  Exchange
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error after %d attempt(s): %s %s: %v", e.Attempts, e.Request.Method, e.Request.URL, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ---- Client ----

type Config struct {
	BaseURL     string
	APIPrefix   string
	Timeout     time.Duration
	MaxAttempts int
	RetryBase   time.Duration

	// TenantHeader is owned by the principal. Per-request headers cannot set
	// or delete it.
	TenantHeader string
}

func ConfigFrom(e *env.Environment) Config {
	return Config{
		BaseURL:      e.BaseURL(),
		APIPrefix:    e.APIPrefix(),
		Timeout:      e.DefaultTimeout(),
		MaxAttempts:  e.Retry().MaxAttempts,
		RetryBase:    e.Retry().Base,
		TenantHeader: e.TenantHeader(),
	}
}

type Client struct {
	cfg    Config
	pools  *Pools
	origin string
}

// New builds a client. Pools may be shared between clients; nil allocates a
// private set.
func New(cfg Config, pools *Pools) *Client {
	if pools == nil {
		pools = NewPools()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = env.DefaultTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = env.DefaultRetryBase
	}
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = identity.DefaultTenantHeader
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	origin := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		origin = u.Scheme + "://" + u.Host
	}
	return &Client{cfg: cfg, pools: pools, origin: origin}
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) Get(ctx context.Context, p identity.Principal, r Request) (*Response, error) {
	r.Method = http.MethodGet
	return c.Do(ctx, p, r)
}

func (c *Client) Post(ctx context.Context, p identity.Principal, r Request) (*Response, error) {
	r.Method = http.MethodPost
	return c.Do(ctx, p, r)
}

func (c *Client) Put(ctx context.Context, p identity.Principal, r Request) (*Response, error) {
	r.Method = http.MethodPut
	return c.Do(ctx, p, r)
}

func (c *Client) Patch(ctx context.Context, p identity.Principal, r Request) (*Response, error) {
	r.Method = http.MethodPatch
	return c.Do(ctx, p, r)
}

func (c *Client) Delete(ctx context.Context, p identity.Principal, r Request) (*Response, error) {
	r.Method = http.MethodDelete
	return c.Do(ctx, p, r)
}

// URL joins base URL, API prefix and path with exactly one slash between them.
func (c *Client) URL(path string, query map[string]string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: path %q must start with /", ErrInvalidRequest, path)
	}
	u := c.cfg.BaseURL
	if p := strings.Trim(c.cfg.APIPrefix, "/"); p != "" {
		u += "/" + p
	}
	u += "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + q.Encode()
	}
	return u, nil
}

// Timeout is the per-attempt deadline Do will apply to r.
func (c *Client) Timeout(r Request) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return c.cfg.Timeout
}

var errRetryableStatus = errors.New("retryable status")

// Do performs r as principal p. Non-2xx statuses are returned as ordinary
// responses; only exhausted transport failures produce an error.
func (c *Client) Do(ctx context.Context, p identity.Principal, r Request) (*Response, error) {
	method := strings.ToUpper(r.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, r.Method)
	}
	target, err := c.URL(r.Path, r.Query)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	hdr := mergeHeaders(p, r, c.cfg.TenantHeader, body != nil, contentType)
	hc := c.pools.For(p.Name, c.origin)
	timeout := c.Timeout(r)
	safe := method == http.MethodGet || method == http.MethodDelete || r.IdempotencyKey != ""
	exch := Exchange{Method: method, URL: target, Header: hdr, Body: body}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.RetryBase,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         MaxBackoff,
	}
	bo.Reset()

	start := time.Now()
	attempts := 0
	var last *Response
	op := func() (*Response, error) {
		attempts++
		resp, reached, err := attempt(ctx, hc, exch, timeout)
		if err != nil {
			if errors.Is(err, ErrInvalidRequest) {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() == nil && transient(err) && (safe || !reached) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		last = resp
		if retryableStatus(resp.Status) && safe {
			return nil, errRetryableStatus
		}
		return resp, nil
	}
	notify := func(err error, d time.Duration) {
		logging.Debug("HTTP", "%s %s attempt %d failed (%v), retrying in %s", method, target, attempts, err, d)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	elapsed := time.Since(start)
	if err != nil && errors.Is(err, errRetryableStatus) && last != nil {
		resp, err = last, nil
	}
	if errors.Is(err, ErrInvalidRequest) {
		return nil, err
	}
	if err != nil {
		return nil, &TransportError{Attempts: attempts, Elapsed: elapsed, Request: exch, Err: err}
	}

	decoded, decErr := inspect.Decode(resp.BodyRaw)
	out := &Response{
		Status:    resp.Status,
		Header:    resp.Header,
		BodyRaw:   resp.BodyRaw,
		BodyJSON:  decoded,
		DecodeErr: decErr,
		Elapsed:   elapsed,
		Attempts:  attempts,
		Request:   exch,
	}
	logging.Debug("HTTP", "%s %s -> %d in %s (%d attempt(s))", method, target, out.Status, elapsed.Round(time.Millisecond), attempts)
	return out, nil
}

func attempt(ctx context.Context, hc *http.Client, ex Exchange, timeout time.Duration) (*Response, bool, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	}
	var rd io.Reader
	if ex.Body != nil {
		rd = bytes.NewReader(ex.Body)
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(actx, trace), ex.Method, ex.URL, rd)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header = ex.Header.Clone()

	resp, err := hc.Do(req)
	if err != nil {
		return nil, wrote.Load(), err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), BodyRaw: data}, true, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func encodeBody(b any) ([]byte, string, error) {
	switch x := b.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(x), "", nil
	case []byte:
		return x, "", nil
	case json.RawMessage:
		return x, "application/json", nil
	default:
		buf, err := json.Marshal(x)
		if err != nil {
			return nil, "", fmt.Errorf("json marshal body: %w", err)
		}
		return buf, "application/json", nil
	}
}

func mergeHeaders(p identity.Principal, r Request, tenantHeader string, hasBody bool, contentType string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if hasBody && contentType != "" {
		h.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers() {
		h.Set(k, v)
	}
	if r.IdempotencyKey != "" {
		h.Set(IdempotencyHeader, r.IdempotencyKey)
	}
	tenant := http.CanonicalHeaderKey(tenantHeader)
	for k, v := range r.Headers {
		if http.CanonicalHeaderKey(k) == tenant {
			continue
		}
		if v == "" {
			h.Del(k)
			continue
		}
		h.Set(k, v)
	}
	return h
}

// NewIdempotencyKey returns a random key suitable for Request.IdempotencyKey.
func NewIdempotencyKey() string { return uuid.NewString() }
