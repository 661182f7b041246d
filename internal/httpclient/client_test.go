package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coach-qa/internal/httpclient"
	"coach-qa/internal/identity"
)

func newClient(base string) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		BaseURL:     base,
		APIPrefix:   "/api",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
	}, nil)
}

var admin = identity.New("super_admin", "contact.artboost@gmail.com", identity.RoleSuperAdmin, "", "")

// flaky fails the first n calls with status, then answers 200.
func flaky(n int32, status int) (*httptest.Server, *int32) {
	calls := new(int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(calls, 1) <= n {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	return srv, calls
}

func TestURLJoin(t *testing.T) {
	c := httpclient.New(httpclient.Config{BaseURL: "http://svc.local/", APIPrefix: "/api/"}, nil)
	got, err := c.URL("/health", nil)
	require.NoError(t, err)
	if got != "http://svc.local/api/health" {
		t.Fatalf("URL = %s", got)
	}
	got, _ = c.URL("/reservations", map[string]string{"page": "2", "limit": "10"})
	if got != "http://svc.local/api/reservations?limit=10&page=2" {
		t.Fatalf("URL with query = %s", got)
	}
	if _, err := c.URL("health", nil); !errors.Is(err, httpclient.ErrInvalidRequest) {
		t.Fatalf("relative path: want ErrInvalidRequest, got %v", err)
	}
}

func TestDo_RejectsUnsupportedMethod(t *testing.T) {
	c := newClient("http://127.0.0.1:1")
	_, err := c.Do(context.Background(), admin, httpclient.Request{Method: "TRACE", Path: "/x"})
	if !errors.Is(err, httpclient.ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

func TestDo_RetriesGatewayErrorsForGET(t *testing.T) {
	srv, calls := flaky(2, http.StatusServiceUnavailable)
	defer srv.Close()

	resp, err := newClient(srv.URL).Get(context.Background(), admin, httpclient.Request{Path: "/health"})
	require.NoError(t, err)
	if resp.Status != 200 || resp.Attempts != 3 || atomic.LoadInt32(calls) != 3 {
		t.Fatalf("status=%d attempts=%d calls=%d", resp.Status, resp.Attempts, atomic.LoadInt32(calls))
	}
	if !resp.Decoded() {
		t.Fatalf("body should decode: %v", resp.DecodeErr)
	}
}

func TestDo_ExhaustedGatewayErrorsReturnLastResponse(t *testing.T) {
	srv, _ := flaky(100, http.StatusBadGateway)
	defer srv.Close()

	resp, err := newClient(srv.URL).Get(context.Background(), admin, httpclient.Request{Path: "/x"})
	require.NoError(t, err)
	if resp.Status != http.StatusBadGateway || resp.Attempts != 3 {
		t.Fatalf("status=%d attempts=%d, want 502 after 3", resp.Status, resp.Attempts)
	}
}

func TestDo_NeverRetries4xx(t *testing.T) {
	srv, calls := flaky(100, http.StatusNotFound)
	defer srv.Close()

	resp, err := newClient(srv.URL).Delete(context.Background(), admin, httpclient.Request{Path: "/media/x"})
	require.NoError(t, err)
	if resp.Status != 404 || resp.Attempts != 1 || atomic.LoadInt32(calls) != 1 {
		t.Fatalf("status=%d attempts=%d calls=%d", resp.Status, resp.Attempts, atomic.LoadInt32(calls))
	}
}

func TestDo_POSTRetriedOnlyWithIdempotencyKey(t *testing.T) {
	srv, calls := flaky(1, http.StatusServiceUnavailable)
	defer srv.Close()
	c := newClient(srv.URL)

	resp, err := c.Post(context.Background(), admin, httpclient.Request{Path: "/campaigns", Body: map[string]any{"a": 1}})
	require.NoError(t, err)
	if resp.Status != 503 || resp.Attempts != 1 {
		t.Fatalf("unkeyed POST: status=%d attempts=%d", resp.Status, resp.Attempts)
	}

	atomic.StoreInt32(calls, 0)
	key := httpclient.NewIdempotencyKey()
	resp, err = c.Post(context.Background(), admin, httpclient.Request{Path: "/campaigns", Body: map[string]any{"a": 1}, IdempotencyKey: key})
	require.NoError(t, err)
	if resp.Status != 200 || resp.Attempts != 2 {
		t.Fatalf("keyed POST: status=%d attempts=%d", resp.Status, resp.Attempts)
	}
	if resp.Request.Header.Get(httpclient.IdempotencyHeader) != key {
		t.Fatalf("idempotency header = %q", resp.Request.Header.Get(httpclient.IdempotencyHeader))
	}
}

func TestDo_ConnectionRefusedRetriesUnsentPOST(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := newClient(base).Post(context.Background(), admin, httpclient.Request{Path: "/x", Body: "{}"})
	var terr *httpclient.TransportError
	if !errors.As(err, &terr) || !errors.Is(err, httpclient.ErrTransport) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if terr.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (request never reached the server)", terr.Attempts)
	}
}

func TestDo_ReadTimeoutIsTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Get(context.Background(), admin, httpclient.Request{Path: "/slow", Timeout: 50 * time.Millisecond})
	if !errors.Is(err, httpclient.ErrTransport) {
		t.Fatalf("want ErrTransport, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestDo_HeaderLayering(t *testing.T) {
	seen := make(chan http.Header, 4)
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen <- r.Header.Clone()
		bodies <- string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := newClient(srv.URL)
	ctx := context.Background()

	_, err := c.Post(ctx, admin, httpclient.Request{
		Path:    "/x",
		Body:    map[string]any{"k": "v"},
		Headers: map[string]string{"Accept": "text/plain", "X-Trace": "1"},
	})
	require.NoError(t, err)
	h := <-seen
	if h.Get("X-User-Email") != "contact.artboost@gmail.com" || h.Get("Content-Type") != "application/json" ||
		h.Get("Accept") != "text/plain" || h.Get("X-Trace") != "1" {
		t.Fatalf("headers = %v", h)
	}
	if b := <-bodies; b != `{"k":"v"}` {
		t.Fatalf("body = %s", b)
	}

	_, err = c.Put(ctx, identity.Anonymous(), httpclient.Request{Path: "/x", Body: "raw=1", Headers: map[string]string{"Accept": ""}})
	require.NoError(t, err)
	h = <-seen
	if h.Get("X-User-Email") != "" {
		t.Fatal("anonymous principal must not send the tenant header")
	}
	if h.Get("Content-Type") != "" || h.Get("Accept") != "" {
		t.Fatalf("string body must not get a default content type, empty header must delete: %v", h)
	}
	if b := <-bodies; b != "raw=1" {
		t.Fatalf("string body must go out verbatim, got %s", b)
	}
}

func TestDo_RequestHeadersCannotTouchTenantHeader(t *testing.T) {
	seen := make(chan http.Header, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := newClient(srv.URL)
	ctx := context.Background()

	_, err := c.Get(ctx, admin, httpclient.Request{Path: "/x", Headers: map[string]string{"x-user-email": ""}})
	require.NoError(t, err)
	if got := (<-seen).Get("X-User-Email"); got != "contact.artboost@gmail.com" {
		t.Fatalf("tenant header = %q, want the principal's email", got)
	}

	_, err = c.Get(ctx, identity.Anonymous(), httpclient.Request{Path: "/x", Headers: map[string]string{"X-User-Email": "intruder@test.com"}})
	require.NoError(t, err)
	if h := <-seen; len(h.Values("X-User-Email")) != 0 {
		t.Fatalf("anonymous call sent tenant header %v", h.Values("X-User-Email"))
	}
}

func TestPools_PerPrincipalAndOrigin(t *testing.T) {
	pools := httpclient.NewPools()
	a := pools.For("super_admin", "http://a")
	if pools.For("super_admin", "http://a") != a {
		t.Fatal("same key must reuse the pool")
	}
	if pools.For("partner", "http://a") == a || pools.For("super_admin", "http://b") == a {
		t.Fatal("different principal or origin must get its own pool")
	}
	if pools.Len() != 3 {
		t.Fatalf("pools = %d, want 3", pools.Len())
	}
}
