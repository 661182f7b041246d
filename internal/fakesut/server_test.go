package fakesut_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coach-qa/internal/clock"
	"coach-qa/internal/fakesut"
)

const (
	admin   = "contact.artboost@gmail.com"
	partner = "nouveau.partenaire@test.com"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func do(t *testing.T, h http.Handler, method, path, email string, body any) (int, map[string]any, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var obj map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &obj)
	return rec.Code, obj, rec.Body.Bytes()
}

func TestReservations_TenantFiltering(t *testing.T) {
	h := fakesut.New(fakesut.Options{}).Handler()

	code, body, _ := do(t, h, http.MethodGet, "/api/reservations", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 7, body["pagination"].(map[string]any)["total"])

	// Super-admin detection ignores case.
	_, body, _ = do(t, h, http.MethodGet, "/api/reservations", "Contact.ArtBoost@Gmail.com", nil)
	require.EqualValues(t, 7, body["pagination"].(map[string]any)["total"])

	_, body, _ = do(t, h, http.MethodGet, "/api/reservations", partner, nil)
	require.EqualValues(t, 0, body["pagination"].(map[string]any)["total"])
	require.Empty(t, body["data"])

	code, _, _ = do(t, h, http.MethodGet, "/api/reservations", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestReservations_PageBeyondPagesKeepsTotal(t *testing.T) {
	h := fakesut.New(fakesut.Options{}).Handler()
	_, body, _ := do(t, h, http.MethodGet, "/api/reservations?page=9&limit=5", admin, nil)
	require.Empty(t, body["data"])
	p := body["pagination"].(map[string]any)
	require.EqualValues(t, 7, p["total"])
	require.EqualValues(t, 2, p["pages"])
}

func TestMediaLink_ViewsAndDelete(t *testing.T) {
	h := fakesut.New(fakesut.Options{}).Handler()
	code, body, _ := do(t, h, http.MethodPost, "/api/media/create", "", map[string]string{
		"slug": "Test-ABC", "video_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "title": "T",
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "test-abc", body["media_link"].(map[string]any)["slug"])

	_, first, _ := do(t, h, http.MethodGet, "/api/media/test-abc", "", nil)
	_, second, _ := do(t, h, http.MethodGet, "/api/media/test-abc", "", nil)
	require.Equal(t, "dQw4w9WgXcQ", first["youtube_id"])
	require.Greater(t, second["views"].(float64), first["views"].(float64))

	code, _, _ = do(t, h, http.MethodDelete, "/api/media/test-abc", "", nil)
	require.Equal(t, http.StatusOK, code)
	code, _, _ = do(t, h, http.MethodGet, "/api/media/test-abc", "", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestCampaign_PromotedAfterSchedulerTick(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, time.March, 29, 9, 0, 0, 0, time.UTC)}
	h := fakesut.New(fakesut.Options{Now: clk.Now}).Handler()

	due, err := clock.ParisWallOffset(clk.Now(), "-60s")
	require.NoError(t, err)
	code, body, _ := do(t, h, http.MethodPost, "/api/campaigns", admin, map[string]any{
		"name": "QA", "message": "hello", "scheduledAt": due,
		"channels": map[string]bool{"group": true}, "targetGroupId": "community",
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "scheduled", body["status"])
	id := body["id"].(string)

	_, body, _ = do(t, h, http.MethodGet, "/api/campaigns/"+id, admin, nil)
	require.Equal(t, "scheduled", body["status"], "promoted before the first poller tick")

	clk.Advance(75 * time.Second)
	_, body, _ = do(t, h, http.MethodGet, "/api/campaigns/"+id, admin, nil)
	require.Equal(t, "completed", body["status"])
}

func TestCampaign_UpdateUnknownReturnsNull(t *testing.T) {
	h := fakesut.New(fakesut.Options{}).Handler()
	code, _, raw := do(t, h, http.MethodPut, "/api/campaigns/nope", admin, map[string]string{"name": "x"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "null", string(bytes.TrimSpace(raw)))
}

func TestCredits_SuperAdminBypass(t *testing.T) {
	s := fakesut.New(fakesut.Options{})
	h := s.Handler()
	_, body, _ := do(t, h, http.MethodPost, "/api/credits/deduct", admin, map[string]string{"action": "test"})
	require.Equal(t, map[string]any{"success": true, "bypassed": true, "credits_remaining": float64(-1)}, body)

	s.SetCredits(partner, 1)
	_, body, _ = do(t, h, http.MethodPost, "/api/credits/deduct", partner, map[string]string{"action": "test"})
	require.Equal(t, false, body["bypassed"])
	code, _, _ := do(t, h, http.MethodPost, "/api/credits/deduct", partner, map[string]string{"action": "test"})
	require.Equal(t, http.StatusPaymentRequired, code)
}

func TestDiscountCode_DuplicateConflicts(t *testing.T) {
	h := fakesut.New(fakesut.Options{}).Handler()
	in := map[string]any{"code": "TEST-DUP-1", "type": "%", "value": 10, "courses": []string{}}
	code, _, _ := do(t, h, http.MethodPost, "/api/discount-codes", admin, in)
	require.Equal(t, http.StatusOK, code)
	code, body, _ := do(t, h, http.MethodPost, "/api/discount-codes", admin, in)
	require.Equal(t, http.StatusConflict, code)
	require.NotEmpty(t, body["detail"])
	code, _, _ = do(t, h, http.MethodPost, "/api/discount-codes", partner, in)
	require.Equal(t, http.StatusForbidden, code)
}

func TestSessions_SoftDeleteAndReveal(t *testing.T) {
	h := fakesut.New(fakesut.Options{}).Handler()
	_, body, _ := do(t, h, http.MethodPost, "/api/chat/sessions", admin, map[string]string{"title": "QA"})
	id := body["id"].(string)

	code, _, _ := do(t, h, http.MethodPut, "/api/chat/sessions/"+id, admin, map[string]bool{"is_deleted": true})
	require.Equal(t, http.StatusOK, code)

	_, body, _ = do(t, h, http.MethodGet, "/api/chat/sessions", admin, nil)
	require.EqualValues(t, 0, body["count"])
	_, body, _ = do(t, h, http.MethodGet, "/api/chat/sessions?include_deleted=true", admin, nil)
	require.EqualValues(t, 1, body["count"])
}

func TestFailNext(t *testing.T) {
	s := fakesut.New(fakesut.Options{})
	h := s.Handler()
	s.FailNext(http.MethodGet, "/api/health", http.StatusServiceUnavailable, 1)
	code, _, _ := do(t, h, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	code, _, _ = do(t, h, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, s.Requests(), 2)
}
