package fixture_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"coach-qa/internal/fixture"
	"coach-qa/internal/httpclient"
	"coach-qa/internal/identity"
)

type call struct {
	Principal string
	Method    string
	Path      string
}

// fakeDoer answers from a status table keyed by path and records every call.
type fakeDoer struct {
	status map[string]int
	panics map[string]bool
	calls  []call
}

func (d *fakeDoer) Do(_ context.Context, p identity.Principal, r httpclient.Request) (*httpclient.Response, error) {
	d.calls = append(d.calls, call{Principal: p.Name, Method: r.Method, Path: r.Path})
	if d.panics[r.Path] {
		panic("boom")
	}
	st, ok := d.status[r.Path]
	if !ok {
		st = http.StatusOK
	}
	if st < 0 {
		return nil, &httpclient.TransportError{Attempts: 3, Err: errors.New("connection refused")}
	}
	return &httpclient.Response{Status: st, Request: httpclient.Exchange{Method: r.Method, URL: "http://sut/api" + r.Path}}, nil
}

var (
	admin   = identity.New("super_admin", "contact.artboost@gmail.com", identity.RoleSuperAdmin, "", "")
	partner = identity.New("partner", "nouveau.partenaire@test.com", identity.RolePartner, "", "")
)

func resolver(name string) (identity.Principal, bool) {
	return identity.NewDirectory(admin, partner).Lookup(name)
}

func TestUnwind_LIFOWithRecordedPrincipal(t *testing.T) {
	r := fixture.NewRegistry()
	require.NoError(t, r.Register("campaign", "c1", nil, admin))
	require.NoError(t, r.Register("media_link", "test-abc", nil, identity.Anonymous()))
	require.NoError(t, r.Register("session", "s9", nil, partner))

	d := &fakeDoer{}
	out := r.Unwind(context.Background(), d, resolver)
	require.NoError(t, out.Err())

	want := []call{
		{"partner", http.MethodPut, "/chat/sessions/s9"},
		{"anonymous", http.MethodDelete, "/media/test-abc"},
		{"super_admin", http.MethodDelete, "/campaigns/c1"},
	}
	if diff := cmp.Diff(want, d.calls); diff != "" {
		t.Fatalf("teardown calls mismatch (-want +got):\n%s", diff)
	}
	if len(out.Attempts) != 3 || r.Len() != 0 {
		t.Fatalf("attempts=%d pending=%d, want 3 and 0", len(out.Attempts), r.Len())
	}
}

func TestRegister_DuplicateIsNoop(t *testing.T) {
	r := fixture.NewRegistry()
	require.NoError(t, r.Register("discount_code", "d1", nil, admin))
	require.NoError(t, r.Register("discount_code", "d1", nil, partner))
	require.Equal(t, 1, r.Len())
	require.Equal(t, "super_admin", r.Pending()[0].Principal.Name)
}

func TestRegister_UnknownKindNeedsRecipe(t *testing.T) {
	r := fixture.NewRegistry()
	err := r.Register("widget", "w1", nil, admin)
	require.ErrorIs(t, err, fixture.ErrUnknownKind)
	require.NoError(t, r.Register("widget", "w1", &fixture.Recipe{Path: "/widgets/{id}"}, admin))
}

func TestUnwind_BestEffort(t *testing.T) {
	r := fixture.NewRegistry()
	for _, id := range []string{"gone", "denied", "down", "panics", "fine"} {
		require.NoError(t, r.Register("offer", id, nil, admin))
	}
	d := &fakeDoer{
		status: map[string]int{"/offers/gone": 404, "/offers/denied": 403, "/offers/down": -1},
		panics: map[string]bool{"/offers/panics": true},
	}
	out := r.Unwind(context.Background(), d, resolver)

	if len(d.calls) != 5 {
		t.Fatalf("got %d deletions, want all 5 attempted", len(d.calls))
	}
	if len(out.Warnings) != 3 {
		t.Fatalf("got %d warnings, want 3: %v", len(out.Warnings), out.Warnings)
	}
	require.ErrorIs(t, out.Err(), httpclient.ErrTransport)
	oks := map[string]bool{}
	for _, a := range out.Attempts {
		oks[a.ID] = a.OK
	}
	want := map[string]bool{"gone": true, "denied": false, "down": false, "panics": false, "fine": true}
	if diff := cmp.Diff(want, oks); diff != "" {
		t.Fatalf("attempt outcomes (-want +got):\n%s", diff)
	}
}

func TestRecipePrincipalOverridesOwner(t *testing.T) {
	r := fixture.NewRegistry()
	rec := &fixture.Recipe{Method: "delete", Path: "/chat/emojis/{id}", Principal: "super_admin"}
	require.NoError(t, r.Register("chat_emoji", "e1", rec, partner))
	d := &fakeDoer{}
	require.NoError(t, r.Unwind(context.Background(), d, resolver).Err())
	require.Equal(t, []call{{"super_admin", http.MethodDelete, "/chat/emojis/e1"}}, d.calls)
}

func TestDelete_EarlyTeardownCountsOnce(t *testing.T) {
	r := fixture.NewRegistry()
	require.NoError(t, r.Register("participant", "p1", nil, admin))
	require.NoError(t, r.Register("participant", "p2", nil, admin))
	d := &fakeDoer{}

	a, err := r.Delete(context.Background(), d, resolver, "participant", "p1")
	require.NoError(t, err)
	require.True(t, a.OK)
	_, err = r.Delete(context.Background(), d, resolver, "participant", "p1")
	require.Error(t, err)

	out := r.Unwind(context.Background(), d, resolver)
	require.Len(t, out.Attempts, 2)
	require.Len(t, d.calls, 2)
}
