// Package fakesut is an in-memory stand-in for the coaching backend. It
// implements the observable contract the missions exercise (tenant header,
// listing envelopes, soft delete, scheduler promotion, credit bypass) and is
// used by tests and cmd/apimock.
package fakesut

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Emails recognized as super admin.
var DefaultSuperAdmins = []string{"contact.artboost@gmail.com", "afroboost.bassi@gmail.com"}

// BassiEmail owns the canonical seed data.
const BassiEmail = "afroboost.bassi@gmail.com"

// SchedulerCycle is the default campaign poller interval.
const SchedulerCycle = 60 * time.Second

type Options struct {
	// Now defaults to time.Now.
	Now            func() time.Time
	TenantHeader   string
	SuperAdmins    []string
	SchedulerCycle time.Duration
}

// Seen is one request as the server received it.
type Seen struct {
	Method    string
	Path      string
	Tenant    string
	HasTenant bool
	Header    http.Header
}

type fault struct {
	status int
	left   int
}

// Server holds all fake backend state. Safe for concurrent use.
type Server struct {
	opts    Options
	started time.Time

	mu           sync.Mutex
	reservations []*Reservation
	media        map[string]*MediaLink
	campaigns    map[string]*Campaign
	codes        map[string]*DiscountCode
	participants []*Participant
	sessions     map[string]*Session
	credits      map[string]int
	seen         []Seen
	faults       map[string]*fault
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TenantHeader == "" {
		opts.TenantHeader = "X-User-Email"
	}
	if len(opts.SuperAdmins) == 0 {
		opts.SuperAdmins = DefaultSuperAdmins
	}
	if opts.SchedulerCycle <= 0 {
		opts.SchedulerCycle = SchedulerCycle
	}
	s := &Server{
		opts:      opts,
		started:   opts.Now(),
		media:     map[string]*MediaLink{},
		campaigns: map[string]*Campaign{},
		codes:     map[string]*DiscountCode{},
		sessions:  map[string]*Session{},
		credits:   map[string]int{},
		faults:    map[string]*fault{},
	}
	s.seed()
	return s
}

// Handler returns the router mounted under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.record)
	r.Use(s.injectFaults)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)

		r.Get("/reservations", s.ListReservations)
		r.Delete("/reservations/{id}", s.DeleteReservation)

		r.Post("/media/create", s.CreateMediaLink)
		r.Get("/media/{slug}", s.GetMediaLink)
		r.Delete("/media/{slug}", s.DeleteMediaLink)

		r.Get("/campaigns", s.ListCampaigns)
		r.Post("/campaigns", s.CreateCampaign)
		r.Get("/campaigns/{id}", s.GetCampaign)
		r.Put("/campaigns/{id}", s.UpdateCampaign)
		r.Delete("/campaigns/{id}", s.DeleteCampaign)

		r.Get("/credits/check", s.CheckCredits)
		r.Post("/credits/deduct", s.DeductCredits)

		r.Get("/discount-codes", s.ListDiscountCodes)
		r.Post("/discount-codes", s.CreateDiscountCode)
		r.Delete("/discount-codes/{id}", s.DeleteDiscountCode)

		r.Get("/chat/participants", s.ListParticipants)
		r.Post("/chat/participants", s.CreateParticipant)
		r.Delete("/chat/participants/{id}", s.DeleteParticipant)

		r.Get("/chat/sessions", s.ListSessions)
		r.Post("/chat/sessions", s.CreateSession)
		r.Put("/chat/sessions/{id}", s.UpdateSession)
	})
	return r
}

// ---- middleware ----

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := r.Header[http.CanonicalHeaderKey(s.opts.TenantHeader)]
		seen := Seen{Method: r.Method, Path: r.URL.Path, HasTenant: ok, Header: r.Header.Clone()}
		if ok && len(v) > 0 {
			seen.Tenant = v[0]
		}
		s.mu.Lock()
		s.seen = append(s.seen, seen)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f := s.faults[r.Method+" "+r.URL.Path]
		status := 0
		if f != nil && f.left > 0 {
			f.left--
			status = f.status
		}
		s.mu.Unlock()
		if status != 0 {
			writeDetail(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next n requests to method+path answer status.
func (s *Server) FailNext(method, path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[strings.ToUpper(method)+" "+path] = &fault{status: status, left: n}
}

// Requests returns every request received so far.
func (s *Server) Requests() []Seen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seen)
}

// ---- identity ----

type caller struct {
	email string
	admin bool
}

func (c caller) anonymous() bool { return c.email == "" }

func (s *Server) caller(r *http.Request) caller {
	email := strings.TrimSpace(r.Header.Get(s.opts.TenantHeader))
	c := caller{email: strings.ToLower(email)}
	for _, a := range s.opts.SuperAdmins {
		if strings.EqualFold(a, email) {
			c.admin = true
		}
	}
	return c
}

// sees reports whether c may see data owned by owner.
func (c caller) sees(owner string) bool {
	return c.admin || (c.email != "" && strings.EqualFold(c.email, owner))
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func newID() string { return uuid.NewString() }

// paginate slices items for page/limit query parameters (defaults 1 and 20).
func paginate[T any](r *http.Request, items []T) ([]T, Pagination) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	total := len(items)
	p := Pagination{Page: page, Limit: limit, Total: total, Pages: (total + limit - 1) / limit}
	start := (page - 1) * limit
	if start >= total {
		return []T{}, p
	}
	end := min(start+limit, total)
	return items[start:end], p
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
