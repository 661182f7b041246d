package fakesut

import (
	"maps"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coach-qa/internal/clock"
)

// Health handles GET /api/health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

// ---- reservations ----

// ListReservations handles GET /api/reservations. Super admins bypass tenant
// filtering; coaches see their own; anonymous callers get 401.
func (s *Server) ListReservations(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	s.mu.Lock()
	var visible []*Reservation
	for _, res := range s.reservations {
		if c.sees(res.CoachEmail) {
			visible = append(visible, res)
		}
	}
	s.mu.Unlock()
	page, p := paginate(r, visible)
	writeJSON(w, http.StatusOK, map[string]any{"data": page, "pagination": p})
}

func (s *Server) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := s.caller(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.reservations, func(res *Reservation) bool { return res.ID == id && c.sees(res.CoachEmail) })
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Reservation not found")
		return
	}
	s.reservations = slices.Delete(s.reservations, i, i+1)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- media links ----

var youtubeID = regexp.MustCompile(`(?:v=|youtu\.be/|/embed/)([A-Za-z0-9_-]{11})`)

// CreateMediaLink handles POST /api/media/create. Slugs are stored lowercased.
func (s *Server) CreateMediaLink(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Slug     string `json:"slug"`
		VideoURL string `json:"video_url"`
		Title    string `json:"title"`
	}
	if !decode(w, r, &in) {
		return
	}
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "slug is required")
		return
	}
	m := youtubeID.FindStringSubmatch(in.VideoURL)
	if m == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "video_url must be a YouTube link")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.media[slug]; exists {
		writeDetail(w, http.StatusConflict, "Slug already in use")
		return
	}
	link := &MediaLink{
		Slug:      slug,
		VideoURL:  in.VideoURL,
		YoutubeID: m[1],
		Title:     in.Title,
		Thumbnail: "https://img.youtube.com/vi/" + m[1] + "/maxresdefault.jpg",
		CreatedAt: s.opts.Now().UTC().Format(time.RFC3339),
	}
	s.media[slug] = link
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "media_link": link})
}

// GetMediaLink handles GET /api/media/{slug}; every read counts a view.
func (s *Server) GetMediaLink(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.media[slug]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Media link not found")
		return
	}
	link.Views++
	cp := *link
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) DeleteMediaLink(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[slug]; !ok {
		writeDetail(w, http.StatusNotFound, "Media link not found")
		return
	}
	delete(s.media, slug)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- campaigns ----

// promote applies the scheduler: a scheduled campaign is processed at the
// first poller tick after both its creation and its due time.
func (s *Server) promote(c *Campaign, now time.Time) {
	if c.Status != CampaignScheduled {
		return
	}
	base := c.created
	if c.due.After(base) {
		base = c.due
	}
	cycle := s.opts.SchedulerCycle
	tick := s.started.Add((base.Sub(s.started)/cycle + 1) * cycle)
	if now.Before(tick) {
		return
	}
	c.Status = CampaignCompleted
	if !slices.Contains(slices.Collect(maps.Values(c.Channels)), true) {
		c.Status = CampaignFailed
	}
}

type campaignInput struct {
	Name          string          `json:"name"`
	Message       string          `json:"message"`
	ScheduledAt   string          `json:"scheduledAt"`
	Channels      map[string]bool `json:"channels"`
	TargetGroupID string          `json:"targetGroupId"`
}

// CreateCampaign handles POST /api/campaigns. scheduledAt without a zone is
// Europe/Paris wall time.
func (s *Server) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var in campaignInput
	if !decode(w, r, &in) {
		return
	}
	if in.Name == "" || in.ScheduledAt == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "name and scheduledAt are required")
		return
	}
	due, err := clock.ParseParisWall(in.ScheduledAt)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "scheduledAt: "+err.Error())
		return
	}
	now := s.opts.Now()
	camp := &Campaign{
		ID:            newID(),
		Name:          in.Name,
		Message:       in.Message,
		ScheduledAt:   in.ScheduledAt,
		Channels:      in.Channels,
		TargetGroupID: in.TargetGroupID,
		Status:        CampaignScheduled,
		Owner:         c.email,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		due:           due,
		created:       now,
	}
	s.mu.Lock()
	s.campaigns[camp.ID] = camp
	cp := *camp
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cp)
}

// ListCampaigns returns a bare array of the campaigns the caller may see.
func (s *Server) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	now := s.opts.Now()
	s.mu.Lock()
	out := []Campaign{}
	for _, camp := range s.campaigns {
		if c.sees(camp.Owner) {
			s.promote(camp, now)
			out = append(out, *camp)
		}
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Campaign) int { return strings.Compare(a.CreatedAt, b.CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	now := s.opts.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	camp, ok := s.campaigns[chi.URLParam(r, "id")]
	if !ok || !c.sees(camp.Owner) {
		writeDetail(w, http.StatusNotFound, "Campaign not found")
		return
	}
	s.promote(camp, now)
	writeJSON(w, http.StatusOK, *camp)
}

// UpdateCampaign answers 200 with a null body for an unknown id, as the
// production backend does.
func (s *Server) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaignInput
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	camp, ok := s.campaigns[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if in.Name != "" {
		camp.Name = in.Name
	}
	if in.Message != "" {
		camp.Message = in.Message
	}
	writeJSON(w, http.StatusOK, *camp)
}

func (s *Server) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	camp, ok := s.campaigns[id]
	if !ok || !c.sees(camp.Owner) {
		writeDetail(w, http.StatusNotFound, "Campaign not found")
		return
	}
	delete(s.campaigns, id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- credits ----

// SetCredits gives a coach a credit balance.
func (s *Server) SetCredits(email string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[strings.ToLower(email)] = n
}

func (s *Server) CheckCredits(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	switch {
	case c.anonymous():
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
	case c.admin:
		writeJSON(w, http.StatusOK, map[string]any{"credits": -1, "unlimited": true, "has_credits": true})
	default:
		s.mu.Lock()
		n := s.credits[c.email]
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"credits": n, "unlimited": false, "has_credits": n > 0})
	}
}

// DeductCredits handles POST /api/credits/deduct. Super admins are never
// charged whatever the body says.
func (s *Server) DeductCredits(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if c.admin {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "bypassed": true, "credits_remaining": -1})
		return
	}
	var in struct {
		Action string `json:"action"`
		Amount int    `json:"amount"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Amount <= 0 {
		in.Amount = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credits[c.email] < in.Amount {
		writeDetail(w, http.StatusPaymentRequired, "Insufficient credits")
		return
	}
	s.credits[c.email] -= in.Amount
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bypassed": false, "credits_remaining": s.credits[c.email]})
}

// ---- discount codes ----

func (s *Server) ListDiscountCodes(w http.ResponseWriter, r *http.Request) {
	if !s.caller(r).admin {
		writeDetail(w, http.StatusForbidden, "Super admin only")
		return
	}
	s.mu.Lock()
	out := []DiscountCode{}
	for _, dc := range s.codes {
		out = append(out, *dc)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b DiscountCode) int { return strings.Compare(a.Code, b.Code) })
	writeJSON(w, http.StatusOK, out)
}

// CreateDiscountCode handles POST /api/discount-codes. Codes are unique
// case-insensitively; a duplicate is a 409.
func (s *Server) CreateDiscountCode(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !c.admin {
		writeDetail(w, http.StatusForbidden, "Super admin only")
		return
	}
	var in struct {
		Code    string   `json:"code"`
		Type    string   `json:"type"`
		Value   float64  `json:"value"`
		Courses []string `json:"courses"`
	}
	if !decode(w, r, &in) {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" || (in.Type != "%" && in.Type != "fixed") || in.Value <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "code, type (% or fixed) and a positive value are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dc := range s.codes {
		if dc.Code == code {
			writeDetail(w, http.StatusConflict, "Code already exists")
			return
		}
	}
	if in.Courses == nil {
		in.Courses = []string{}
	}
	dc := &DiscountCode{ID: newID(), Code: code, Type: in.Type, Value: in.Value, Courses: in.Courses, Active: true}
	s.codes[dc.ID] = dc
	writeJSON(w, http.StatusOK, *dc)
}

func (s *Server) DeleteDiscountCode(w http.ResponseWriter, r *http.Request) {
	if !s.caller(r).admin {
		writeDetail(w, http.StatusForbidden, "Super admin only")
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[id]; !ok {
		writeDetail(w, http.StatusNotFound, "Discount code not found")
		return
	}
	delete(s.codes, id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- chat ----

// ListParticipants returns a bare array filtered by owner.
func (s *Server) ListParticipants(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	s.mu.Lock()
	out := []Participant{}
	for _, p := range s.participants {
		if c.sees(p.Owner) {
			out = append(out, *p)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// CreateParticipant is idempotent by email: a known email returns the
// existing participant.
func (s *Server) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		WhatsApp string `json:"whatsapp"`
	}
	if !decode(w, r, &in) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Name == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "name and email are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if strings.EqualFold(p.Email, email) {
			writeJSON(w, http.StatusOK, *p)
			return
		}
	}
	p := &Participant{ID: newID(), Name: in.Name, Email: email, WhatsApp: in.WhatsApp, Owner: c.email}
	s.participants = append(s.participants, p)
	writeJSON(w, http.StatusOK, *p)
}

func (s *Server) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.participants, func(p *Participant) bool { return p.ID == id && c.sees(p.Owner) })
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Participant not found")
		return
	}
	s.participants = slices.Delete(s.participants, i, i+1)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListSessions returns {"sessions": [...], "count": n}. Soft-deleted sessions
// are hidden unless include_deleted=true.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	reveal := r.URL.Query().Get("include_deleted") == "true"
	s.mu.Lock()
	out := []Session{}
	for _, ss := range s.sessions {
		if c.sees(ss.Owner) && (reveal || !ss.IsDeleted) {
			out = append(out, *ss)
		}
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Session) int { return strings.Compare(a.ID, b.ID) })
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	if c.anonymous() {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var in struct {
		Title string `json:"title"`
		Mode  string `json:"mode"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Mode == "" {
		in.Mode = "ai"
	}
	ss := &Session{ID: newID(), Title: in.Title, Mode: in.Mode, Owner: c.email}
	s.mu.Lock()
	s.sessions[ss.ID] = ss
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, *ss)
}

// UpdateSession handles PUT /api/chat/sessions/{id}, including the
// {"is_deleted": true} soft delete.
func (s *Server) UpdateSession(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	var in struct {
		Title     *string `json:"title"`
		Mode      *string `json:"mode"`
		IsDeleted *bool   `json:"is_deleted"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[chi.URLParam(r, "id")]
	if !ok || !c.sees(ss.Owner) {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if in.Title != nil {
		ss.Title = *in.Title
	}
	if in.Mode != nil {
		ss.Mode = *in.Mode
	}
	if in.IsDeleted != nil {
		ss.IsDeleted = *in.IsDeleted
	}
	writeJSON(w, http.StatusOK, *ss)
}
