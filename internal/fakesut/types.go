package fakesut

import (
	"fmt"
	"time"
)

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type Reservation struct {
	ID              string  `json:"id"`
	ReservationCode string  `json:"reservationCode"`
	UserName        string  `json:"userName"`
	UserEmail       string  `json:"userEmail"`
	CoachEmail      string  `json:"coachEmail"`
	CourseName      string  `json:"courseName"`
	Date            string  `json:"date"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
}

type MediaLink struct {
	Slug      string `json:"slug"`
	VideoURL  string `json:"video_url"`
	YoutubeID string `json:"youtube_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Views     int    `json:"views"`
	CreatedAt string `json:"created_at"`
}

// Campaign status values.
const (
	CampaignScheduled = "scheduled"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

type Campaign struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Message       string          `json:"message"`
	ScheduledAt   string          `json:"scheduledAt"`
	Channels      map[string]bool `json:"channels"`
	TargetGroupID string          `json:"targetGroupId,omitempty"`
	Status        string          `json:"status"`
	Owner         string          `json:"owner"`
	CreatedAt     string          `json:"createdAt"`

	due     time.Time
	created time.Time
}

type DiscountCode struct {
	ID      string   `json:"id"`
	Code    string   `json:"code"`
	Type    string   `json:"type"`
	Value   float64  `json:"value"`
	Courses []string `json:"courses"`
	Active  bool     `json:"active"`
	Uses    int      `json:"uses"`
}

type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp,omitempty"`
	Owner    string `json:"owner"`
}

type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Mode      string `json:"mode"`
	IsDeleted bool   `json:"is_deleted"`
	Owner     string `json:"owner"`
}

func (s *Server) seed() {
	courses := []string{"Afroboost Silent", "Afroboost Cardio", "Afroboost Dance"}
	statuses := []string{"confirmed", "confirmed", "pending"}
	day := time.Date(2025, time.March, 3, 18, 30, 0, 0, time.UTC)
	for i := 1; i <= 7; i++ {
		s.reservations = append(s.reservations, &Reservation{
			ID:              fmt.Sprintf("res-%03d", i),
			ReservationCode: fmt.Sprintf("AFR-%04d", 1000+i),
			UserName:        fmt.Sprintf("Client %d", i),
			UserEmail:       fmt.Sprintf("client%d@example.com", i),
			CoachEmail:      BassiEmail,
			CourseName:      courses[i%len(courses)],
			Date:            day.AddDate(0, 0, 7*i).Format(time.RFC3339),
			Price:           25 + float64(i)*5,
			Status:          statuses[i%len(statuses)],
		})
	}
	for i, name := range []string{"Awa", "Koffi"} {
		s.participants = append(s.participants, &Participant{
			ID:    fmt.Sprintf("part-%03d", i+1),
			Name:  name,
			Email: fmt.Sprintf("%s@example.com", name),
			Owner: BassiEmail,
		})
	}
	now := s.opts.Now()
	s.campaigns["camp-seed"] = &Campaign{
		ID:          "camp-seed",
		Name:        "Bienvenue",
		Message:     "Bienvenue dans la communauté",
		ScheduledAt: now.Add(-48 * time.Hour).Format("2006-01-02T15:04:05"),
		Channels:    map[string]bool{"group": true},
		Status:      CampaignCompleted,
		Owner:       BassiEmail,
		CreatedAt:   now.Add(-72 * time.Hour).Format(time.RFC3339),
		due:         now.Add(-48 * time.Hour),
		created:     now.Add(-72 * time.Hour),
	}
}
