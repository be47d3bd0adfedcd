package dto

import (
	"time"

	"github.com/spec-kit/worker-portal/internal/domain"
	"github.com/spec-kit/worker-portal/internal/sla"
)

// ProfileView is the worker card shown in the portal header.
type ProfileView struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Office     string `json:"office"`
}

// NewProfileView flattens a profile for rendering.
func NewProfileView(p domain.WorkerProfile) ProfileView {
	return ProfileView{
		ID:         p.ID.String(),
		Username:   p.Username,
		FullName:   p.FullName(),
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Role:       p.Role,
		Department: p.Department.String(),
		Office:     p.Office.String(),
	}
}

// ComplaintView is a complaint with its derived SLA state.
type ComplaintView struct {
	domain.Complaint
	SLA sla.Classification `json:"sla"`
}

// NewComplaintView annotates c as of now.
func NewComplaintView(c domain.Complaint, now time.Time) ComplaintView {
	return ComplaintView{Complaint: c, SLA: sla.Evaluate(c, now)}
}

// NewComplaintViews annotates every complaint in list.
func NewComplaintViews(list []domain.Complaint, now time.Time) []ComplaintView {
	views := make([]ComplaintView, 0, len(list))
	for _, c := range list {
		views = append(views, NewComplaintView(c, now))
	}
	return views
}

// DashboardView backs the dashboard page.
type DashboardView struct {
	Worker      ProfileView           `json:"worker"`
	Stats       domain.DashboardStats `json:"stats"`
	StatsSource string                `json:"stats_source"`
	Recent      []ComplaintView       `json:"recent"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// ComplaintListView backs the assigned/pending/completed/overdue pages.
// Unavailable is set when every data source failed and the list is shown
// in its empty state.
type ComplaintListView struct {
	Bucket      sla.Bucket      `json:"bucket"`
	Items       []ComplaintView `json:"items"`
	Count       int             `json:"count"`
	Source      string          `json:"source,omitempty"`
	Unavailable bool            `json:"unavailable"`
}

// ComplaintDetailView backs the detail page and its completion form.
type ComplaintDetailView struct {
	Complaint   ComplaintView `json:"complaint"`
	CanComplete bool          `json:"can_complete"`
}

// SessionView reports the guard's decision for the current browser.
type SessionView struct {
	Decision string       `json:"decision"`
	Worker   *ProfileView `json:"worker,omitempty"`
}
