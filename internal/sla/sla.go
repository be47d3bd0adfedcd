// Package sla derives display status for complaints: whether a complaint has
// breached its SLA deadline, by how many days, which dashboard buckets it
// counts toward and which color tag it renders with.
//
// Every function is pure; callers pass the clock in.
package sla

import (
	"time"

	"github.com/spec-kit/worker-portal/internal/domain"
)

const day = 24 * time.Hour

// Color is a presentation tag understood by the portal front end.
type Color string

const (
	ColorInfo    Color = "info"
	ColorWarning Color = "warning"
	ColorPrimary Color = "primary"
	ColorSuccess Color = "success"
	ColorDanger  Color = "danger"
)

var statusColors = map[domain.ComplaintStatus]Color{
	domain.ComplaintStatusSubmitted:  ColorInfo,
	domain.ComplaintStatusPending:    ColorWarning,
	domain.ComplaintStatusAssigned:   ColorPrimary,
	domain.ComplaintStatusInProgress: ColorPrimary,
	domain.ComplaintStatusCompleted:  ColorSuccess,
	domain.ComplaintStatusResolved:   ColorSuccess,
	domain.ComplaintStatusRejected:   ColorDanger,
	domain.ComplaintStatusDeclined:   ColorDanger,
}

// StatusColor maps a status to its color tag. Unknown statuses render as info.
func StatusColor(status domain.ComplaintStatus) Color {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return ColorInfo
}

// IsTerminal reports whether no further work can happen on the complaint.
func IsTerminal(status domain.ComplaintStatus) bool {
	switch status {
	case domain.ComplaintStatusCompleted, domain.ComplaintStatusResolved,
		domain.ComplaintStatusRejected, domain.ComplaintStatusDeclined:
		return true
	}
	return false
}

// slaRunning reports whether the SLA clock applies to the status.
func slaRunning(status domain.ComplaintStatus) bool {
	return status == domain.ComplaintStatusAssigned || status == domain.ComplaintStatusInProgress
}

// IsOverdue is true only for ASSIGNED or IN_PROGRESS complaints whose
// deadline lies strictly before now.
func IsOverdue(c domain.Complaint, now time.Time) bool {
	if c.SLADeadline == nil || !slaRunning(c.Status) {
		return false
	}
	return c.SLADeadline.Before(now)
}

// DaysOverdue counts started days past the deadline: one second late is one
// day overdue. It returns 0 when now is not after the deadline.
func DaysOverdue(deadline, now time.Time) int {
	late := now.Sub(deadline)
	if late <= 0 {
		return 0
	}
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// Classification is the derived SLA state of a single complaint.
type Classification struct {
	IsOverdue   bool  `json:"is_overdue"`
	DaysOverdue int   `json:"days_overdue"`
	Color       Color `json:"color"`
	Terminal    bool  `json:"terminal"`
}

// Evaluate derives the classification of c at now.
func Evaluate(c domain.Complaint, now time.Time) Classification {
	cl := Classification{
		Color:    StatusColor(c.Status),
		Terminal: IsTerminal(c.Status),
	}
	if IsOverdue(c, now) {
		cl.IsOverdue = true
		cl.DaysOverdue = DaysOverdue(*c.SLADeadline, now)
	}
	return cl
}
