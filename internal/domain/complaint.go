package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// ComplaintStatus enumerates lifecycle states reported by the complaint API.
type ComplaintStatus string

const (
	ComplaintStatusSubmitted  ComplaintStatus = "SUBMITTED"
	ComplaintStatusPending    ComplaintStatus = "PENDING"
	ComplaintStatusAssigned   ComplaintStatus = "ASSIGNED"
	ComplaintStatusInProgress ComplaintStatus = "IN_PROGRESS"
	ComplaintStatusCompleted  ComplaintStatus = "COMPLETED"
	ComplaintStatusResolved   ComplaintStatus = "RESOLVED"
	ComplaintStatusRejected   ComplaintStatus = "REJECTED"
	ComplaintStatusDeclined   ComplaintStatus = "DECLINED"
)

// Complaint is a civic complaint as served by the complaint API. The portal
// never mutates it.
type Complaint struct {
	ID              ID              `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Status          ComplaintStatus `json:"status"`
	SLADeadline     *time.Time      `json:"sla_deadline,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	City            NamedRef        `json:"city"`
	CompletionNote  string          `json:"completion_note,omitempty"`
	CompletionImage string          `json:"completion_image,omitempty"`
}

// ComplaintList decodes either a bare array or a paginated {results: [...]}
// envelope.
type ComplaintList []Complaint

func (l *ComplaintList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var items []Complaint
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var envelope struct {
		Results []Complaint `json:"results"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*l = envelope.Results
	return nil
}

// DashboardStats mirrors the counters of the dashboard stats endpoint.
type DashboardStats struct {
	Assigned  int `json:"assigned"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}
