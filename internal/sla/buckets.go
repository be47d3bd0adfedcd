package sla

import (
	"fmt"
	"time"

	"github.com/spec-kit/worker-portal/internal/domain"
)

// Bucket names a complaint list view.
type Bucket string

const (
	BucketAssigned  Bucket = "assigned"
	BucketPending   Bucket = "pending"
	BucketCompleted Bucket = "completed"
	BucketOverdue   Bucket = "overdue"
)

// ParseBucket validates a bucket name taken from a URL.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(s); b {
	case BucketAssigned, BucketPending, BucketCompleted, BucketOverdue:
		return b, nil
	}
	return "", fmt.Errorf("unknown complaint bucket %q", s)
}

// InBucket reports whether c belongs to bucket b at now. Buckets overlap:
// every complaint is assigned, and an assigned complaint may also be
// pending or overdue.
func InBucket(c domain.Complaint, b Bucket, now time.Time) bool {
	switch b {
	case BucketAssigned:
		return true
	case BucketPending:
		return c.Status == domain.ComplaintStatusAssigned || c.Status == domain.ComplaintStatusPending
	case BucketCompleted:
		return c.Status == domain.ComplaintStatusCompleted || c.Status == domain.ComplaintStatusResolved
	case BucketOverdue:
		return IsOverdue(c, now)
	}
	return false
}

// Classify counts complaints per bucket. Each bucket is counted on its own.
func Classify(complaints []domain.Complaint, now time.Time) domain.DashboardStats {
	var stats domain.DashboardStats
	for _, c := range complaints {
		stats.Assigned++
		if InBucket(c, BucketPending, now) {
			stats.Pending++
		}
		if InBucket(c, BucketCompleted, now) {
			stats.Completed++
		}
		if InBucket(c, BucketOverdue, now) {
			stats.Overdue++
		}
	}
	return stats
}

// Filter returns the complaints of bucket b, preserving order.
func Filter(complaints []domain.Complaint, b Bucket, now time.Time) []domain.Complaint {
	out := make([]domain.Complaint, 0, len(complaints))
	for _, c := range complaints {
		if InBucket(c, b, now) {
			out = append(out, c)
		}
	}
	return out
}
