package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/worker-portal/internal/domain"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func complaint(status domain.ComplaintStatus, deadline *time.Time) domain.Complaint {
	return domain.Complaint{ID: "1", Status: status, SLADeadline: deadline}
}

func TestIsOverdue(t *testing.T) {
	now := mustTime(t, "2024-01-03T00:00:00Z")
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("running statuses with past deadline are overdue", func(t *testing.T) {
		for _, st := range []domain.ComplaintStatus{domain.ComplaintStatusAssigned, domain.ComplaintStatusInProgress} {
			assert.True(t, IsOverdue(complaint(st, &past), now), st)
		}
	})

	t.Run("terminal statuses are never overdue", func(t *testing.T) {
		for _, st := range []domain.ComplaintStatus{
			domain.ComplaintStatusCompleted, domain.ComplaintStatusResolved,
			domain.ComplaintStatusRejected, domain.ComplaintStatusDeclined,
		} {
			assert.False(t, IsOverdue(complaint(st, &past), now), st)
		}
	})

	t.Run("queued statuses are not overdue", func(t *testing.T) {
		assert.False(t, IsOverdue(complaint(domain.ComplaintStatusPending, &past), now))
		assert.False(t, IsOverdue(complaint(domain.ComplaintStatusSubmitted, &past), now))
	})

	t.Run("missing or future deadline", func(t *testing.T) {
		assert.False(t, IsOverdue(complaint(domain.ComplaintStatusAssigned, nil), now))
		assert.False(t, IsOverdue(complaint(domain.ComplaintStatusAssigned, &future), now))
		assert.False(t, IsOverdue(complaint(domain.ComplaintStatusAssigned, &now), now))
	})
}

func TestDaysOverdue(t *testing.T) {
	deadline := mustTime(t, "2024-01-01T00:00:00Z")

	assert.Equal(t, 1, DaysOverdue(deadline, deadline.Add(time.Second)))
	assert.Equal(t, 1, DaysOverdue(deadline, deadline.Add(24*time.Hour)))
	assert.Equal(t, 2, DaysOverdue(deadline, deadline.Add(24*time.Hour+time.Second)))
	assert.Equal(t, 0, DaysOverdue(deadline, deadline))
	assert.Equal(t, 0, DaysOverdue(deadline, deadline.Add(-time.Hour)))

	prev := 0
	for step := time.Duration(0); step <= 10*24*time.Hour; step += 7 * time.Hour {
		got := DaysOverdue(deadline, deadline.Add(step))
		assert.GreaterOrEqual(t, got, prev, "non-decreasing at %s", step)
		prev = got
	}
}

func TestEvaluateScenario(t *testing.T) {
	deadline := mustTime(t, "2024-01-01T00:00:00Z")
	now := mustTime(t, "2024-01-03T00:00:00Z")

	cl := Evaluate(complaint(domain.ComplaintStatusAssigned, &deadline), now)

	assert.True(t, cl.IsOverdue)
	assert.Equal(t, 2, cl.DaysOverdue)
	assert.Equal(t, ColorPrimary, cl.Color)
	assert.False(t, cl.Terminal)

	done := Evaluate(complaint(domain.ComplaintStatusCompleted, &deadline), now)
	assert.False(t, done.IsOverdue)
	assert.Zero(t, done.DaysOverdue)
	assert.True(t, done.Terminal)
}

func TestClassifyBucketsAreIndependent(t *testing.T) {
	now := mustTime(t, "2024-01-03T00:00:00Z")
	past := now.Add(-48 * time.Hour)

	complaints := []domain.Complaint{
		complaint(domain.ComplaintStatusAssigned, &past),
		complaint(domain.ComplaintStatusInProgress, &past),
		complaint(domain.ComplaintStatusPending, nil),
		complaint(domain.ComplaintStatusCompleted, &past),
		complaint(domain.ComplaintStatusResolved, nil),
		complaint(domain.ComplaintStatusRejected, nil),
	}

	stats := Classify(complaints, now)

	assert.Equal(t, domain.DashboardStats{Assigned: 6, Pending: 2, Completed: 2, Overdue: 2}, stats)
	// the first complaint counts as assigned, pending and overdue at once
	assert.Len(t, Filter(complaints, BucketOverdue, now), 2)
	assert.Equal(t, domain.ComplaintStatusAssigned, Filter(complaints, BucketPending, now)[0].Status)
}

func TestClassifyEmpty(t *testing.T) {
	assert.Equal(t, domain.DashboardStats{}, Classify(nil, time.Now()))
	assert.Empty(t, Filter(nil, BucketAssigned, time.Now()))
}

func TestStatusColorIsTotal(t *testing.T) {
	cases := map[domain.ComplaintStatus]Color{
		domain.ComplaintStatusSubmitted:  ColorInfo,
		domain.ComplaintStatusPending:    ColorWarning,
		domain.ComplaintStatusAssigned:   ColorPrimary,
		domain.ComplaintStatusInProgress: ColorPrimary,
		domain.ComplaintStatusCompleted:  ColorSuccess,
		domain.ComplaintStatusResolved:   ColorSuccess,
		domain.ComplaintStatusRejected:   ColorDanger,
		domain.ComplaintStatusDeclined:   ColorDanger,
		"":                               ColorInfo,
		"ESCALATED":                      ColorInfo,
		"assigned":                       ColorInfo,
	}
	for status, want := range cases {
		assert.Equal(t, want, StatusColor(status), "status %q", status)
	}
}

func TestParseBucket(t *testing.T) {
	b, err := ParseBucket("overdue")
	assert.NoError(t, err)
	assert.Equal(t, BucketOverdue, b)

	_, err = ParseBucket("archived")
	assert.Error(t, err)
}
