package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/api/dto"
	"github.com/spec-kit/worker-portal/internal/apiclient"
	"github.com/spec-kit/worker-portal/internal/domain"
	"github.com/spec-kit/worker-portal/internal/events"
	"github.com/spec-kit/worker-portal/internal/sla"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// ComplaintService builds the complaint list and detail views and submits
// completions.
type ComplaintService struct {
	dispatcher events.Dispatcher
	now        func() time.Time
	logger     *zap.Logger
}

// NewComplaintService builds the service. now defaults to time.Now.
func NewComplaintService(dispatcher events.Dispatcher, now func() time.Time, logger *zap.Logger) *ComplaintService {
	if now == nil {
		now = time.Now
	}
	return &ComplaintService{dispatcher: dispatcher, now: now, logger: logger}
}

// List returns the complaints of bucket. The dedicated endpoint is tried
// first, then the assignment list. Whatever the source, membership and SLA
// labels are derived by the sla package. When every source fails the list is
// empty and marked unavailable.
func (s *ComplaintService) List(ctx context.Context, api WorkerAPI, bucket sla.Bucket) (dto.ComplaintListView, error) {
	now := s.now()

	sources := []source[[]domain.Complaint]{}
	if bucket != sla.BucketAssigned {
		sources = append(sources, source[[]domain.Complaint]{
			name: string(bucket) + "_endpoint",
			fetch: func(ctx context.Context) ([]domain.Complaint, error) {
				return api.ComplaintsIn(ctx, string(bucket))
			},
		})
	}
	sources = append(sources, source[[]domain.Complaint]{name: "assignments", fetch: api.Assignments})

	raw, from, err := firstAvailable(ctx, s.logger, "complaints_"+string(bucket), sources...)
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			return dto.ComplaintListView{}, err
		}
		s.logger.Warn("complaint list unavailable", zap.String("bucket", string(bucket)), zap.Error(err))
		return dto.ComplaintListView{Bucket: bucket, Items: []dto.ComplaintView{}, Unavailable: true}, nil
	}

	items := dto.NewComplaintViews(sla.Filter(raw, bucket, now), now)
	return dto.ComplaintListView{
		Bucket: bucket,
		Items:  items,
		Count:  len(items),
		Source: from,
	}, nil
}

// Detail returns one complaint with its completion form state.
func (s *ComplaintService) Detail(ctx context.Context, api WorkerAPI, id string) (dto.ComplaintDetailView, error) {
	if strings.TrimSpace(id) == "" {
		return dto.ComplaintDetailView{}, apperrors.NewValidationError("complaint id required", nil)
	}
	c, err := api.Complaint(ctx, id)
	if err != nil {
		return dto.ComplaintDetailView{}, err
	}
	return detailView(c, s.now()), nil
}

// CompleteInput is the completion form.
type CompleteInput struct {
	SessionID string
	WorkerID  string
	Note      string
	Image     *apiclient.Upload
}

// Complete submits the completion note and optional image for complaint id.
// The note is required.
func (s *ComplaintService) Complete(ctx context.Context, api WorkerAPI, id string, in CompleteInput) (dto.ComplaintDetailView, error) {
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return dto.ComplaintDetailView{}, apperrors.NewValidationError("Completion note is required", map[string]any{"field": "completion_note"})
	}
	if strings.TrimSpace(id) == "" {
		return dto.ComplaintDetailView{}, apperrors.NewValidationError("complaint id required", nil)
	}

	updated, err := api.Complete(ctx, id, note, in.Image)
	if err != nil {
		return dto.ComplaintDetailView{}, err
	}

	if s.dispatcher != nil {
		evt := events.New(events.EventComplaintCompleted, in.SessionID, in.WorkerID, events.ComplaintCompletedPayload{
			ComplaintID: id,
			Status:      string(updated.Status),
			HasImage:    in.Image != nil,
		})
		if err := s.dispatcher.Publish(ctx, evt); err != nil {
			s.logger.Warn("completion event handler failed", zap.String("complaint_id", id), zap.Error(err))
		}
	}
	return detailView(updated, s.now()), nil
}

func detailView(c domain.Complaint, now time.Time) dto.ComplaintDetailView {
	return dto.ComplaintDetailView{
		Complaint:   dto.NewComplaintView(c, now),
		CanComplete: !sla.IsTerminal(c.Status),
	}
}
