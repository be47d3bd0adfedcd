package service

import (
	"context"

	"github.com/spec-kit/worker-portal/internal/apiclient"
	"github.com/spec-kit/worker-portal/internal/domain"
)

// WorkerAPI is the session-bound complaint API used to build views.
type WorkerAPI interface {
	Assignments(ctx context.Context) ([]domain.Complaint, error)
	ComplaintsIn(ctx context.Context, bucket string) ([]domain.Complaint, error)
	Complaint(ctx context.Context, id string) (domain.Complaint, error)
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
	Complete(ctx context.Context, id, note string, image *apiclient.Upload) (domain.Complaint, error)
}

var _ WorkerAPI = (*apiclient.WorkerClient)(nil)
