package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/api/dto"
	"github.com/spec-kit/worker-portal/internal/domain"
	"github.com/spec-kit/worker-portal/internal/sla"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

const recentAssignments = 5

// DashboardService assembles the dashboard.
type DashboardService struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewDashboardService builds the service. now defaults to time.Now.
func NewDashboardService(now func() time.Time, logger *zap.Logger) *DashboardService {
	if now == nil {
		now = time.Now
	}
	return &DashboardService{now: now, logger: logger}
}

// Overview returns the worker card, the assignment counters and the most
// recent assignments. Counters come from the stats endpoint, falling back to
// classifying the assignment list.
func (s *DashboardService) Overview(ctx context.Context, api WorkerAPI, profile domain.WorkerProfile) (dto.DashboardView, error) {
	now := s.now()

	var (
		assignments    []domain.Complaint
		assignmentsErr error
		fetched        bool
	)
	loadAssignments := func(ctx context.Context) ([]domain.Complaint, error) {
		if !fetched {
			assignments, assignmentsErr = api.Assignments(ctx)
			fetched = true
		}
		return assignments, assignmentsErr
	}

	stats, from, err := firstAvailable(ctx, s.logger, "dashboard",
		source[domain.DashboardStats]{name: "stats_endpoint", fetch: api.DashboardStats},
		source[domain.DashboardStats]{name: "assignments", fetch: func(ctx context.Context) (domain.DashboardStats, error) {
			list, err := loadAssignments(ctx)
			if err != nil {
				return domain.DashboardStats{}, err
			}
			return sla.Classify(list, now), nil
		}},
	)
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			return dto.DashboardView{}, err
		}
		s.logger.Warn("dashboard stats unavailable", zap.Error(err))
		from = ""
	}

	recent, err := loadAssignments(ctx)
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			return dto.DashboardView{}, err
		}
		recent = nil
	}

	return dto.DashboardView{
		Worker:      dto.NewProfileView(profile),
		Stats:       stats,
		StatsSource: from,
		Recent:      dto.NewComplaintViews(mostRecent(recent, recentAssignments), now),
		GeneratedAt: now.UTC(),
	}, nil
}

// mostRecent returns up to n complaints, newest first, without touching list.
func mostRecent(list []domain.Complaint, n int) []domain.Complaint {
	sorted := append([]domain.Complaint(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
