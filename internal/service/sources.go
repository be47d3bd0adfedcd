package service

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// source is one way of obtaining a view's raw data.
type source[T any] struct {
	name  string
	fetch func(ctx context.Context) (T, error)
}

// firstAvailable tries sources in order and returns the first success with
// its name. A failing source is logged and the next one tried, except for an
// unauthorized failure: the session is gone, so it is returned at once.
func firstAvailable[T any](ctx context.Context, logger *zap.Logger, view string, sources ...source[T]) (T, string, error) {
	var (
		zero    T
		lastErr error
	)
	for _, src := range sources {
		val, err := src.fetch(ctx)
		if err == nil {
			return val, src.name, nil
		}
		if apperrors.IsUnauthorized(err) {
			return zero, "", err
		}
		logger.Warn("data source failed, trying next",
			zap.String("view", view), zap.String("source", src.name), zap.Error(err))
		lastErr = err
	}
	return zero, "", lastErr
}
