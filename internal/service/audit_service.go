package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/events"
)

// AuditPublisher forwards portal events to an external audit sink.
type AuditPublisher interface {
	Publish(ctx context.Context, routingKey string, event events.Event) error
}

// auditedEvents are the events recorded in the audit trail.
var auditedEvents = []events.EventType{
	events.EventWorkerLoggedIn,
	events.EventWorkerLoggedOut,
	events.EventSessionExpired,
	events.EventUnauthorized,
	events.EventComplaintCompleted,
}

// AuditService records session and complaint events.
type AuditService struct {
	dispatcher events.Dispatcher
	publisher  AuditPublisher
	logger     *zap.Logger
}

// NewAuditService creates the service. A nil publisher keeps the trail in
// the log only.
func NewAuditService(dispatcher events.Dispatcher, publisher AuditPublisher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, t := range auditedEvents {
		a.dispatcher.Subscribe(t, a.handle)
	}
}

// handle never fails the publisher of the event: a broken audit sink is
// logged and the request carries on.
func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	a.logger.Info("audit",
		zap.String("event", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("session_id", event.SessionID),
		zap.String("worker_id", event.WorkerID),
		zap.Any("payload", event.Payload))

	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.Publish(ctx, RoutingKey(event.Type), event); err != nil {
		a.logger.Warn("audit publish failed", zap.String("event_id", event.ID), zap.Error(err))
	}
	return nil
}

// RoutingKey is the topic an event is published under.
func RoutingKey(t events.EventType) string {
	return string(t)
}
