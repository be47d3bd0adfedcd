package session

import (
	"context"
	"errors"

	"github.com/spec-kit/worker-portal/internal/domain"
)

// Fixed field names of a persisted session record.
const (
	KeyToken   = "worker_token"
	KeyProfile = "worker_profile"
)

// ErrNotFound is returned by Store.Load when no record exists for a session.
var ErrNotFound = errors.New("session record not found")

// Record is what survives between requests for one portal session.
type Record struct {
	Token   string
	Profile domain.WorkerProfile
}

// Store persists session records keyed by portal session id. Save and
// Delete are all-or-nothing for a single record.
type Store interface {
	Load(ctx context.Context, sessionID string) (Record, error)
	Save(ctx context.Context, sessionID string, rec Record) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}
