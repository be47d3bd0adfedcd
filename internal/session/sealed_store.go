package session

import (
	"context"
	"fmt"

	"github.com/spec-kit/worker-portal/internal/auth"
)

// SealedStore encrypts the upstream token before handing the record to the
// wrapped store. A token that cannot be opened is reported as an error, which
// makes the guard discard the record.
type SealedStore struct {
	inner  Store
	sealer *auth.Sealer
}

// NewSealedStore wraps inner.
func NewSealedStore(inner Store, sealer *auth.Sealer) *SealedStore {
	return &SealedStore{inner: inner, sealer: sealer}
}

func (s *SealedStore) Load(ctx context.Context, sessionID string) (Record, error) {
	rec, err := s.inner.Load(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	token, err := s.sealer.Open(rec.Token)
	if err != nil {
		return Record{}, fmt.Errorf("open session token: %w", err)
	}
	rec.Token = token
	return rec, nil
}

func (s *SealedStore) Save(ctx context.Context, sessionID string, rec Record) error {
	sealed, err := s.sealer.Seal(rec.Token)
	if err != nil {
		return fmt.Errorf("seal session token: %w", err)
	}
	rec.Token = sealed
	return s.inner.Save(ctx, sessionID, rec)
}

func (s *SealedStore) Delete(ctx context.Context, sessionID string) error {
	return s.inner.Delete(ctx, sessionID)
}

func (s *SealedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}
