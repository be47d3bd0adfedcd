// Package session owns the worker's upstream token and identity for every
// portal session, and decides whether a protected view may render.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/worker-portal/internal/apiclient"
	"github.com/spec-kit/worker-portal/internal/domain"
	"github.com/spec-kit/worker-portal/internal/events"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// Navigation targets signalled by the guard.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

const (
	loginFailedMessage = "Login failed"
	restoreTimeout     = 10 * time.Second
)

// AuthAPI is the slice of the complaint API the guard needs.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*apiclient.LoginResponse, error)
	Me(ctx context.Context, token string) (domain.WorkerProfile, error)
	Logout(ctx context.Context, token string) error
}

// Decision is the outcome of evaluating a protected view.
type Decision string

const (
	DecisionWait            Decision = "WAIT"
	DecisionRedirectToLogin Decision = "REDIRECT_TO_LOGIN"
	DecisionProceed         Decision = "PROCEED"
)

// RequireSession decides whether a protected view may proceed.
func RequireSession(current *domain.Session, isLoading bool) Decision {
	switch {
	case isLoading:
		return DecisionWait
	case current == nil:
		return DecisionRedirectToLogin
	default:
		return DecisionProceed
	}
}

// Guard is the only writer of session state. For each portal session id it
// keeps the in-memory Session and the persisted Record in step: memory is
// set only after the record is saved, and a clear drops both. Memory is a
// cache of the store: Resolve re-reads the record on every hit and Sweep
// evicts sessions left idle.
type Guard struct {
	api        AuthAPI
	store      Store
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	lastSeen map[string]time.Time
	loading  map[string]int
	now      func() time.Time

	locks    *keyedMutex
	restores singleflight.Group
}

// NewGuard builds a guard and subscribes it to unauthorized events so any
// rejected upstream call ends the session it was made for.
func NewGuard(api AuthAPI, store Store, dispatcher events.Dispatcher, logger *zap.Logger) *Guard {
	g := &Guard{
		api:        api,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		sessions:   make(map[string]*domain.Session),
		lastSeen:   make(map[string]time.Time),
		loading:    make(map[string]int),
		now:        time.Now,
		locks:      newKeyedMutex(),
	}
	if dispatcher != nil {
		dispatcher.Subscribe(events.EventUnauthorized, g.handleUnauthorized)
	}
	return g
}

// Current returns the in-memory session for sessionID, or nil.
func (g *Guard) Current(sessionID string) *domain.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[sessionID]
}

// Status reports the session and whether a restore is in flight, without
// blocking on it.
func (g *Guard) Status(sessionID string) (*domain.Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[sessionID], g.loading[sessionID] > 0
}

// Resolve returns the session for sessionID, restoring it from the store
// when it is not in memory. A session found in memory is confirmed against
// its persisted record, which also slides the record's expiry; a record
// that is gone drops the session. While another caller is restoring the
// same session it does not block and reports loading instead.
func (g *Guard) Resolve(ctx context.Context, sessionID string) (*domain.Session, bool) {
	current, loading := g.Status(sessionID)
	if loading {
		return current, true
	}
	if current == nil {
		return g.RestoreSession(ctx, sessionID), false
	}
	return g.confirm(ctx, sessionID), false
}

func (g *Guard) confirm(ctx context.Context, sessionID string) *domain.Session {
	unlock := g.locks.Lock(sessionID)
	defer unlock()

	if g.Current(sessionID) == nil {
		return nil
	}
	_, err := g.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		g.logger.Info("persisted session gone", zap.String("session_id", sessionID))
		g.forget(sessionID)
		return nil
	case err != nil:
		// the cached session stays usable while the store is unreachable
		g.logger.Warn("confirm persisted session", zap.String("session_id", sessionID), zap.Error(err))
	}
	g.touch(sessionID)
	return g.Current(sessionID)
}

// Sweep drops in-memory sessions not resolved for longer than idle and
// reports how many went. Their records stay in the store and are restored
// on the next request.
func (g *Guard) Sweep(idle time.Duration) int {
	cutoff := g.now().Add(-idle)
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for sid, seen := range g.lastSeen {
		if seen.Before(cutoff) {
			delete(g.sessions, sid)
			delete(g.lastSeen, sid)
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep every interval until ctx is done.
func (g *Guard) StartSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := g.Sweep(idle); n > 0 {
					g.logger.Debug("evicted idle sessions from memory", zap.Int("count", n))
				}
			}
		}
	}()
}

// Login authenticates against the complaint API and establishes the
// session. Failures carry a message fit for the login form.
func (g *Guard) Login(ctx context.Context, sessionID, username, password string) (*domain.Session, error) {
	resp, err := g.api.Login(ctx, username, password)
	if err != nil {
		return nil, loginError(err)
	}

	profile, err := MergeProfile(resp.User, resp.Worker)
	if err != nil {
		g.logger.Warn("login payload incomplete", zap.Error(err))
		return nil, err
	}
	if resp.Token == "" {
		return nil, apperrors.NewAuthError(loginFailedMessage)
	}

	sess := &domain.Session{Token: resp.Token, Profile: profile}

	unlock := g.locks.Lock(sessionID)
	err = g.commitLocked(ctx, sessionID, sess)
	unlock()
	if err != nil {
		g.logger.Error("persist session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}

	g.publish(ctx, events.New(events.EventWorkerLoggedIn, sessionID, profile.ID.String(), nil))
	return sess, nil
}

// RestoreSession revalidates a persisted token. Any failure, including an
// expired token or an unreachable API, clears the persisted record and
// yields nil; it never returns an error.
func (g *Guard) RestoreSession(ctx context.Context, sessionID string) *domain.Session {
	if sess := g.Current(sessionID); sess != nil {
		return sess
	}
	v, _, _ := g.restores.Do(sessionID, func() (interface{}, error) {
		// detached so one caller going away does not fail the others
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		return g.restore(rctx, sessionID), nil
	})
	sess, _ := v.(*domain.Session)
	return sess
}

func (g *Guard) restore(ctx context.Context, sessionID string) *domain.Session {
	g.setLoading(sessionID, 1)
	defer g.setLoading(sessionID, -1)

	unlock := g.locks.Lock(sessionID)
	defer unlock()

	if sess := g.Current(sessionID); sess != nil {
		return sess
	}

	rec, err := g.store.Load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		g.logger.Warn("load persisted session", zap.String("session_id", sessionID), zap.Error(err))
		g.clearLocked(ctx, sessionID)
		return nil
	}

	profile, err := g.api.Me(ctx, rec.Token)
	if err != nil {
		g.logger.Info("persisted session rejected", zap.String("session_id", sessionID), zap.Error(err))
		g.clearLocked(ctx, sessionID)
		if apperrors.IsUnauthorized(err) {
			g.publish(ctx, events.New(events.EventSessionExpired, sessionID, rec.Profile.ID.String(), nil))
		}
		return nil
	}

	sess := &domain.Session{Token: rec.Token, Profile: profile}
	if err := g.commitLocked(ctx, sessionID, sess); err != nil {
		g.logger.Warn("refresh persisted session", zap.String("session_id", sessionID), zap.Error(err))
		g.clearLocked(ctx, sessionID)
		return nil
	}
	return sess
}

// Logout revokes the token upstream on a best-effort basis, then always
// clears the session. It returns the path the browser should go to.
func (g *Guard) Logout(ctx context.Context, sessionID string) string {
	unlock := g.locks.Lock(sessionID)
	defer unlock()

	var workerID string
	token := ""
	if sess := g.Current(sessionID); sess != nil {
		token, workerID = sess.Token, sess.Profile.ID.String()
	} else if rec, err := g.store.Load(ctx, sessionID); err == nil {
		token, workerID = rec.Token, rec.Profile.ID.String()
	}

	if token != "" {
		if err := g.api.Logout(ctx, token); err != nil {
			g.logger.Warn("remote logout failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	g.clearLocked(ctx, sessionID)
	g.publish(ctx, events.New(events.EventWorkerLoggedOut, sessionID, workerID, nil))
	return LoginPath
}

// Expire ends a session whose token the complaint API rejected. The token
// is already dead, so no remote logout is attempted. Expiring a session
// that is already gone is a no-op.
func (g *Guard) Expire(ctx context.Context, sessionID string) {
	unlock := g.locks.Lock(sessionID)
	var (
		workerID string
		existed  bool
	)
	if sess := g.Current(sessionID); sess != nil {
		workerID, existed = sess.Profile.ID.String(), true
	} else if rec, err := g.store.Load(ctx, sessionID); err == nil {
		workerID, existed = rec.Profile.ID.String(), true
	}
	if existed {
		g.clearLocked(ctx, sessionID)
	}
	unlock()

	if existed {
		g.publish(ctx, events.New(events.EventSessionExpired, sessionID, workerID, nil))
	}
}

func (g *Guard) handleUnauthorized(ctx context.Context, evt events.Event) error {
	if evt.SessionID == "" {
		return nil
	}
	g.Expire(ctx, evt.SessionID)
	return nil
}

// commitLocked saves the record, then publishes it in memory. The caller
// holds the session's lock.
func (g *Guard) commitLocked(ctx context.Context, sessionID string, sess *domain.Session) error {
	if err := g.store.Save(ctx, sessionID, Record{Token: sess.Token, Profile: sess.Profile}); err != nil {
		return err
	}
	g.mu.Lock()
	g.sessions[sessionID] = sess
	g.lastSeen[sessionID] = g.now()
	g.mu.Unlock()
	return nil
}

// clearLocked drops the in-memory session and deletes the record. The
// caller holds the session's lock.
func (g *Guard) clearLocked(ctx context.Context, sessionID string) {
	g.forget(sessionID)

	if err := g.store.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
		g.logger.Error("delete persisted session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// forget drops the in-memory session only.
func (g *Guard) forget(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	delete(g.lastSeen, sessionID)
	g.mu.Unlock()
}

func (g *Guard) touch(sessionID string) {
	g.mu.Lock()
	if _, ok := g.sessions[sessionID]; ok {
		g.lastSeen[sessionID] = g.now()
	}
	g.mu.Unlock()
}

func (g *Guard) setLoading(sessionID string, delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loading[sessionID] += delta
	if g.loading[sessionID] <= 0 {
		delete(g.loading, sessionID)
	}
}

func (g *Guard) publish(ctx context.Context, evt events.Event) {
	if g.dispatcher == nil {
		return
	}
	if err := g.dispatcher.Publish(ctx, evt); err != nil {
		g.logger.Warn("session event handler failed", zap.String("event", string(evt.Type)), zap.Error(err))
	}
}

// loginError turns an upstream failure into the message shown on the
// login form. Network failures keep their own error.
func loginError(err error) error {
	if apperrors.HasCode(err, apperrors.CodeNetwork) {
		return err
	}
	if msg := apiclient.ServerMessageOf(err); msg != "" {
		return apperrors.NewAuthError(msg)
	}
	return apperrors.NewAuthError(loginFailedMessage)
}

// MergeProfile combines the user identity and worker assignment records
// returned at login. Both must be present. Identity fields come from the
// user record; role, department and office from the worker record; the
// worker id is kept when present.
func MergeProfile(user, worker *domain.WorkerProfile) (domain.WorkerProfile, error) {
	if user == nil {
		return domain.WorkerProfile{}, apperrors.NewMergeError("user")
	}
	if worker == nil {
		return domain.WorkerProfile{}, apperrors.NewMergeError("worker")
	}

	merged := *worker
	if merged.ID == "" {
		merged.ID = user.ID
	}
	if user.Username != "" {
		merged.Username = user.Username
	}
	if user.FirstName != "" {
		merged.FirstName = user.FirstName
	}
	if user.LastName != "" {
		merged.LastName = user.LastName
	}
	if merged.Role == "" {
		merged.Role = user.Role
	}
	if merged.Department == "" {
		merged.Department = user.Department
	}
	if merged.Office == "" {
		merged.Office = user.Office
	}
	return merged, nil
}
