package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store"
	"github.com/verdantops/canopy/internal/obs"
	"github.com/verdantops/canopy/pkg/idx"
	"github.com/verdantops/canopy/pkg/jwtx"
	"github.com/verdantops/canopy/pkg/slogx"
)

// Logout reasons recorded against terminated sessions.
const (
	LogoutUserRequest = "user_request"
	LogoutExpired     = "expired"
	LogoutRevoked     = "revoked"
)

// SessionConfig carries the session manager's tunables.
type SessionConfig struct {
	// TTL is the session lifetime from issue or refresh.
	TTL time.Duration

	// RefreshLead is how long before expiry the background refresh fires.
	RefreshLead time.Duration

	// GraceWindow bounds how long a session may be served on cached trust
	// while the credential backend is unreachable.
	GraceWindow time.Duration

	// RevalidateEvery throttles network revalidation of sessions so a
	// burst of forced checks cannot hammer the backend.
	RevalidateEvery time.Duration
	RevalidateBurst int
}

// SessionManager owns the session lifecycle: login with lockout protection,
// token issue, revalidation with an offline grace window, background
// refresh, and logout with an exactly-once broadcast per session.
type SessionManager struct {
	cfg      SessionConfig
	signer   *jwtx.Signer
	verifier CredentialVerifier
	lockouts *LockoutTracker
	users    store.Users
	audit    store.Audit
	limiter  *rate.Limiter

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	hookMu   sync.RWMutex
	onLogout []func(sess domain.Session, reason string)

	invalidate func(userID string)

	metrics *obs.Metrics
	now     func() time.Time
}

func NewSessionManager(cfg SessionConfig, signer *jwtx.Signer, verifier CredentialVerifier, lockouts *LockoutTracker, users store.Users, audit store.Audit, metrics *obs.Metrics) *SessionManager {
	if cfg.RevalidateBurst <= 0 {
		cfg.RevalidateBurst = 1
	}
	limit := rate.Inf
	if cfg.RevalidateEvery > 0 {
		limit = rate.Every(cfg.RevalidateEvery)
	}

	return &SessionManager{
		cfg:      cfg,
		signer:   signer,
		verifier: verifier,
		lockouts: lockouts,
		users:    users,
		audit:    audit,
		limiter:  rate.NewLimiter(limit, cfg.RevalidateBurst),
		sessions: make(map[string]*sessionEntry),
		metrics:  metrics,
		now:      time.Now,
	}
}

type sessionEntry struct {
	sess      domain.Session
	timer     *time.Timer
	closeOnce sync.Once
}

// OnLogout registers a hook broadcast exactly once per terminated session,
// whatever path terminated it. Registration happens during wiring.
func (m *SessionManager) OnLogout(fn func(sess domain.Session, reason string)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// SetInvalidator wires the decision-cache drop called when a session ends.
func (m *SessionManager) SetInvalidator(fn func(userID string)) {
	m.invalidate = fn
}

// Login authenticates a username/password pair and opens a session.
// Lockout is checked before the credential backend is ever consulted, so a
// locked identifier cannot probe for validity.
func (m *SessionManager) Login(ctx context.Context, username, password, deviceID string) (string, domain.Session, error) {
	if locked, until := m.lockouts.Locked(username); locked {
		slogx.FromContext(ctx).Warn("login rejected, identifier locked out",
			"username", username, "locked_until", until)
		return "", domain.Session{}, ErrLockedOut
	}

	user, err := m.verifier.Verify(ctx, username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		m.metrics.IncLoginFailures()
		if m.lockouts.Failure(username) {
			slogx.FromContext(ctx).Warn("identifier locked out after repeated failures",
				"username", username)
		}
		return "", domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("verify credentials: %w", err)
	}

	m.lockouts.Reset(username)

	now := m.now()
	sess := domain.Session{
		ID:              idx.New().String(),
		UserID:          user.ID,
		DeviceID:        deviceID,
		IssuedAt:        now,
		ExpiresAt:       now.Add(m.cfg.TTL),
		RefreshLeadTime: m.cfg.RefreshLead,
		LastValidated:   now,
		State:           domain.SessionAuthenticated,
	}

	claims := jwtx.NewSessionClaims(user.ID, sess.ID, deviceID, m.signer.Issuer(), m.cfg.TTL, now)
	token, err := m.signer.Sign(claims)
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("sign session token: %w", err)
	}

	entry := &sessionEntry{sess: sess}
	entry.timer = time.AfterFunc(sess.RefreshAt().Sub(now), func() { m.refresh(sess.ID) })

	m.mu.Lock()
	m.sessions[sess.ID] = entry
	m.mu.Unlock()

	m.metrics.SessionOpened()
	slogx.FromContext(ctx).Info("session opened",
		"user_id", user.ID, "session_id", sess.ID, "device_id", deviceID,
		"expires_at", sess.ExpiresAt)

	return token, sess, nil
}

// CheckAuth resolves a token to its live session. With forceNetwork the
// session is revalidated against the credential backend; a definitive
// rejection terminates the session, while a transient failure inside the
// grace window serves the cached session and logs the degradation.
func (m *SessionManager) CheckAuth(ctx context.Context, token string, forceNetwork bool) (domain.Session, error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		return domain.Session{}, ErrInvalidSession
	}

	m.mu.Lock()
	entry, ok := m.sessions[claims.SID]
	if !ok {
		m.mu.Unlock()
		return domain.Session{}, ErrInvalidSession
	}
	sess := entry.sess
	m.mu.Unlock()

	now := m.now()
	if sess.ExpiredAt(now) {
		m.terminate(entry, LogoutExpired, false)
		return domain.Session{}, ErrInvalidSession
	}

	if !forceNetwork {
		return sess, nil
	}

	if !m.limiter.Allow() {
		// Revalidation throttled; the cached session is still authoritative.
		slogx.FromContext(ctx).Debug("session revalidation throttled, serving cached session",
			"session_id", sess.ID, "user_id", sess.UserID)
		return sess, nil
	}

	user, err := m.users.GetByID(ctx, sess.UserID)
	switch {
	case err == nil && user.IsActive:
		m.mu.Lock()
		entry.sess.LastValidated = now
		sess = entry.sess
		m.mu.Unlock()
		return sess, nil

	case err == nil || errors.Is(err, store.ErrNotFound):
		// The account is gone or disabled: definitive rejection.
		m.terminate(entry, LogoutRevoked, true)
		return domain.Session{}, ErrInvalidSession

	default:
		if now.Sub(sess.LastValidated) <= m.cfg.GraceWindow {
			slogx.FromContext(ctx).Warn("credential backend unreachable, serving session on cached trust",
				"session_id", sess.ID, "user_id", sess.UserID,
				"last_validated", sess.LastValidated)
			return sess, nil
		}
		return domain.Session{}, fmt.Errorf("%w: revalidate session: %v", ErrBackendUnavailable, err)
	}
}

// Logout terminates the session named by the token.
func (m *SessionManager) Logout(ctx context.Context, token, reason string) error {
	claims, err := m.signer.Verify(token)
	if err != nil {
		return ErrInvalidSession
	}

	m.mu.Lock()
	entry, ok := m.sessions[claims.SID]
	m.mu.Unlock()
	if !ok {
		return ErrInvalidSession
	}

	forced := reason != LogoutUserRequest
	m.terminate(entry, reason, forced)
	return nil
}

// RevokeUserSessions force-terminates every live session for a user, used
// by administrative deactivation.
func (m *SessionManager) RevokeUserSessions(userID string) int {
	m.mu.Lock()
	var entries []*sessionEntry
	for _, entry := range m.sessions {
		if entry.sess.UserID == userID {
			entries = append(entries, entry)
		}
	}
	m.mu.Unlock()

	for _, entry := range entries {
		m.terminate(entry, LogoutRevoked, true)
	}
	return len(entries)
}

// PurgeExpired terminates sessions past their expiry. The refresh timer
// normally handles this; the sweep is the backstop when a timer was lost.
func (m *SessionManager) PurgeExpired() int {
	now := m.now()

	m.mu.Lock()
	var expired []*sessionEntry
	for _, entry := range m.sessions {
		if entry.sess.ExpiredAt(now) {
			expired = append(expired, entry)
		}
	}
	m.mu.Unlock()

	for _, entry := range expired {
		m.terminate(entry, LogoutExpired, false)
	}
	return len(expired)
}

// ActiveSessions reports the number of live sessions.
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// refresh fires from the session's timer at expiresAt minus the lead time.
// A reachable backend extends the session in place; a definitive rejection
// or an exhausted grace window expires it with the same cleanup as logout.
func (m *SessionManager) refresh(sessionID string) {
	m.mu.Lock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.sess.State = domain.SessionRefreshing
	sess := entry.sess
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := m.now()
	user, err := m.users.GetByID(ctx, sess.UserID)
	switch {
	case err == nil && user.IsActive:
		m.mu.Lock()
		entry.sess.ExpiresAt = now.Add(m.cfg.TTL)
		entry.sess.LastValidated = now
		entry.sess.State = domain.SessionAuthenticated
		entry.timer.Reset(entry.sess.RefreshAt().Sub(now))
		m.mu.Unlock()

	case err == nil || errors.Is(err, store.ErrNotFound):
		m.terminate(entry, LogoutRevoked, true)

	default:
		// Ride out the outage on cached trust, with exactly one retry at
		// expiry. Past expiry the session is unservable anyway (CheckAuth
		// rejects it), so terminate instead of re-arming a zero-length timer
		// that would spin against the failing backend.
		if now.Sub(sess.LastValidated) <= m.cfg.GraceWindow && !sess.ExpiredAt(now) {
			m.mu.Lock()
			entry.sess.State = domain.SessionAuthenticated
			entry.timer.Reset(sess.ExpiresAt.Sub(now))
			m.mu.Unlock()
			return
		}
		m.terminate(entry, LogoutExpired, false)
	}
}

// terminate runs the single cleanup path for every way a session ends. The
// closeOnce guarantees the logout broadcast fires exactly once even when
// logout, expiry, and the sweep race.
func (m *SessionManager) terminate(entry *sessionEntry, reason string, forced bool) {
	entry.closeOnce.Do(func() {
		m.mu.Lock()
		if entry.timer != nil {
			entry.timer.Stop()
		}
		switch reason {
		case LogoutExpired:
			entry.sess.State = domain.SessionExpired
		default:
			entry.sess.State = domain.SessionLoggedOut
		}
		sess := entry.sess
		delete(m.sessions, sess.ID)
		m.mu.Unlock()

		m.metrics.SessionClosed()
		if m.invalidate != nil {
			m.invalidate(sess.UserID)
		}

		if forced {
			m.metrics.IncForcedLogouts()
			m.recordForcedLogout(sess, reason)
		}

		m.hookMu.RLock()
		hooks := m.onLogout
		m.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(sess, reason)
		}
	})
}

func (m *SessionManager) recordForcedLogout(sess domain.Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := domain.AuditEntry{
		ID:        idx.New().String(),
		Action:    domain.AuditForcedLogout,
		SubjectID: sess.UserID,
		Detail:    fmt.Sprintf("session=%s device=%s reason=%s", sess.ID, sess.DeviceID, reason),
		CreatedAt: m.now(),
	}
	if err := m.audit.Record(ctx, entry); err != nil {
		slogx.FromContext(ctx).Error("record forced logout audit entry",
			"session_id", sess.ID, "error", err)
	}
}
