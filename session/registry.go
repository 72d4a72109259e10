// Package session holds the process-wide table of in-flight account-linking
// attempts. Sessions live only in memory: a process restart loses them and
// the client is told to restart from credentials. Externalizing this table
// (with a lease on the live browser handle) is the known path to running
// more than one instance.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lionlink/lionlink/browser"
	"github.com/sirupsen/logrus"
)

// State is the linking state machine. Transitions only move forward:
//
//	awaiting_credentials -> awaiting_mfa -> {approved | denied | expired}
//	awaiting_credentials -> approved            (no second factor required)
//	any                  -> error               (unrecoverable failure)
type State string

const (
	StateAwaitingCredentials State = "awaiting_credentials"
	StateAwaitingMFA         State = "awaiting_mfa"
	StateApproved            State = "approved"
	StateDenied              State = "denied"
	StateExpired             State = "expired"
	StateError               State = "error"
)

// Terminal reports whether no further transition is legal from s.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateDenied, StateExpired, StateError:
		return true
	}
	return false
}

var (
	ErrDuplicateSession = errors.New("session id already registered")
	ErrSessionNotFound  = errors.New("session not found")
	// ErrIllegalTransition indicates a backwards move in the state graph;
	// this is a programming error, never a user-facing condition.
	ErrIllegalTransition = errors.New("illegal session state transition")
)

// AuthSession is one in-progress or completed linking attempt. The embedded
// mutex serializes every probe and transition so two concurrent polls can
// never observe conflicting terminal states.
type AuthSession struct {
	ID              string
	UserID          uint
	NumberMatchCode string
	CreatedAt       time.Time

	mu      sync.Mutex
	state   State
	handle  browser.Session // root context, exclusively owned
	active  browser.Session // context actually on the portal, defaults to handle
	release sync.Once
}

// Lock serializes all per-session work. Callers hold it across a probe and
// the transition that results from it.
func (a *AuthSession) Lock()   { a.mu.Lock() }
func (a *AuthSession) Unlock() { a.mu.Unlock() }

// State must be read under Lock unless the session is no longer shared.
func (a *AuthSession) State() State { return a.state }

// Handle returns the root browser context owned by this session.
func (a *AuthSession) Handle() browser.Session { return a.handle }

// Active returns the context positioned on the portal.
func (a *AuthSession) Active() browser.Session { return a.active }

// SetActive records the landing-race winner as the context to use for
// extraction. The root handle keeps ownership of the browser process.
func (a *AuthSession) SetActive(s browser.Session) {
	if s != nil {
		a.active = s
	}
}

// releaseHandle closes the owned browser exactly once.
func (a *AuthSession) releaseHandle() {
	a.release.Do(func() {
		if a.handle != nil {
			_ = a.handle.Close()
		}
	})
}

// Registry maps opaque session ids to live sessions. It also remembers, per
// user, the most recent approved session so the subsequent sync call can
// reuse its browser without a second login.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*AuthSession
	byUser   map[uint]string
	ttl      time.Duration
	log      *logrus.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry whose background sweep evicts sessions
// older than ttl regardless of polling activity, so an abandoned client
// cannot leak browser processes.
func NewRegistry(ttl time.Duration, log *logrus.Logger) *Registry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = logrus.New()
	}
	r := &Registry{
		sessions: make(map[string]*AuthSession),
		byUser:   make(map[uint]string),
		ttl:      ttl,
		log:      log,
		stop:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Register creates and stores a session owning handle, in the given state.
func (r *Registry) Register(userID uint, handle browser.Session, state State) (*AuthSession, error) {
	return r.RegisterID(uuid.NewString(), userID, handle, state)
}

// RegisterID registers under a caller-chosen id and fails with
// ErrDuplicateSession when the id is already present.
func (r *Registry) RegisterID(id string, userID uint, handle browser.Session, state State) (*AuthSession, error) {
	s := &AuthSession{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		state:     state,
		handle:    handle,
		active:    handle,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, ErrDuplicateSession
	}
	r.sessions[id] = s
	r.byUser[userID] = id
	return s, nil
}

// Get returns the live session. ErrSessionNotFound means the session was
// evicted or the process restarted; callers translate it to requires_restart.
func (r *Registry) Get(id string) (*AuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ApprovedForUser returns the user's approved session, if one is still live.
func (r *Registry) ApprovedForUser(userID uint) (*AuthSession, bool) {
	r.mu.Lock()
	id, ok := r.byUser[userID]
	var s *AuthSession
	if ok {
		s, ok = r.sessions[id]
	}
	r.mu.Unlock()
	if !ok || s == nil {
		return nil, false
	}
	s.Lock()
	defer s.Unlock()
	if s.state != StateApproved {
		return nil, false
	}
	return s, true
}

// Transition moves the session forward in the state graph. Callers must hold
// the session lock. Once a terminal state is set it is sticky: repeated polls
// keep observing it until the session is evicted.
func (r *Registry) Transition(s *AuthSession, next State) error {
	if s.state == next {
		return nil
	}
	if !legalTransition(s.state, next) {
		return ErrIllegalTransition
	}
	r.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"from":       s.state,
		"to":         next,
	}).Info("session transition")
	s.state = next
	// approved sessions keep their browser alive for the sync that follows;
	// every other terminal state releases it immediately
	if next.Terminal() && next != StateApproved {
		s.releaseHandle()
	}
	return nil
}

func legalTransition(from, to State) bool {
	if to == StateError {
		return !from.Terminal()
	}
	switch from {
	case StateAwaitingCredentials:
		return to == StateAwaitingMFA || to == StateApproved || to == StateExpired
	case StateAwaitingMFA:
		return to == StateApproved || to == StateDenied || to == StateExpired
	}
	return false
}

// Evict releases the session's browser and removes it from the table.
// Idempotent: evicting an unknown or already-evicted id is a no-op.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		if r.byUser[s.UserID] == id {
			delete(r.byUser, s.UserID)
		}
	}
	r.mu.Unlock()
	if ok {
		s.releaseHandle()
	}
}

// EvictUser drops whatever session the user currently has, if any. Used on
// unlink so a live browser does not outlive the account link.
func (r *Registry) EvictUser(userID uint) {
	r.mu.Lock()
	id, ok := r.byUser[userID]
	r.mu.Unlock()
	if ok {
		r.Evict(id)
	}
}

// Close stops the sweep and evicts everything.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Evict(id)
	}
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(r.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweepOnce(time.Now())
		}
	}
}

// sweepOnce evicts sessions older than the TTL. Sessions still awaiting MFA
// are marked expired first so a racing poll reports requires_restart rather
// than a stale waiting.
func (r *Registry) sweepOnce(now time.Time) {
	r.mu.Lock()
	var stale []*AuthSession
	for _, s := range r.sessions {
		if now.Sub(s.CreatedAt) > r.ttl {
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Lock()
		if !s.state.Terminal() {
			s.state = StateExpired
		}
		s.Unlock()
		r.log.WithFields(logrus.Fields{"session_id": s.ID, "age": now.Sub(s.CreatedAt).String()}).Info("evicting stale session")
		r.Evict(s.ID)
	}
}
