// Package session tracks per-browser-session state: which clip a reviewer is
// looking at, the parameters it was selected under, and the clips they have
// validated since the session started. The session id lives in a cookie; the
// state lives server-side and is discarded when the session expires.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

// RemainingUnknown marks a remaining-count that has not been computed yet.
const RemainingUnknown = -1

// Mode names the three annotation variants.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModePro    Mode = "pro"
	ModeExpert Mode = "expert"
)

// ModeState is the per-mode slice of a session's state.
type ModeState struct {
	// Params fingerprints the selection parameters the current clip was
	// loaded under. A change invalidates the rest of the state.
	Params string
	// Current is the clip being displayed, nil when the next request must
	// select a new one. Holds *catalog.Detection or *catalog.AssignedClip
	// depending on the mode.
	Current any
	// Validated holds the clips this session has submitted, so a fresh
	// submission is excluded from selection before the store cache refreshes.
	Validated validation.ClipSet
	// Remaining caches the remaining-count, decremented locally on submit.
	Remaining int
	// UserID and Authenticated carry the pro/expert login.
	UserID        string
	Authenticated bool
}

// Reset clears clip state while keeping authentication.
func (ms *ModeState) Reset() {
	ms.Params = ""
	ms.Current = nil
	ms.Validated = make(validation.ClipSet)
	ms.Remaining = RemainingUnknown
}

// SetParams records new selection parameters. When they differ from the
// previous ones all clip state is cleared. Returns true if a reset happened.
func (ms *ModeState) SetParams(params string) bool {
	if ms.Params == params {
		return false
	}
	ms.Reset()
	ms.Params = params
	return true
}

// MarkValidated records a submission: the clip joins the session-local
// validated set, the current clip is cleared so the next request selects a
// new one, and the remaining counter drops by one.
func (ms *ModeState) MarkValidated(key validation.ClipKey) {
	if ms.Validated == nil {
		ms.Validated = make(validation.ClipSet)
	}
	ms.Validated[key] = struct{}{}
	ms.Current = nil
	if ms.Remaining > 0 {
		ms.Remaining--
	}
}

// State is the server-side state of one session.
type State struct {
	ID string

	mu       sync.Mutex
	modes    map[Mode]*ModeState
	lastSeen time.Time
}

// Mode returns the state slice for a mode, creating it on first use.
// The returned ModeState must only be used while holding the lock via Do.
func (s *State) mode(m Mode) *ModeState {
	ms, ok := s.modes[m]
	if !ok {
		ms = &ModeState{Remaining: RemainingUnknown, Validated: make(validation.ClipSet)}
		s.modes[m] = ms
	}
	return ms
}

// Do runs fn with exclusive access to the mode's state. All reads and
// mutations of session state go through here; requests from the same session
// serialize on the state lock.
func (s *State) Do(m Mode, fn func(*ModeState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	fn(s.mode(m))
}

// Manager hands out sessions and sweeps expired state.
type Manager struct {
	cookies    *sessions.CookieStore
	cookieName string
	maxAge     time.Duration

	mu     sync.Mutex
	states map[string]*State

	stop chan struct{}
	once sync.Once
}

// NewManager builds a session manager from settings and starts the expiry
// janitor.
func NewManager(settings *conf.SessionSettings) *Manager {
	secret := settings.Secret
	if secret == "" {
		// Without a configured secret, sessions survive only until restart.
		secret = uuid.NewString()
	}
	cookies := sessions.NewCookieStore([]byte(secret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   settings.MaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	m := &Manager{
		cookies:    cookies,
		cookieName: settings.CookieName,
		maxAge:     time.Duration(settings.MaxAge) * time.Second,
		states:     make(map[string]*State),
		stop:       make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Attach resolves the request's session, creating a new one (and setting the
// cookie) when absent, and returns its server-side state.
func (m *Manager) Attach(w http.ResponseWriter, r *http.Request) (*State, error) {
	cookieSession, err := m.cookies.Get(r, m.cookieName)
	if err != nil {
		// A bad or re-keyed cookie means a fresh session, not a failure.
		cookieSession, _ = m.cookies.New(r, m.cookieName)
	}

	id, _ := cookieSession.Values["id"].(string)
	if id == "" {
		// Short ids keep the session file names readable in the bucket.
		id = uuid.NewString()[:8]
		cookieSession.Values["id"] = id
		if err := cookieSession.Save(r, w); err != nil {
			return nil, errors.New(err).
				Component("session").
				Category(errors.CategorySession).
				Build()
		}
	}

	return m.state(id), nil
}

// state returns the server-side state for id, creating it if needed.
func (m *Manager) state(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		st = &State{
			ID:       id,
			modes:    make(map[Mode]*ModeState),
			lastSeen: time.Now(),
		}
		m.states[id] = st
	} else {
		st.mu.Lock()
		st.lastSeen = time.Now()
		st.mu.Unlock()
	}
	return st
}

// Close stops the janitor.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep drops sessions idle longer than maxAge.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range m.states {
		st.mu.Lock()
		idle := now.Sub(st.lastSeen)
		st.mu.Unlock()
		if idle > m.maxAge {
			delete(m.states, id)
		}
	}
}
