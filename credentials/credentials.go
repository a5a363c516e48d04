// Package credentials owns the client's access, refresh and session tokens.
package credentials

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/continuum-app/continuum-cli/tokenstore"
)

// Request headers carrying the session and refresh tokens.
const (
	HeaderSessionToken = "X-Session-Token"
	HeaderRefreshToken = "X-Refresh-Token"
)

// Set is one snapshot of the three credentials. An empty field is absent.
type Set struct {
	AccessToken  string
	RefreshToken string
	SessionToken string
}

// LoggedOut reports whether no credential is present.
func (s Set) LoggedOut() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.SessionToken == ""
}

type changeOp uint8

const (
	opKeep changeOp = iota
	opClear
	opSet
)

// Change describes what to do with one credential. The zero value leaves it
// untouched.
type Change struct {
	op    changeOp
	value string
}

// Keep leaves the credential as it is.
func Keep() Change { return Change{} }

// Clear removes the credential.
func Clear() Change { return Change{op: opClear} }

// Value replaces the credential. An empty value clears it.
func Value(v string) Change {
	if v == "" {
		return Clear()
	}
	return Change{op: opSet, value: v}
}

// ValueOrKeep replaces the credential when v is non-empty and keeps it
// otherwise. Use it for response fields that may be omitted.
func ValueOrKeep(v string) Change {
	if v == "" {
		return Keep()
	}
	return Value(v)
}

// IsKeep reports whether c leaves the credential untouched.
func (c Change) IsKeep() bool { return c.op == opKeep }

// Update groups one Change per credential.
type Update struct {
	Access  Change
	Refresh Change
	Session Change
}

// ClearAll is the Update that logs the client out.
func ClearAll() Update {
	return Update{Access: Clear(), Refresh: Clear(), Session: Clear()}
}

// Manager mirrors the persisted credentials in memory and signs requests with
// them. The mirror is updated in the same call that writes the store, so a
// request signed after Persist returns always carries the new values.
type Manager struct {
	store *tokenstore.Store
	log   zerolog.Logger

	mu      sync.RWMutex
	current Set
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the Manager's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = logger
	}
}

// NewManager restores whatever credentials store already holds.
func NewManager(store *tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.current = Set{
		AccessToken:  m.load(tokenstore.KeyAccessToken),
		RefreshToken: m.load(tokenstore.KeyRefreshToken),
		SessionToken: m.load(tokenstore.KeySessionToken),
	}
	m.log.Debug().
		Bool("access", m.current.AccessToken != "").
		Bool("refresh", m.current.RefreshToken != "").
		Bool("session", m.current.SessionToken != "").
		Msg("credentials restored")
	return m
}

func (m *Manager) load(key string) string {
	value, _ := m.store.Get(key)
	return value
}

// Current returns a copy of the credentials in effect.
func (m *Manager) Current() Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AccessToken returns the access token in effect.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.AccessToken
}

// Persist applies u to the store and the in-memory mirror.
func (m *Manager) Persist(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apply(tokenstore.KeyAccessToken, u.Access, &m.current.AccessToken)
	m.apply(tokenstore.KeySessionToken, u.Session, &m.current.SessionToken)
	m.apply(tokenstore.KeyRefreshToken, u.Refresh, &m.current.RefreshToken)
}

func (m *Manager) apply(key string, c Change, field *string) {
	switch c.op {
	case opSet:
		m.store.Set(key, c.value)
		*field = c.value
	case opClear:
		m.store.Delete(key)
		*field = ""
	}
}

// Clear removes all three credentials.
func (m *Manager) Clear() {
	m.Persist(ClearAll())
}

// SignAPI sets the access and session headers on r, or removes them when the
// credential is absent. It never touches the refresh header. The access token
// applied is returned so callers can tell whether it has been replaced since.
func (m *Manager) SignAPI(r *http.Request) string {
	set := m.Current()
	applyAccessToken(r, set.AccessToken)
	applySessionToken(r, set.SessionToken)
	return set.AccessToken
}

// SignRefresh sets the refresh header on r, or removes it when absent.
func (m *Manager) SignRefresh(r *http.Request) {
	applyRefreshToken(r, m.Current().RefreshToken)
}

func applyAccessToken(r *http.Request, token string) {
	if token == "" {
		r.Header.Del("Authorization")
		return
	}
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(r)
}

func applySessionToken(r *http.Request, token string) {
	if token == "" {
		r.Header.Del(HeaderSessionToken)
		return
	}
	r.Header.Set(HeaderSessionToken, token)
}

func applyRefreshToken(r *http.Request, token string) {
	if token == "" {
		r.Header.Del(HeaderRefreshToken)
		return
	}
	r.Header.Set(HeaderRefreshToken, token)
}
