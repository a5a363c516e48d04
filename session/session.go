// Package session tracks who is logged in. It owns the authenticated user
// snapshot and drives login, logout and profile loading on top of the API
// client.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/continuum-app/continuum-cli/api"
	"github.com/continuum-app/continuum-cli/apiclient"
	"github.com/continuum-app/continuum-cli/credentials"
	"github.com/continuum-app/continuum-cli/tokenstore"
)

// DefaultLanguage is used when no language preference has been stored.
const DefaultLanguage = "id"

const anonymousKey = "anonymous"

// Snapshot is the authenticated user as last loaded. Stats is nil when the
// profile loaded but the stats did not.
type Snapshot struct {
	User     *api.User
	Stats    *api.Stats
	SyncedAt time.Time
}

// FetchOptions controls FetchAuthData.
type FetchOptions struct {
	// Silent skips the loading state. The fetch still happens.
	Silent bool
}

// LoginResult is the outcome of Login. It is never an error: failures are
// described by Message and, when the server sent them, Lockout and
// AttemptsRemaining.
type LoginResult struct {
	OK                bool
	Message           string
	User              *api.LoginUser
	Lockout           *api.Lockout
	AttemptsRemaining *int
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	OK      bool
	Message string
	Lockout *api.Lockout
}

// API is the subset of the backend the Manager needs.
type API interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Me(ctx context.Context) (*api.User, error)
	Stats(ctx context.Context) (*api.Stats, error)
}

// Manager holds the authenticated user snapshot.
type Manager struct {
	api   API
	creds *credentials.Manager
	store *tokenstore.Store
	base  zerolog.Logger
	now   func() time.Time

	mu        sync.Mutex
	snapshot  *Snapshot
	loading   bool
	userKey   string
	onReset   []func(previousUserKey string)
	listeners []func(*Snapshot)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the Manager's logger. Entries carry the current user key.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.base = logger
	}
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a Manager with no snapshot. Call FetchAuthData with
// Silent set to pick up a session restored from the store.
func NewManager(client API, creds *credentials.Manager, store *tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		api:     client,
		creds:   creds,
		store:   store,
		base:    zerolog.Nop(),
		now:     time.Now,
		userKey: anonymousKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) logger() *zerolog.Logger {
	m.mu.Lock()
	key := m.userKey
	m.mu.Unlock()

	l := m.base.With().Str("user", key).Logger()
	return &l
}

// OnReset registers fn to run whenever the snapshot is cleared. It receives
// the key of the user that was logged in, or "anonymous".
func (m *Manager) OnReset(fn func(previousUserKey string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReset = append(m.onReset, fn)
}

// OnChange registers fn to run whenever the snapshot is replaced, including
// by nil.
func (m *Manager) OnChange(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Snapshot returns the current snapshot, or nil when logged out.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil
	}
	s := *m.snapshot
	return &s
}

// IsAuthenticated reports whether a user profile is loaded.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot != nil && m.snapshot.User != nil
}

// IsLoading reports whether a non-silent fetch is running.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Language returns the stored language preference.
func (m *Manager) Language() string {
	if lang, ok := m.store.Get(tokenstore.KeyLanguage); ok && lang != "" {
		return lang
	}
	return DefaultLanguage
}

// FetchAuthData loads the profile and then the stats.
//
// A 401 on either leaves the client logged out and returns nil. Any other
// profile failure also logs out and is returned. Any other stats failure keeps
// the profile, drops the stats and is returned.
func (m *Manager) FetchAuthData(ctx context.Context, opts FetchOptions) error {
	if !opts.Silent {
		m.setLoading(true)
		defer m.setLoading(false)
	}
	m.logger().Debug().Bool("silent", opts.Silent).Msg("fetching auth data")

	user, err := m.api.Me(ctx)
	if err != nil {
		m.reset()
		if apiclient.IsUnauthorized(err) {
			m.logger().Debug().Msg("not authenticated")
			return nil
		}
		m.logger().Error().Err(err).Int("status", apiclient.StatusOf(err)).Msg("auth error")
		return err
	}

	m.setUser(user)
	if user.LanguagePref != "" {
		m.store.Set(tokenstore.KeyLanguage, user.LanguagePref)
	}

	stats, err := m.api.Stats(ctx)
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			m.logger().Debug().Msg("stats rejected, clearing session")
			m.reset()
			return nil
		}
		m.logger().Error().Err(err).Int("status", apiclient.StatusOf(err)).Msg("failed to load stats")
		m.publish(&Snapshot{User: user, SyncedAt: m.now()})
		return err
	}

	m.logger().Debug().
		Int64("current_streak", stats.CurrentStreak).
		Bool("streak_started", stats.StreakStarted).
		Msg("auth data loaded")
	m.publish(&Snapshot{User: user, Stats: stats, SyncedAt: m.now()})
	return nil
}

// RefreshData reloads the profile and stats without a loading state.
func (m *Manager) RefreshData(ctx context.Context) error {
	return m.FetchAuthData(ctx, FetchOptions{Silent: true})
}

// Login exchanges credentials for tokens and loads the profile.
func (m *Manager) Login(ctx context.Context, req api.LoginRequest) LoginResult {
	log := m.logger().With().Str("username", req.Username).Logger()
	log.Debug().Bool("remember_me", req.RememberMe).Msg("login attempt")

	resp, err := m.api.Login(ctx, req)
	if err != nil {
		m.creds.Clear()
		result := LoginResult{Message: errorMessage(err, "Login failed")}

		var apiErr *apiclient.Error
		var body api.LoginResponse
		if errors.As(err, &apiErr) && apiErr.DecodeData(&body) == nil {
			result.Lockout = body.Lockout
			result.AttemptsRemaining = body.AttemptsRemaining
		}
		log.Debug().
			Int("status", apiclient.StatusOf(err)).
			Bool("locked", result.Lockout != nil).
			Msg("login error")
		return result
	}

	if !resp.OK {
		log.Debug().Str("message", resp.Msg).Msg("login refused")
		message := resp.Msg
		if message == "" {
			message = "Login failed"
		}
		return LoginResult{Message: message, Lockout: resp.Lockout, AttemptsRemaining: resp.AttemptsRemaining}
	}

	m.creds.Persist(credentials.Update{
		Access:  credentials.Value(resp.AccessToken),
		Refresh: credentials.Value(resp.RefreshToken),
		Session: credentials.Value(resp.SessionToken),
	})
	_ = m.FetchAuthData(ctx, FetchOptions{})

	log.Debug().Msg("login succeeded")
	return LoginResult{OK: true, Message: resp.Msg, User: resp.User}
}

// Logout tells the server, then clears the local session whatever the server
// said. It is safe to call when already logged out.
func (m *Manager) Logout(ctx context.Context) {
	log := m.logger()
	log.Debug().Msg("logout")

	if err := m.api.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("logout request failed")
	}
	m.reset()
}

// Register creates an account. It does not log in and never touches tokens.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) RegisterResult {
	resp, err := m.api.Register(ctx, req)
	if err != nil {
		result := RegisterResult{Message: errorMessage(err, "Registration failed")}

		var apiErr *apiclient.Error
		var body api.RegisterResponse
		if errors.As(err, &apiErr) && apiErr.DecodeData(&body) == nil {
			result.Lockout = body.Lockout
		}
		return result
	}
	if !resp.OK {
		return RegisterResult{Message: resp.Msg, Lockout: resp.Lockout}
	}
	return RegisterResult{OK: true, Message: resp.Msg}
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = v
}

func (m *Manager) setUser(u *api.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userKey = u.Key()
}

// reset clears the credentials and the snapshot and runs the reset hooks.
func (m *Manager) reset() {
	m.creds.Clear()

	m.mu.Lock()
	previous := m.userKey
	m.userKey = anonymousKey
	hooks := append([]func(string){}, m.onReset...)
	m.mu.Unlock()

	m.publish(nil)
	for _, fn := range hooks {
		fn(previous)
	}
}

func (m *Manager) publish(s *Snapshot) {
	m.mu.Lock()
	m.snapshot = s
	listeners := append([]func(*Snapshot){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// errorMessage returns the message feature code should show for err.
func errorMessage(err error, fallback string) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
