// Package tokenstore persists the client's opaque credential strings.
//
// A Store never reports failures to its caller: an unreadable value is
// treated as absent and a failed write is a no-op. Failures are surfaced
// through a diagnostic hook instead.
package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Well-known keys.
const (
	KeyAccessToken  = "auth:access_token"
	KeyRefreshToken = "auth:refresh_token"
	KeySessionToken = "auth:session_token"
	KeyLanguage     = "language"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("tokenstore: key not found")

const defaultOpTimeout = 3 * time.Second

// Backend is the storage area a Store writes to.
type Backend interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Op names the Store operation a Diagnostic refers to.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Diagnostic describes a swallowed storage failure.
type Diagnostic struct {
	Op  Op
	Key string
	Err error
}

// Store is a key/value accessor over a Backend.
type Store struct {
	backend   Backend
	diagnose  func(Diagnostic)
	opTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithDiagnostics replaces the default diagnostic hook.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(s *Store) {
		if fn != nil {
			s.diagnose = fn
		}
	}
}

// WithLogger reports diagnostics to logger at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.diagnose = logDiagnostic(logger)
	}
}

// WithOpTimeout bounds each backend call.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// New returns a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		diagnose:  logDiagnostic(zerolog.Nop()),
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored value for key. Missing keys and storage errors both
// yield ("", false).
func (s *Store) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	value, err := s.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.diagnose(Diagnostic{Op: OpGet, Key: key, Err: err})
		}
		return "", false
	}
	return value, true
}

// Set stores value under key.
func (s *Store) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	if err := s.backend.Save(ctx, key, value); err != nil {
		s.diagnose(Diagnostic{Op: OpSet, Key: key, Err: err})
	}
}

// Delete removes key. Removing a missing key is not a failure.
func (s *Store) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	if err := s.backend.Remove(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.diagnose(Diagnostic{Op: OpDelete, Key: key, Err: err})
	}
}

func logDiagnostic(logger zerolog.Logger) func(Diagnostic) {
	return func(d Diagnostic) {
		logger.Debug().
			Err(d.Err).
			Str("op", string(d.Op)).
			Str("key", d.Key).
			Msg("token storage operation failed")
	}
}
