package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/continuum-app/continuum-cli/api"
	"github.com/continuum-app/continuum-cli/apiclient"
	"github.com/continuum-app/continuum-cli/credentials"
	"github.com/continuum-app/continuum-cli/session"
	"github.com/continuum-app/continuum-cli/tokenstore"
	"github.com/continuum-app/continuum-cli/tui"
)

var errNotLoggedIn = errors.New("not logged in, run `continuum login` first")

// app is everything one command needs, wired for one invocation.
type app struct {
	cfg     *Config
	log     zerolog.Logger
	display tui.Displayer
	out     io.Writer

	store    *tokenstore.Store
	location string
	closer   func() error

	creds   *credentials.Manager
	client  *apiclient.Client
	api     *api.Client
	session *session.Manager
}

func newApp(cfg *Config, d tui.Displayer, log zerolog.Logger, out io.Writer) (*app, error) {
	backend, location, closer, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	store := tokenstore.New(backend,
		tokenstore.WithDiagnostics(func(diag tokenstore.Diagnostic) {
			log.Warn().
				Err(diag.Err).
				Str("op", string(diag.Op)).
				Str("key", diag.Key).
				Msg("token storage failed")
		}),
	)
	creds := credentials.NewManager(store, credentials.WithLogger(log))

	client, err := apiclient.New(cfg.ServerURL, creds,
		apiclient.WithTimeout(cfg.Timeout),
		apiclient.WithRefreshTimeout(cfg.Timeout),
		apiclient.WithRefreshObserver(d),
		apiclient.WithUserAgent("continuum-cli/"+version),
		apiclient.WithLogger(log),
	)
	if err != nil {
		_ = closer()
		return nil, err
	}
	apiClient := api.New(client)

	a := &app{
		cfg:      cfg,
		log:      log,
		display:  d,
		out:      out,
		store:    store,
		location: location,
		closer:   closer,
		creds:    creds,
		client:   client,
		api:      apiClient,
		session:  session.NewManager(apiClient, creds, store, session.WithLogger(log)),
	}
	a.session.OnReset(func(previous string) {
		log.Debug().Str("previous_user", previous).Msg("session reset")
	})
	return a, nil
}

func (a *app) Close() error {
	return a.closer()
}

// openBackend returns the token backend selected by cfg, a human-readable
// location, and a function releasing it.
func openBackend(cfg *Config) (tokenstore.Backend, string, func() error, error) {
	noop := func() error { return nil }

	switch cfg.TokenStore {
	case storeMemory:
		return tokenstore.NewMemoryBackend(), "memory", noop, nil
	case storeRedis:
		b, err := tokenstore.NewRedisBackendFromURL(cfg.RedisURL, cfg.ServerURL, cfg.TokenTTL)
		if err != nil {
			return nil, "", nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return b, redactURL(cfg.RedisURL), b.Close, nil
	default:
		b := tokenstore.NewFileBackend(cfg.TokenFile, cfg.ServerURL)
		return b, b.Path(), noop, nil
	}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "redis"
	}
	return u.Redacted()
}

// requireSession loads the stored session, failing when there is none.
func (a *app) requireSession(ctx context.Context) (*session.Snapshot, error) {
	if a.creds.Current().LoggedOut() {
		a.display.NotLoggedIn()
		return nil, errNotLoggedIn
	}
	a.display.SessionRestored()

	err := a.session.FetchAuthData(ctx, session.FetchOptions{Silent: true})
	snap := a.session.Snapshot()
	if snap == nil {
		if err != nil {
			return nil, err
		}
		a.display.NotLoggedIn()
		return nil, errNotLoggedIn
	}
	if err != nil {
		a.display.StatsUnavailable(err)
	}
	return snap, nil
}

// showProfile hands snap to the displayer.
func (a *app) showProfile(snap *session.Snapshot) {
	if snap == nil || snap.User == nil {
		return
	}
	p := tui.Profile{
		Nickname: snap.User.Nickname,
		Username: snap.User.Username,
		Role:     snap.User.Role,
		Language: a.session.Language(),
	}
	if snap.Stats != nil {
		p.HasStats = true
		p.StreakStarted = snap.Stats.StreakStarted
		p.CurrentStreak = time.Duration(snap.Stats.CurrentStreak) * time.Second
		p.LongestStreak = time.Duration(snap.Stats.LongestStreak) * time.Second
	}
	a.display.ProfileLoaded(p)
}
