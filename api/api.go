package api

import (
	"context"
	"net/url"
	"time"

	"github.com/continuum-app/continuum-cli/apiclient"
)

// Client calls the Continuum endpoints through an apiclient.Client. Every
// error it returns is an *apiclient.Error.
type Client struct {
	http *apiclient.Client
}

// New returns a Client sending through c.
func New(c *apiclient.Client) *Client {
	return &Client{http: c}
}

// Login posts credentials. A response with OK false is returned without error
// when the server answers 2xx; non-2xx answers come back as errors whose Data
// holds the LoginResponse.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.http.Post(ctx, apiclient.LoginPath, req, &resp); err != nil {
		return nil, apiclient.Wrap(err, "Login failed")
	}
	return &resp, nil
}

// Logout ends the current session on the server.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.http.Post(ctx, apiclient.LogoutPath, nil, nil); err != nil {
		return apiclient.Wrap(err, "Logout failed")
	}
	return nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.http.Post(ctx, apiclient.RegisterPath, req, &resp); err != nil {
		return nil, apiclient.Wrap(err, "Registration failed")
	}
	return &resp, nil
}

// Me returns the current user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.http.Get(ctx, "/users/me", &user); err != nil {
		return nil, apiclient.Wrap(err, "Failed to load user data")
	}
	return &user, nil
}

// UpdateLanguage stores the user's language preference.
func (c *Client) UpdateLanguage(ctx context.Context, language string) (*User, error) {
	var user User
	body := map[string]string{"language": language}
	if err := c.http.Put(ctx, "/users/language", body, &user); err != nil {
		return nil, apiclient.Wrap(err, "Failed to update language")
	}
	return &user, nil
}

// StartStreak starts the user's streak at start.
func (c *Client) StartStreak(ctx context.Context, start time.Time) error {
	body := map[string]time.Time{"start_time": start}
	if err := c.http.Post(ctx, "/users/start-streak", body, nil); err != nil {
		return apiclient.Wrap(err, "Failed to start streak")
	}
	return nil
}

// Sessions lists the user's active sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.http.Get(ctx, "/users/sessions", &resp); err != nil {
		return nil, apiclient.Wrap(err, "Failed to load sessions")
	}
	return resp.Sessions, nil
}

// RevokeSession ends one of the user's sessions.
func (c *Client) RevokeSession(ctx context.Context, id string) error {
	if err := c.http.Delete(ctx, "/users/sessions/"+url.PathEscape(id), nil, nil); err != nil {
		return apiclient.Wrap(err, "Failed to revoke session")
	}
	return nil
}

// Stats returns the user's streak statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.http.Get(ctx, "/stats", &stats); err != nil {
		return nil, apiclient.Wrap(err, "Failed to fetch stats")
	}
	return &stats, nil
}

// Rankings returns the leaderboard.
func (c *Client) Rankings(ctx context.Context) (*Rankings, error) {
	var rankings Rankings
	if err := c.http.Get(ctx, "/stats/rankings", &rankings); err != nil {
		return nil, apiclient.Wrap(err, "Failed to get rankings")
	}
	return &rankings, nil
}

// Relapses lists the user's relapses, newest first.
func (c *Client) Relapses(ctx context.Context) ([]Relapse, error) {
	var relapses []Relapse
	if err := c.http.Get(ctx, "/relapses", &relapses); err != nil {
		return nil, apiclient.Wrap(err, "Failed to get relapses")
	}
	return relapses, nil
}

// AddRelapse records a relapse.
func (c *Client) AddRelapse(ctx context.Context, relapse NewRelapse) (*Relapse, error) {
	var resp struct {
		Relapse Relapse `json:"relapse"`
	}
	if err := c.http.Post(ctx, "/relapses", relapse, &resp); err != nil {
		return nil, apiclient.Wrap(err, "Failed to add relapse")
	}
	return &resp.Relapse, nil
}

// DeleteRelapse removes a relapse.
func (c *Client) DeleteRelapse(ctx context.Context, id string) error {
	if err := c.http.Delete(ctx, "/relapses/"+url.PathEscape(id), nil, nil); err != nil {
		return apiclient.Wrap(err, "Failed to delete relapse")
	}
	return nil
}
