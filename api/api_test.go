package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continuum-app/continuum-cli/apiclient"
	"github.com/continuum-app/continuum-cli/credentials"
	"github.com/continuum-app/continuum-cli/internal/fakeapi"
	"github.com/continuum-app/continuum-cli/tokenstore"
)

func newTestAPI(t *testing.T) (*Client, *credentials.Manager, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)

	creds := credentials.NewManager(tokenstore.New(tokenstore.NewMemoryBackend()))
	hc, err := apiclient.New(srv.BaseURL(), creds, apiclient.WithMaxRetries(0))
	require.NoError(t, err)
	return New(hc), creds, srv
}

func loggedIn(t *testing.T) (*Client, *fakeapi.Server) {
	t.Helper()
	c, creds, srv := newTestAPI(t)
	resp, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	creds.Persist(credentials.Update{
		Access:  credentials.Value(resp.AccessToken),
		Refresh: credentials.Value(resp.RefreshToken),
		Session: credentials.Value(resp.SessionToken),
	})
	return c, srv
}

func TestLogin_Success(t *testing.T) {
	c, _, _ := newTestAPI(t)

	resp, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "secret", RememberMe: true})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "access-1", resp.AccessToken)
	assert.Equal(t, "refresh-1", resp.RefreshToken)
	assert.Equal(t, "session-1", resp.SessionToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "en", resp.User.LanguagePref)
}

func TestLogin_WrongPassword(t *testing.T) {
	c, _, _ := newTestAPI(t)

	_, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "nope"})
	require.Error(t, err)

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Username atau password salah", apiErr.Message)

	var body LoginResponse
	require.NoError(t, apiErr.DecodeData(&body))
	require.NotNil(t, body.AttemptsRemaining)
	assert.Equal(t, 2, *body.AttemptsRemaining)
}

func TestLogin_Locked(t *testing.T) {
	c, _, srv := newTestAPI(t)
	until := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Second)
	srv.AddAccount(fakeapi.Account{Username: "bob", Password: "pw", LockedUntil: until})

	_, err := c.Login(context.Background(), LoginRequest{Username: "bob", Password: "pw"})
	require.Error(t, err)

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusLocked, apiErr.Status)

	var body LoginResponse
	require.NoError(t, apiErr.DecodeData(&body))
	require.NotNil(t, body.Lockout)
	assert.Equal(t, "user", body.Lockout.Type)
	assert.True(t, until.Equal(body.Lockout.Until))
}

func TestRegister(t *testing.T) {
	c, _, _ := newTestAPI(t)
	ctx := context.Background()

	resp, err := c.Register(ctx, RegisterRequest{Nickname: "Carol", Username: "carol", Password: "pw123456"})
	require.NoError(t, err)
	assert.True(t, resp.OK)

	_, err = c.Register(ctx, RegisterRequest{Nickname: "Carol", Username: "carol", Password: "pw123456"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apiclient.StatusOf(err))
	assert.Equal(t, "Username sudah digunakan. (status 409)", err.Error())

	_, err = c.Register(ctx, RegisterRequest{Nickname: "X", Username: "blocked", Password: "pw123456"})
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, apiclient.StatusOf(err))
}

func TestMeAndLanguage(t *testing.T) {
	c, _ := loggedIn(t)
	ctx := context.Background()

	user, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "64b000000000000000000001", user.ID)
	assert.Equal(t, user.ID, user.Key())
	assert.Equal(t, "Alice", user.Nickname)

	user, err = c.UpdateLanguage(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, "id", user.LanguagePref)
}

func TestMe_Unauthenticated(t *testing.T) {
	c, _, srv := newTestAPI(t)

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))
	// The refresh was attempted once with no refresh token and failed.
	assert.Equal(t, 1, srv.Count("/api/auth/refresh"))
	assert.ErrorIs(t, err, apiclient.ErrRefreshFailed)
}

func TestStatsAndRankings(t *testing.T) {
	c, _ := loggedIn(t)
	ctx := context.Background()

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(86400), stats.CurrentStreak)
	assert.Equal(t, int64(172800), stats.LongestStreak)
	assert.True(t, stats.StreakStarted)
	assert.Equal(t, []string{"2024-04-30"}, stats.RelapseDates)

	rankings, err := c.Rankings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rankings.TotalUsers)
	require.Len(t, rankings.Rankings, 2)
	assert.Equal(t, "bob", rankings.Rankings[0].Username)
	assert.True(t, rankings.Rankings[1].IsCurrentUser)
}

func TestSessions(t *testing.T) {
	c, srv := loggedIn(t)
	ctx := context.Background()

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].IsCurrent)
	assert.Equal(t, "10.0.0.7", sessions[1].IPAddress)

	require.NoError(t, c.RevokeSession(ctx, "sess-phone"))
	assert.Equal(t, []string{"sess-phone"}, srv.Revoked())
}

func TestRelapses(t *testing.T) {
	c, srv := loggedIn(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 2, 21, 30, 0, 0, time.UTC)

	relapse, err := c.AddRelapse(ctx, NewRelapse{RelapseTime: at, RelapseNote: "late night"})
	require.NoError(t, err)
	assert.Equal(t, "rel-1", relapse.ID)
	require.NotNil(t, relapse.RelapseNote)
	assert.Equal(t, "late night", *relapse.RelapseNote)

	relapses, err := c.Relapses(ctx)
	require.NoError(t, err)
	require.Len(t, relapses, 1)
	assert.True(t, at.Equal(relapses[0].RelapseTime))

	require.NoError(t, c.DeleteRelapse(ctx, "rel-1"))
	assert.Equal(t, 1, srv.Count("/api/relapses/rel-1"))

	_, err = c.AddRelapse(ctx, NewRelapse{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusOf(err))
}

func TestStartStreakAndLogout(t *testing.T) {
	c, srv := loggedIn(t)
	ctx := context.Background()

	require.NoError(t, c.StartStreak(ctx, time.Now()))
	require.NoError(t, c.Logout(ctx))

	access, _, _ := srv.Tokens()
	assert.Empty(t, access)
}

func TestUserKey(t *testing.T) {
	var nilUser *User
	assert.Equal(t, "anonymous", nilUser.Key())
	assert.Equal(t, "alice", (&User{Username: "alice"}).Key())
	assert.Equal(t, "anonymous", (&User{}).Key())
}
