package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continuum-app/continuum-cli/credentials"
	"github.com/continuum-app/continuum-cli/internal/fakeapi"
	"github.com/continuum-app/continuum-cli/tokenstore"
)

type harness struct {
	t         *testing.T
	srv       *fakeapi.Server
	tokenFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)

	t.Setenv("TOKEN_STORE", "")
	t.Setenv("REQUEST_TIMEOUT", "5")
	return &harness{
		t:         t,
		srv:       srv,
		tokenFile: filepath.Join(t.TempDir(), "tokens.json"),
	}
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (h *harness) run(stdin string, args ...string) result {
	h.t.Helper()

	c := &cli{interactive: func() bool { return false }}
	root := c.rootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--server-url", h.srv.BaseURL(),
		"--token-file", h.tokenFile,
	}, args...))

	err := root.Execute()
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func (h *harness) login() {
	h.t.Helper()
	res := h.run("", "login", "-u", "alice", "-p", "secret")
	require.NoError(h.t, res.err, res.stderr)
}

func TestLogin_ThenWhoami(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "login", "-u", "alice", "-p", "secret")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Logged in as alice.")
	assert.Contains(t, res.stderr, "Tokens saved to "+h.tokenFile)
	assert.Contains(t, res.stderr, "User:     Alice (@alice)")
	assert.Contains(t, res.stderr, "Streak:   1d 0h 0m")

	_, err := os.Stat(h.tokenFile)
	require.NoError(t, err)

	res = h.run("", "whoami")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "64b000000000000000000001\talice\tuser\n", res.stdout)
	assert.Contains(t, res.stderr, "Found stored session.")
}

func TestLogin_PromptsForMissingCredentials(t *testing.T) {
	h := newHarness(t)

	res := h.run("alice\nsecret\n", "login")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Username: ")
	assert.Contains(t, res.stderr, "Password: ")
	assert.Contains(t, res.stderr, "Logged in as alice.")
}

func TestLogin_EmptyCredentials(t *testing.T) {
	h := newHarness(t)

	res := h.run("\n\n", "login")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "cannot be empty")
	assert.Zero(t, h.srv.Count("/api/auth/login"))
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "login", "-u", "alice", "-p", "nope")
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, errReported))
	assert.Contains(t, res.stderr, "Login failed: Username atau password salah")
	assert.Contains(t, res.stderr, "Attempts remaining: 2")
	assert.NotContains(t, res.stderr, "Error:")
}

func TestLogin_LockedAccount(t *testing.T) {
	h := newHarness(t)
	h.srv.AddAccount(fakeapi.Account{
		ID:          "64b000000000000000000002",
		Username:    "carol",
		Password:    "pw",
		Nickname:    "Carol",
		Role:        "user",
		LockedUntil: time.Now().Add(10 * time.Minute),
	})

	res := h.run("", "login", "-u", "carol", "-p", "pw")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Akun Anda sedang dikunci.")
	assert.Contains(t, res.stderr, "Try again in")
}

func TestWhoami_NotLoggedIn(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "whoami")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, errNotLoggedIn)
	assert.Contains(t, res.stderr, "Not logged in.")
	assert.Zero(t, h.srv.Count("/api/users/me"))
}

func TestLogout_ForgetsTokens(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "logout")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Logged out.")
	assert.Equal(t, 1, h.srv.Count("/api/auth/logout"))

	res = h.run("", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Access token:  absent")
	assert.Contains(t, res.stdout, "Refresh token: absent")

	// Logging out twice is harmless.
	res = h.run("", "logout")
	require.NoError(t, res.err, res.stderr)
}

func TestStatus_DoesNotContactServer(t *testing.T) {
	h := newHarness(t)
	h.login()
	before := len(h.srv.Requests("/api/users/me"))

	res := h.run("", "status")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Token store:   "+h.tokenFile)
	assert.Contains(t, res.stdout, "Access token:  present (opaque)")
	assert.Contains(t, res.stdout, "Refresh token: present")
	assert.Contains(t, res.stdout, "Session token: present")
	assert.Equal(t, before, len(h.srv.Requests("/api/users/me")))
}

func TestWriteStatus_JWTExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		access string
		want   string
	}{
		{"valid", sign(jwt.MapClaims{"exp": now.Add(90 * time.Minute).Unix()}), "valid for 1h30m0s"},
		{"expired", sign(jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), "expired 1m0s ago"},
		{"no expiry", sign(jwt.MapClaims{"sub": "alice"}), "present (no expiry)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := credentials.NewManager(tokenstore.New(tokenstore.NewMemoryBackend()))
			creds.Persist(credentials.Update{Access: credentials.Value(tt.access)})

			var buf bytes.Buffer
			writeStatus(&buf, "memory", creds, now)
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "Refresh token: absent")
		})
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "stats")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Current streak: 1d 0h 0m")
	assert.Contains(t, res.stdout, "Longest streak: 2d 0h 0m")
	assert.Contains(t, res.stdout, "Relapses:       1 (last on 2024-04-30)")
}

func TestStats_RefreshesExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.ExpireAccess()

	res := h.run("", "stats")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Current streak:")
	assert.Contains(t, res.stderr, "Refreshing access token...")
	assert.Equal(t, 1, h.srv.Count("/api/auth/refresh"))

	access, _, _ := h.srv.Tokens()
	data, err := os.ReadFile(h.tokenFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), access)
}

func TestStats_RejectedRefreshEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.SetTokens("", "", "")

	res := h.run("", "stats")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Session ended, please log in again.")

	res = h.run("", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Access token:  absent")
}

func TestRankings(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "rankings")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Alice (you)")
	assert.Contains(t, res.stdout, "3d 0h 0m")
	assert.Contains(t, res.stdout, "2 users")
}

func TestSessions_ListAndRevoke(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "sessions")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "sess-phone")
	assert.Contains(t, res.stdout, "10.0.0.7")
	assert.Contains(t, res.stdout, "current")

	res = h.run("", "sessions", "revoke", "sess-phone")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Session sess-phone revoked")
	assert.Equal(t, []string{"sess-phone"}, h.srv.Revoked())
}

func TestRelapses_AddListDelete(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "relapses", "add", "--at", "2024-05-01T10:00:00Z", "--note", "stress")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Relapse rel-1 recorded")

	res = h.run("", "relapses")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "rel-1")
	assert.Contains(t, res.stdout, "stress")

	res = h.run("", "relapses", "delete", "rel-1")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Relapse rel-1 deleted")
}

func TestRelapses_InvalidTimeIsRejectedLocally(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "relapses", "add", "--at", "yesterday")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid time")
	assert.Zero(t, h.srv.Count("/api/relapses"))
}

func TestLanguage_ShowAndSet(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "language")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "id\n", res.stdout)

	h.login()
	res = h.run("", "language")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "en\n", res.stdout)

	res = h.run("", "language", "id")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Language set to id")

	res = h.run("", "language")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "id\n", res.stdout)

	res = h.run("", "language", "fr")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unsupported language")
}

func TestStreakStart(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "streak", "start")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Streak started")
	assert.Equal(t, 1, h.srv.Count("/api/users/start-streak"))
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "register", "--nickname", "Dave", "-u", "dave", "-p", "pw", "--language", "en")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Registrasi berhasil!")

	res = h.run("", "register", "--nickname", "Dave", "-u", "dave", "-p", "pw")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Username sudah digunakan.")

	// Registration never stores tokens.
	res = h.run("", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Access token:  absent")
}

func TestMemoryStoreForgetsBetweenRuns(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "--token-store", "memory", "login", "-u", "alice", "-p", "secret")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Tokens saved to memory")

	res = h.run("", "--token-store", "memory", "whoami")
	assert.ErrorIs(t, res.err, errNotLoggedIn)
}

func TestInvalidConfigIsReported(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "--token-store", "s3", "status")
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, errReported))
	assert.Contains(t, res.stderr, "invalid TOKEN_STORE")
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseWhen("", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = parseWhen("2024-05-01T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = parseWhen("2024-04-30 08:15", now)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Minute())

	_, err = parseWhen("2024-05-02T00:00:00Z", now)
	assert.ErrorContains(t, err, "in the future")

	_, err = parseWhen("soon", now)
	assert.ErrorContains(t, err, "invalid time")
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-5, "0m 0s"},
		{59, "0m 59s"},
		{3661, "1h 1m"},
		{86400, "1d 0h 0m"},
		{262800, "3d 1h 0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSeconds(tt.in))
	}
}
