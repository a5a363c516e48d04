package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continuum-app/continuum-cli/apiclient"
)

var (
	_ Displayer                 = NoopDisplayer{}
	_ Displayer                 = (*PlainDisplayer)(nil)
	_ Displayer                 = (*ProgramDisplayer)(nil)
	_ apiclient.RefreshObserver = (*PlainDisplayer)(nil)
	_ apiclient.RefreshObserver = (*ProgramDisplayer)(nil)
)

func update(t *testing.T, m Model, msgs ...any) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func TestModel_LoginFlow(t *testing.T) {
	m := update(t, NewModel(),
		MsgBanner{ServerURL: "http://localhost:5000/api"},
		MsgLoggingIn{Username: "alice"},
	)
	assert.Equal(t, stateLoggingIn, m.state)
	assert.Contains(t, m.viewMain(), "Logging in as alice")

	m = update(t, m,
		MsgLoginOK{Username: "alice"},
		MsgTokensSaved{Location: "/tmp/tokens.json"},
		MsgLoadingProfile{},
	)
	assert.Equal(t, stateLoading, m.state)

	m = update(t, m, MsgProfileLoaded{Profile: Profile{
		Nickname:      "Alice",
		Username:      "alice",
		Role:          "user",
		Language:      "en",
		CurrentStreak: 26 * time.Hour,
		LongestStreak: 48 * time.Hour,
		StreakStarted: true,
		HasStats:      true,
	}})
	require.Equal(t, stateSuccess, m.state)

	view := m.viewSuccess()
	assert.Contains(t, view, "Alice (@alice)")
	assert.Contains(t, view, "1d 2h 0m")
	assert.Contains(t, view, "2d 0h 0m")
	assert.Contains(t, view, "Tokens saved to /tmp/tokens.json")
	assert.Contains(t, view, "localhost:5000")
}

func TestModel_Lockout(t *testing.T) {
	until := time.Now().Add(90 * time.Second)
	next, cmd := NewModel().Update(MsgLockedOut{Message: "Akun Anda sedang dikunci.", Until: until})
	m := next.(Model)

	assert.NotNil(t, cmd)
	assert.Equal(t, stateLockedOut, m.state)
	assert.Contains(t, m.viewMain(), "Akun Anda sedang dikunci.")
	assert.Contains(t, m.viewMain(), "Try again in")
	assert.Contains(t, m.viewMain(), "1m ")

	// Done does not hide the countdown.
	m = update(t, m, MsgDone{})
	assert.Equal(t, stateLockedOut, m.state)

	m.lockUntil = time.Now().Add(-time.Second)
	next, cmd = m.Update(tickMsg(time.Now()))
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.Zero(t, m.remaining)
	assert.Contains(t, m.viewMain(), "You can log in again.")
}

func TestModel_TickOutsideLockoutIsIgnored(t *testing.T) {
	next, cmd := NewModel().Update(tickMsg(time.Now()))
	assert.Nil(t, cmd)
	assert.Equal(t, stateInit, next.(Model).state)
}

func TestModel_RefreshAndFailure(t *testing.T) {
	m := update(t, NewModel(),
		MsgRefreshing{},
		MsgRefreshFailed{Err: errors.New("Refresh token tidak valid")},
		MsgFatal{Err: errors.New("not logged in")},
	)
	assert.Equal(t, stateError, m.state)

	view := m.viewError()
	assert.Contains(t, view, "not logged in")
	assert.Contains(t, view, "Refresh failed: Refresh token tidak valid")
}

func TestModel_LoginFailedShowsAttempts(t *testing.T) {
	attempts := 2
	m := update(t, NewModel(), MsgLoginFailed{Message: "Username atau password salah", AttemptsRemaining: &attempts})
	assert.Contains(t, m.viewStatusLog(), "(2 attempts remaining)")
}

func TestPlainDisplayer(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	attempts := 1
	d.LoginFailed("Username atau password salah", &attempts)
	d.LockedOut("Akun Anda sedang dikunci.", now.Add(15*time.Minute))
	d.ProfileLoaded(Profile{Nickname: "Alice", Username: "alice", HasStats: true})
	d.RefreshFailed(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "Attempts remaining: 1")
	assert.Contains(t, out, "Try again in 15m 0s")
	assert.Contains(t, out, "User:     Alice (@alice)")
	assert.Contains(t, out, "Streak:   not started")
	assert.Contains(t, out, "Session ended")
	assert.Equal(t, 2, strings.Count(out, "========================================"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{0, "0s"},
		{1499 * time.Millisecond, "1s"},
		{61 * time.Second, "1m 1s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}

func TestFormatStreak(t *testing.T) {
	assert.Equal(t, "30m 0s", formatStreak(30*time.Minute))
	assert.Equal(t, "5h 30m", formatStreak(5*time.Hour+30*time.Minute))
	assert.Equal(t, "3d 1h 0m", formatStreak(73*time.Hour))
}
