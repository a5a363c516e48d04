package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all progress output of a command. It also receives
// token refresh notifications from the API client.
type Displayer interface {
	Banner(serverURL string)
	SessionRestored()
	NotLoggedIn()
	LoggingIn(username string)
	LoginOK(username string)
	LoginFailed(message string, attemptsRemaining *int)
	LockedOut(message string, until time.Time)
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	TokensSaved(location string)
	LoadingProfile()
	ProfileLoaded(p Profile)
	StatsUnavailable(err error)
	LoggedOut()
	APICallOK(what string)
	APICallFailed(err error)
	Done()
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w   io.Writer
	now func() time.Time
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w, now: time.Now}
}

func (p *PlainDisplayer) Banner(serverURL string) {
	fmt.Fprintf(p.w, "=== Continuum (%s) ===\n", serverURL)
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) SessionRestored() {
	fmt.Fprintln(p.w, "Found stored session.")
}

func (p *PlainDisplayer) NotLoggedIn() {
	fmt.Fprintln(p.w, "Not logged in. Run `continuum login` first.")
}

func (p *PlainDisplayer) LoggingIn(username string) {
	fmt.Fprintf(p.w, "Logging in as %s...\n", username)
}

func (p *PlainDisplayer) LoginOK(username string) {
	fmt.Fprintf(p.w, "Logged in as %s.\n", username)
}

func (p *PlainDisplayer) LoginFailed(message string, attemptsRemaining *int) {
	fmt.Fprintf(p.w, "Login failed: %s\n", message)
	if attemptsRemaining != nil {
		fmt.Fprintf(p.w, "Attempts remaining: %d\n", *attemptsRemaining)
	}
}

func (p *PlainDisplayer) LockedOut(message string, until time.Time) {
	fmt.Fprintln(p.w, message)
	fmt.Fprintf(p.w, "Try again in %s (at %s).\n",
		formatDuration(until.Sub(p.now())), until.Local().Format(time.Kitchen))
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
	fmt.Fprintln(p.w, "Session ended, please log in again.")
}

func (p *PlainDisplayer) TokensSaved(location string) {
	fmt.Fprintf(p.w, "Tokens saved to %s\n", location)
}

func (p *PlainDisplayer) LoadingProfile() {
	fmt.Fprintln(p.w, "Loading profile...")
}

func (p *PlainDisplayer) ProfileLoaded(profile Profile) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintf(p.w, "User:     %s (@%s)\n", profile.Nickname, profile.Username)
	fmt.Fprintf(p.w, "Role:     %s\n", profile.Role)
	fmt.Fprintf(p.w, "Language: %s\n", profile.Language)
	switch {
	case !profile.HasStats:
		fmt.Fprintln(p.w, "Streak:   unavailable")
	case !profile.StreakStarted:
		fmt.Fprintln(p.w, "Streak:   not started")
	default:
		fmt.Fprintf(p.w, "Streak:   %s (longest %s)\n",
			formatStreak(profile.CurrentStreak), formatStreak(profile.LongestStreak))
	}
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) StatsUnavailable(err error) {
	fmt.Fprintf(p.w, "Warning: failed to load stats: %v\n", err)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out.")
}

func (p *PlainDisplayer) APICallOK(what string) {
	fmt.Fprintf(p.w, "%s\n", what)
}

func (p *PlainDisplayer) APICallFailed(err error) {
	fmt.Fprintf(p.w, "API call failed: %v\n", err)
}

func (p *PlainDisplayer) Done() {}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_ string)                 {}
func (NoopDisplayer) SessionRestored()                {}
func (NoopDisplayer) NotLoggedIn()                    {}
func (NoopDisplayer) LoggingIn(_ string)              {}
func (NoopDisplayer) LoginOK(_ string)                {}
func (NoopDisplayer) LoginFailed(_ string, _ *int)    {}
func (NoopDisplayer) LockedOut(_ string, _ time.Time) {}
func (NoopDisplayer) Refreshing()                     {}
func (NoopDisplayer) RefreshOK()                      {}
func (NoopDisplayer) RefreshFailed(_ error)           {}
func (NoopDisplayer) TokensSaved(_ string)            {}
func (NoopDisplayer) LoadingProfile()                 {}
func (NoopDisplayer) ProfileLoaded(_ Profile)         {}
func (NoopDisplayer) StatsUnavailable(_ error)        {}
func (NoopDisplayer) LoggedOut()                      {}
func (NoopDisplayer) APICallOK(_ string)              {}
func (NoopDisplayer) APICallFailed(_ error)           {}
func (NoopDisplayer) Done()                           {}
func (NoopDisplayer) Fatal(_ error)                   {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(serverURL string) {
	t.p.Send(MsgBanner{ServerURL: serverURL})
}

func (t *ProgramDisplayer) SessionRestored() {
	t.p.Send(MsgSessionRestored{})
}

func (t *ProgramDisplayer) NotLoggedIn() {
	t.p.Send(MsgNotLoggedIn{})
}

func (t *ProgramDisplayer) LoggingIn(username string) {
	t.p.Send(MsgLoggingIn{Username: username})
}

func (t *ProgramDisplayer) LoginOK(username string) {
	t.p.Send(MsgLoginOK{Username: username})
}

func (t *ProgramDisplayer) LoginFailed(message string, attemptsRemaining *int) {
	t.p.Send(MsgLoginFailed{Message: message, AttemptsRemaining: attemptsRemaining})
}

func (t *ProgramDisplayer) LockedOut(message string, until time.Time) {
	t.p.Send(MsgLockedOut{Message: message, Until: until})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) TokensSaved(location string) {
	t.p.Send(MsgTokensSaved{Location: location})
}

func (t *ProgramDisplayer) LoadingProfile() {
	t.p.Send(MsgLoadingProfile{})
}

func (t *ProgramDisplayer) ProfileLoaded(p Profile) {
	t.p.Send(MsgProfileLoaded{Profile: p})
}

func (t *ProgramDisplayer) StatsUnavailable(err error) {
	t.p.Send(MsgStatsUnavailable{Err: err})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) APICallOK(what string) {
	t.p.Send(MsgAPICallOK{What: what})
}

func (t *ProgramDisplayer) APICallFailed(err error) {
	t.p.Send(MsgAPICallFailed{Err: err})
}

func (t *ProgramDisplayer) Done() {
	t.p.Send(MsgDone{})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
