package tui

import (
	"time"
)

// Profile is what the success panel shows about the logged-in user.
type Profile struct {
	Nickname      string
	Username      string
	Role          string
	Language      string
	CurrentStreak time.Duration
	LongestStreak time.Duration
	StreakStarted bool
	// HasStats is false when the stats could not be loaded.
	HasStats bool
}

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{ ServerURL string }

// MsgSessionRestored signals that stored credentials were found.
type MsgSessionRestored struct{}

// MsgNotLoggedIn signals that there is no usable session.
type MsgNotLoggedIn struct{}

// MsgLoggingIn signals that a login request is in progress.
type MsgLoggingIn struct{ Username string }

// MsgLoginOK signals that the server accepted the credentials.
type MsgLoginOK struct{ Username string }

// MsgLoginFailed signals that the server refused the credentials.
type MsgLoginFailed struct {
	Message           string
	AttemptsRemaining *int
}

// MsgLockedOut signals that logins are blocked until Until.
type MsgLockedOut struct {
	Message string
	Until   time.Time
}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgTokensSaved signals where the credentials were persisted.
type MsgTokensSaved struct{ Location string }

// MsgLoadingProfile signals that the profile is being fetched.
type MsgLoadingProfile struct{}

// MsgProfileLoaded carries the loaded profile.
type MsgProfileLoaded struct{ Profile Profile }

// MsgStatsUnavailable signals that the profile loaded but the stats did not.
type MsgStatsUnavailable struct{ Err error }

// MsgLoggedOut signals that the local session was cleared.
type MsgLoggedOut struct{}

// MsgAPICallOK signals that an API call succeeded.
type MsgAPICallOK struct{ What string }

// MsgAPICallFailed signals that an API call failed.
type MsgAPICallFailed struct{ Err error }

// MsgDone signals that the command finished.
type MsgDone struct{}

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
