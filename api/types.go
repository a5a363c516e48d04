// Package api wraps the Continuum REST endpoints used by the client.
package api

import "time"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// LoginUser is the abbreviated user returned by a successful login.
type LoginUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	LanguagePref string `json:"language_pref"`
}

// Lockout is attached to login and registration failures while the account
// or the caller's IP is temporarily blocked.
type Lockout struct {
	Type  string    `json:"type"`
	Until time.Time `json:"until"`
}

// LoginResponse is the body of /auth/login, successful or not.
type LoginResponse struct {
	OK                bool       `json:"ok"`
	Msg               string     `json:"msg"`
	AccessToken       string     `json:"access_token"`
	RefreshToken      string     `json:"refresh_token"`
	SessionToken      string     `json:"session_token"`
	User              *LoginUser `json:"user,omitempty"`
	Lockout           *Lockout   `json:"lockout,omitempty"`
	AttemptsRemaining *int       `json:"attemptsRemaining,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Nickname     string `json:"nickname"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	LanguagePref string `json:"language_pref,omitempty"`
}

// RegisterResponse is the body of /auth/register.
type RegisterResponse struct {
	OK      bool     `json:"ok"`
	Msg     string   `json:"msg"`
	Lockout *Lockout `json:"lockout,omitempty"`
}

// User is the profile returned by GET /users/me.
type User struct {
	ID              string     `json:"_id"`
	Nickname        string     `json:"nickname"`
	Username        string     `json:"username"`
	Role            string     `json:"role"`
	LanguagePref    string     `json:"language_pref"`
	ProfilePicture  string     `json:"profile_picture"`
	StreakStartDate *time.Time `json:"streak_start_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Key identifies the user for per-user client state.
func (u *User) Key() string {
	if u == nil {
		return "anonymous"
	}
	switch {
	case u.ID != "":
		return u.ID
	case u.Username != "":
		return u.Username
	default:
		return "anonymous"
	}
}

// Stats is the body of GET /stats. Streak lengths are in seconds.
type Stats struct {
	CurrentStreak int64    `json:"currentStreak"`
	LongestStreak int64    `json:"longestStreak"`
	RelapseDates  []string `json:"relapse_dates"`
	StreakStarted bool     `json:"streakStarted"`
}

// Ranking is one row of GET /stats/rankings.
type Ranking struct {
	UserID          string     `json:"user_id,omitempty"`
	Username        string     `json:"username"`
	Nickname        string     `json:"nickname"`
	CurrentStreak   int64      `json:"current_streak"`
	LongestStreak   int64      `json:"longest_streak"`
	TotalRelapses   int        `json:"total_relapses"`
	StreakStartDate *time.Time `json:"streak_start_date,omitempty"`
	IsCurrentUser   bool       `json:"is_current_user"`
	Rank            int        `json:"rank"`
}

// Rankings is the body of GET /stats/rankings.
type Rankings struct {
	Rankings   []Ranking `json:"rankings"`
	TotalUsers int       `json:"total_users"`
}

// Session is one login session of the current user.
type Session struct {
	ID             string     `json:"id"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	LoginTime      time.Time  `json:"login_time"`
	LastActiveTime time.Time  `json:"last_active_time"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	IsCurrent      bool       `json:"is_current"`
}

// Relapse is one recorded relapse.
type Relapse struct {
	ID          string    `json:"_id"`
	User        string    `json:"user"`
	RelapseTime time.Time `json:"relapse_time"`
	RelapseNote *string   `json:"relapse_note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRelapse is the body of POST /relapses.
type NewRelapse struct {
	RelapseTime time.Time `json:"relapse_time"`
	RelapseNote string    `json:"relapse_note,omitempty"`
}

// Message is the body of endpoints that only confirm an action.
type Message struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}
