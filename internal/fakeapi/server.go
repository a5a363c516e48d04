// Package fakeapi is an in-process stand-in for the Continuum backend, used by
// tests. It issues predictable tokens: login hands out access-1/refresh-1/
// session-1 and every refresh bumps the number (access-2/refresh-2, ...).
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Recorded is one request seen by the server.
type Recorded struct {
	Method string
	Path   string
	Header http.Header
}

// Account is a user the server knows.
type Account struct {
	ID           string
	Username     string
	Password     string
	Nickname     string
	Role         string
	LanguagePref string
	LockedUntil  time.Time
}

// Server is the fake backend. Exported fields may be changed between requests
// while holding no lock; tests set them before traffic starts.
type Server struct {
	*httptest.Server
	Mux *http.ServeMux

	// BeforeRefresh runs inside the refresh handler before it answers.
	BeforeRefresh func()
	// RefreshStatus, when non-zero, makes every refresh fail with it.
	RefreshStatus int
	// RefreshOmitsAccess makes refresh answer 200 without an access token.
	RefreshOmitsAccess bool
	// FixedRefresh stops refresh from rotating the refresh token.
	FixedRefresh bool
	// MeStatus and StatsStatus, when non-zero, fail those endpoints.
	MeStatus    int
	StatsStatus int
	// LoginSoftFail answers login with 200 {ok:false}.
	LoginSoftFail bool
	// LogoutStatus, when non-zero, fails logout.
	LogoutStatus int

	mu        sync.Mutex
	accounts  map[string]*Account
	access    string
	refresh   string
	session   string
	issued    int
	requests  []Recorded
	relapses  []map[string]any
	revoked   []string
	languages map[string]string
}

// New starts a Server with one account, alice/secret.
func New() *Server {
	s := &Server{
		Mux: http.NewServeMux(),
		accounts: map[string]*Account{
			"alice": {
				ID:           "64b000000000000000000001",
				Username:     "alice",
				Password:     "secret",
				Nickname:     "Alice",
				Role:         "user",
				LanguagePref: "en",
			},
		},
		languages: make(map[string]string),
	}

	s.Mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.Mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	s.Mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.Mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.Mux.HandleFunc("GET /api/users/me", s.authed(s.handleMe))
	s.Mux.HandleFunc("PUT /api/users/language", s.authed(s.handleLanguage))
	s.Mux.HandleFunc("POST /api/users/start-streak", s.authed(s.handleOK))
	s.Mux.HandleFunc("GET /api/users/sessions", s.authed(s.handleSessions))
	s.Mux.HandleFunc("DELETE /api/users/sessions/{id}", s.authed(s.handleRevoke))
	s.Mux.HandleFunc("GET /api/stats", s.authed(s.handleStats))
	s.Mux.HandleFunc("GET /api/stats/rankings", s.authed(s.handleRankings))
	s.Mux.HandleFunc("GET /api/relapses", s.authed(s.handleRelapses))
	s.Mux.HandleFunc("POST /api/relapses", s.authed(s.handleAddRelapse))
	s.Mux.HandleFunc("DELETE /api/relapses/{id}", s.authed(s.handleOK))
	// Always rejects, whatever the credentials.
	s.Mux.HandleFunc("GET /api/admin/dashboard", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "msg": "Admin only"})
	})

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.Mux.ServeHTTP(w, r)
	}))
	return s
}

// BaseURL is the API root to hand to clients.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// AddAccount registers another user.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Username] = &a
}

// SetTokens makes the server accept exactly these credentials.
func (s *Server) SetTokens(access, refresh, session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh, s.session = access, refresh, session
}

// ExpireAccess invalidates the current access token.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
}

// Tokens returns the credentials the server currently accepts.
func (s *Server) Tokens() (access, refresh, session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh, s.session
}

// Requests returns every request seen for path (e.g. "/api/stats").
func (s *Server) Requests(path string) []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Recorded
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests were seen for path.
func (s *Server) Count(path string) int {
	return len(s.Requests(path))
}

// Revoked returns the session IDs revoked so far.
func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "msg": msg})
}

// authed rejects requests whose bearer and session tokens are not current.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		session := r.Header.Get("X-Session-Token")

		s.mu.Lock()
		ok := s.access != "" && bearer == s.access && session == s.session
		s.mu.Unlock()

		if !ok {
			fail(w, http.StatusUnauthorized, "Token tidak valid")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[req.Username]
	switch {
	case s.LoginSoftFail:
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "msg": "Login disabled"})
		return
	case ok && time.Now().Before(account.LockedUntil):
		writeJSON(w, http.StatusLocked, map[string]any{
			"ok":  false,
			"msg": "Akun Anda sedang dikunci.",
			"lockout": map[string]any{
				"type":  "user",
				"until": account.LockedUntil,
			},
		})
		return
	case !ok || account.Password != req.Password:
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"ok":                false,
			"msg":               "Username atau password salah",
			"attemptsRemaining": 2,
		})
		return
	}

	s.issued = 1
	s.access = "access-1"
	s.refresh = "refresh-1"
	s.session = "session-1"

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"msg":           "Login berhasil",
		"access_token":  s.access,
		"refresh_token": s.refresh,
		"session_token": s.session,
		"user": map[string]any{
			"id":            account.ID,
			"username":      account.Username,
			"role":          account.Role,
			"language_pref": account.LanguagePref,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.BeforeRefresh != nil {
		s.BeforeRefresh()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RefreshStatus != 0 {
		fail(w, s.RefreshStatus, "Refresh token tidak valid")
		return
	}
	if token := r.Header.Get("X-Refresh-Token"); token == "" || token != s.refresh {
		fail(w, http.StatusUnauthorized, "Refresh token tidak valid")
		return
	}
	if s.RefreshOmitsAccess {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	s.issued++
	s.access = fmt.Sprintf("access-%d", s.issued)
	body := map[string]any{"ok": true, "access_token": s.access}
	if !s.FixedRefresh {
		s.refresh = fmt.Sprintf("refresh-%d", s.issued)
		body["refresh_token"] = s.refresh
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if s.LogoutStatus != 0 {
		fail(w, s.LogoutStatus, "Logout failed")
		return
	}

	s.mu.Lock()
	s.access, s.refresh, s.session = "", "", ""
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "Logout berhasil"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[req.Username]; exists {
		fail(w, http.StatusConflict, "Username sudah digunakan.")
		return
	}
	if req.Username == "blocked" {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"ok":  false,
			"msg": "Terlalu banyak registrasi dari IP ini.",
			"lockout": map[string]any{
				"type":  "ip",
				"until": time.Now().Add(24 * time.Hour),
			},
		})
		return
	}

	s.accounts[req.Username] = &Account{
		ID:       fmt.Sprintf("64b0000000000000000000%02d", len(s.accounts)+1),
		Username: req.Username,
		Password: req.Password,
		Nickname: req.Nickname,
		Role:     "user",
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "Registrasi berhasil!"})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	if s.MeStatus != 0 {
		fail(w, s.MeStatus, "Gagal memuat data pengguna")
		return
	}

	s.mu.Lock()
	account := s.accounts["alice"]
	lang := account.LanguagePref
	if override, ok := s.languages[account.Username]; ok {
		lang = override
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"_id":             account.ID,
		"nickname":        account.Nickname,
		"username":        account.Username,
		"role":            account.Role,
		"language_pref":   lang,
		"profile_picture": "",
		"created_at":      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
		fail(w, http.StatusBadRequest, "Bahasa tidak valid")
		return
	}

	s.mu.Lock()
	s.languages["alice"] = req.Language
	s.mu.Unlock()

	s.handleMe(w, r)
}

func (s *Server) handleOK(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "OK"})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	login := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": []map[string]any{
			{
				"id":               "sess-current",
				"ip_address":       "127.0.0.1",
				"user_agent":       "continuum-cli",
				"login_time":       login,
				"last_active_time": login.Add(time.Hour),
				"is_current":       true,
			},
			{
				"id":               "sess-phone",
				"ip_address":       "10.0.0.7",
				"user_agent":       "Mozilla/5.0",
				"login_time":       login.Add(-48 * time.Hour),
				"last_active_time": login.Add(-24 * time.Hour),
				"is_current":       false,
			},
		},
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.revoked = append(s.revoked, r.PathValue("id"))
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "Sesi berhasil diakhiri."})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.StatsStatus != 0 {
		fail(w, s.StatsStatus, "Failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currentStreak": 86400,
		"longestStreak": 172800,
		"relapse_dates": []string{"2024-04-30"},
		"streakStarted": true,
	})
}

func (s *Server) handleRankings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rankings": []map[string]any{
			{"username": "bob", "nickname": "Bob", "current_streak": 259200, "longest_streak": 259200, "rank": 1},
			{"username": "alice", "nickname": "Alice", "current_streak": 86400, "longest_streak": 172800, "rank": 2, "is_current_user": true},
		},
		"total_users": 2,
	})
}

func (s *Server) handleRelapses(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	relapses := append([]map[string]any{}, s.relapses...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, relapses)
}

func (s *Server) handleAddRelapse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RelapseTime time.Time `json:"relapse_time"`
		RelapseNote string    `json:"relapse_note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RelapseTime.IsZero() {
		fail(w, http.StatusBadRequest, "Waktu relapse wajib diisi.")
		return
	}

	s.mu.Lock()
	relapse := map[string]any{
		"_id":          fmt.Sprintf("rel-%d", len(s.relapses)+1),
		"user":         s.accounts["alice"].ID,
		"relapse_time": req.RelapseTime,
		"createdAt":    req.RelapseTime,
	}
	if req.RelapseNote != "" {
		relapse["relapse_note"] = req.RelapseNote
	}
	s.relapses = append(s.relapses, relapse)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"relapse": relapse})
}
