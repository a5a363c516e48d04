package credentials

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when the access token carries no exp claim.
var ErrNoExpiry = errors.New("access token has no expiry")

// AccessExpiry reads the exp claim of the current access token. The token is
// not verified; the result is only good for display.
func (m *Manager) AccessExpiry() (time.Time, error) {
	return TokenExpiry(m.AccessToken())
}

// TokenExpiry reads the exp claim of an unverified JWT.
func TokenExpiry(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("no access token")
	}

	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
