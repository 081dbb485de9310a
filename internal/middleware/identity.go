package middleware

// identity.go holds the accessors handlers use to read who is calling.
// JWTAuth stores the subject, LoadProfile the profile and its role.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/model"
)

// UserID returns the authenticated identity ID, or "" when there is none.
func UserID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok {
		return s
	}
	return ""
}

// CurrentProfile returns the caller's profile as loaded by LoadProfile.
func CurrentProfile(c echo.Context) (model.Profile, bool) {
	p, ok := c.Get("profile").(model.Profile)
	return p, ok
}

// CurrentRole returns the caller's role as loaded by LoadProfile.
func CurrentRole(c echo.Context) model.Role {
	r, _ := c.Get("role").(model.Role)
	return r
}

// rateSubject is the caller identity used in rate-limit keys.
func rateSubject(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
