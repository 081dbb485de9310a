package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/repository"
)

// ProfileGetter loads a profile by identity ID.
type ProfileGetter interface {
	GetByID(ctx context.Context, id string) (model.Profile, error)
}

// LoadProfile reads the caller's profile on every request so that role
// changes take effect without re-issuing tokens.  It must run after
// JWTAuth.
func LoadProfile(profiles ProfileGetter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := UserID(c)
			if uid == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			p, err := profiles.GetByID(ctx, uid)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
			}
			if err != nil {
				log.Printf("[auth] load profile %s: %v", uid, err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
			}
			if !p.Role.Valid() {
				log.Printf("[auth] profile %s has unknown role %q", uid, p.Role)
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden"})
			}
			c.Set("profile", p)
			c.Set("role", p.Role)
			return next(c)
		}
	}
}

// RequireRole aborts with 403 unless the role loaded by LoadProfile is one
// of roles.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[CurrentRole(c)] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden"})
			}
			return next(c)
		}
	}
}
