package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/handler"
	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc, metrics http.Handler) {
	e.GET("/healthz", health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers the session endpoints under /v1/auth.  None of
// them require an existing access token; logout reads one if present.  mw
// runs before every route, typically an IP-keyed rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", mw...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
}

// Member carries what the authenticated groups need: the secret to verify
// access tokens, the profile lookup that resolves roles, the rate limiter
// and the calendar cache middleware.  Nil middlewares are skipped.
type Member struct {
	JWTSecret string
	Profiles  middleware.ProfileGetter
	RateLimit echo.MiddlewareFunc // runs once the caller is known
	Calendar  echo.MiddlewareFunc
}

func (m Member) group(e *echo.Echo, prefix string, extra ...echo.MiddlewareFunc) *echo.Group {
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(m.JWTSecret),
		middleware.LoadProfile(m.Profiles),
	}
	if m.RateLimit != nil {
		mw = append(mw, m.RateLimit)
	}
	return e.Group(prefix, append(mw, extra...)...)
}

// RegisterBookings registers the endpoints open to every role.
func RegisterBookings(e *echo.Echo, m Member, b *handler.BookingHandler, p *handler.ProfileHandler) {
	g := m.group(e, "/v1", middleware.RequireRole(model.Roles...))

	var calendar []echo.MiddlewareFunc
	if m.Calendar != nil {
		calendar = append(calendar, m.Calendar)
	}
	g.GET("/bookings", b.List, calendar...)
	g.POST("/bookings", b.Create)
	g.POST("/bookings/validate", b.Validate)
	g.DELETE("/bookings/:id", b.Cancel)
	g.GET("/my-bookings", b.Mine)

	g.GET("/me", p.Me)
	g.PATCH("/me", p.UpdateMe)
}

// RegisterAdmin registers the override endpoints.  Every route requires
// the admin role.
func RegisterAdmin(e *echo.Echo, m Member, a *handler.AdminHandler) {
	g := m.group(e, "/v1/admin", middleware.RequireRole(model.RoleAdmin))
	g.GET("/bookings", a.ListBookings)
	g.DELETE("/bookings/:id", a.DeleteBooking)
	g.GET("/users", a.ListUsers)
	g.PATCH("/users/:id/role", a.UpdateRole)
}
