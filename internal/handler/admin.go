package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/metrics"
	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/queue"
	"github.com/iliyamo/gym-booking/internal/repository"
)

// AdminHandler serves the override endpoints.  Routes must be guarded by
// RequireRole(model.RoleAdmin); no ownership filter is applied here.
type AdminHandler struct {
	Bookings BookingStore
	Profiles ProfileStore
	Hooks    Hooks
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewAdminHandler(bookings BookingStore, profiles ProfileStore, hooks Hooks, m *metrics.Metrics) *AdminHandler {
	if bookings == nil || profiles == nil {
		panic("nil store passed to NewAdminHandler")
	}
	return &AdminHandler{Bookings: bookings, Profiles: profiles, Hooks: hooks, Metrics: m, Now: time.Now}
}

// ListBookings handles GET /v1/admin/bookings: every booking, past and
// future, with owner email, unit and role.  Optional filters: email
// (substring), role, when (any|upcoming|active|past), page and page_size.
// Without page_size every match is returned.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	q := repository.BookingSearchQuery{
		Email: strings.TrimSpace(c.QueryParam("email")),
		When:  strings.ToLower(strings.TrimSpace(c.QueryParam("when"))),
		Now:   timeOrNow(h.Now),
		Page:  1,
	}
	switch q.When {
	case "":
		q.When = "any"
	case "any", "upcoming", "active", "past":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "when must be one of any, upcoming, active, past"})
	}
	if v := c.QueryParam("role"); v != "" {
		role, err := model.ParseRole(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		q.Role = role
	}
	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "page must be a positive integer"})
		}
		q.Page = n
	}
	if v := c.QueryParam("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "page_size must be a positive integer"})
		}
		q.PageSize = min(n, maxPageSize)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, total, err := h.Bookings.Search(ctx, q)
	if err != nil {
		return internalError(c, "admin", "Failed to fetch bookings", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bookings":  list,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

const maxPageSize = 100

// DeleteBooking handles DELETE /v1/admin/bookings/:id.  It ignores
// ownership and start time.
func (h *AdminHandler) DeleteBooking(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	b, err := h.Bookings.GetByID(ctx, id)
	if err == nil {
		err = h.Bookings.Delete(ctx, id)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Booking not found"})
	case err != nil:
		return internalError(c, "admin", "Failed to delete booking", err)
	}

	h.Metrics.BookingCancelled("admin")
	h.Hooks.changed(ctx, bookingEvent(queue.TypeBookingCancelled, b, middleware.UserID(c), middleware.CurrentRole(c)))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Booking deleted successfully"})
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, err := h.Profiles.List(ctx)
	if err != nil {
		return internalError(c, "admin", "Failed to fetch users", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": list})
}

type roleReq struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /v1/admin/users/:id/role.
func (h *AdminHandler) UpdateRole(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	p, err := h.Profiles.UpdateRole(ctx, id, role)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
	case err != nil:
		return internalError(c, "admin", "Failed to update role", err)
	}

	// Role changes affect calendar kinds, so cached calendars are dropped.
	h.Hooks.changed(ctx, queue.BookingEvent{
		Type:       queue.TypeProfileRoleChanged,
		UserID:     p.ID,
		ActorID:    middleware.UserID(c),
		ActorRole:  string(middleware.CurrentRole(c)),
		NewRole:    string(p.Role),
		OccurredAt: time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, echo.Map{"user": p})
}
