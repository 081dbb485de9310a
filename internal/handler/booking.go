package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/booking"
	"github.com/iliyamo/gym-booking/internal/metrics"
	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/queue"
	"github.com/iliyamo/gym-booking/internal/repository"
)

// maxClientReference is the longest label a trainer may attach.
const maxClientReference = 120

// BookingHandler serves the booking endpoints for every signed-in role.
// It assumes JWTAuth and LoadProfile have run.
type BookingHandler struct {
	Bookings BookingStore
	Policy   booking.Policy
	Hooks    Hooks
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewBookingHandler(store BookingStore, policy booking.Policy, hooks Hooks, m *metrics.Metrics) *BookingHandler {
	if store == nil {
		panic("nil booking store passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: store, Policy: policy, Hooks: hooks, Metrics: m, Now: time.Now}
}

type createBookingReq struct {
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	ClientReference *string `json:"client_reference"`
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, role := middleware.UserID(c), middleware.CurrentRole(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.StartTime == "" || req.EndTime == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time and end_time are required"})
	}
	start, err1 := time.Parse(time.RFC3339, req.StartTime)
	end, err2 := time.Parse(time.RFC3339, req.EndTime)
	if err1 != nil || err2 != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time and end_time must be RFC 3339 timestamps"})
	}
	ref, err := clientReference(req.ClientReference, role)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	cand := booking.Candidate{UserID: uid, Role: role, Start: start, End: end}
	acc, err := h.Policy.CheckStatic(cand, timeOrNow(h.Now))
	if err != nil {
		if rj, ok := asRejection(err); ok {
			h.Metrics.BookingRejected(string(rj.Rule))
			return rejection(c, rj)
		}
		return internalError(c, "booking", "Failed to create booking", err)
	}

	b := model.Booking{UserID: uid, StartTime: acc.Start, EndTime: acc.End, ClientReference: ref}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	err = h.Bookings.CreateChecked(ctx, &b, func(ctx context.Context, src booking.Source) error {
		return h.Policy.CheckAvailability(ctx, src, cand)
	})
	if err != nil {
		if rj, ok := asRejection(err); ok {
			h.Metrics.BookingRejected(string(rj.Rule))
			return rejection(c, rj)
		}
		return internalError(c, "booking", "Failed to create booking", err)
	}

	h.Metrics.BookingCreated(string(role))
	h.Hooks.changed(ctx, bookingEvent(queue.TypeBookingCreated, b, uid, role))
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"booking": b,
		"message": "Booking created successfully",
	})
}

// clientReference validates the optional label.  Only roles that may book
// on behalf of clients may set it.
func clientReference(raw *string, role model.Role) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil, nil
	}
	if !role.CanLabelBookings() {
		return nil, errors.New("client_reference can only be set by trainers and admins")
	}
	if utf8.RuneCountInString(v) > maxClientReference {
		return nil, errors.New("client_reference must be at most 120 characters")
	}
	return &v, nil
}

// Calendar entry kinds.
const (
	KindOwn      = "own-booking"
	KindTrainer  = "trainer-slot"
	KindOccupied = "booked-by-others"
)

type calendarEntry struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	OwnerRole       model.Role `json:"owner_role"`
	IsOwn           bool       `json:"is_own"`
	Kind            string     `json:"kind"`
	ClientReference *string    `json:"client_reference,omitempty"`
	OwnerEmail      string     `json:"owner_email,omitempty"`
	OwnerUnit       *string    `json:"owner_unit,omitempty"`
}

// List handles GET /v1/bookings?start=&end=.  Other people's contact
// details are only shown to admins.
func (h *BookingHandler) List(c echo.Context) error {
	uid, role := middleware.UserID(c), middleware.CurrentRole(c)
	from, err := optionalTime(c.QueryParam("start"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start must be an RFC 3339 timestamp"})
	}
	to, err := optionalTime(c.QueryParam("end"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "end must be an RFC 3339 timestamp"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	rows, err := h.Bookings.ListRange(ctx, from, to)
	if err != nil {
		return internalError(c, "booking", "Failed to fetch bookings", err)
	}

	out := make([]calendarEntry, 0, len(rows))
	for _, r := range rows {
		e := calendarEntry{
			ID:        r.ID,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			OwnerRole: r.OwnerRole,
			IsOwn:     r.UserID == uid,
		}
		switch {
		case e.IsOwn:
			e.Kind = KindOwn
		case r.OwnerRole == model.RoleTrainer:
			e.Kind = KindTrainer
		default:
			e.Kind = KindOccupied
		}
		if e.IsOwn || role == model.RoleAdmin {
			e.ClientReference = r.ClientReference
			e.OwnerEmail = r.OwnerEmail
			e.OwnerUnit = r.OwnerUnit
		}
		out = append(out, e)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Mine handles GET /v1/my-bookings.
func (h *BookingHandler) Mine(c echo.Context) error {
	uid := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, err := h.Bookings.ListUpcomingByUser(ctx, uid, timeOrNow(h.Now))
	if err != nil {
		return internalError(c, "booking", "Failed to fetch bookings", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Cancel handles DELETE /v1/bookings/:id for the booking's owner.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, role := middleware.UserID(c), middleware.CurrentRole(c)
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	b, err := h.Bookings.DeleteOwned(ctx, id, uid, timeOrNow(h.Now))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Booking not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "You can only cancel your own bookings"})
	case errors.Is(err, repository.ErrAlreadyStarted):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Cannot cancel a booking that has already started"})
	case err != nil:
		return internalError(c, "booking", "Failed to cancel booking", err)
	}

	h.Metrics.BookingCancelled("owner")
	h.Hooks.changed(ctx, bookingEvent(queue.TypeBookingCancelled, b, uid, role))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Booking cancelled successfully"})
}

type validateReq struct {
	StartTime string `json:"start_time"`
}

// Validate handles POST /v1/bookings/validate, the dry run clients call
// before choosing an end time.  The caller's own role applies.
func (h *BookingHandler) Validate(c echo.Context) error {
	var req validateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": "invalid request body"})
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": "start_time must be an RFC 3339 timestamp"})
	}
	if err := h.Policy.Precheck(start, middleware.CurrentRole(c), timeOrNow(h.Now)); err != nil {
		if rj, ok := asRejection(err); ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": rj.Message, "rule": rj.Rule})
		}
		return internalError(c, "booking", "Validation failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

func bookingEvent(typ string, b model.Booking, actorID string, actorRole model.Role) queue.BookingEvent {
	ev := queue.BookingEvent{
		Type:       typ,
		BookingID:  b.ID,
		UserID:     b.UserID,
		ActorID:    actorID,
		ActorRole:  string(actorRole),
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		OccurredAt: time.Now().UTC(),
	}
	if b.ClientReference != nil {
		ev.ClientReference = *b.ClientReference
	}
	return ev
}
