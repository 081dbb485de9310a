package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/booking"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/queue"
	"github.com/iliyamo/gym-booking/internal/repository"
)

// dbTimeout bounds the store work of a single request.
const dbTimeout = 5 * time.Second

// BookingStore is the subset of *repository.BookingRepo the handlers use.
type BookingStore interface {
	CreateChecked(ctx context.Context, b *model.Booking, check repository.CheckFunc) error
	GetByID(ctx context.Context, id string) (model.Booking, error)
	ListRange(ctx context.Context, from, to *time.Time) ([]model.BookingWithOwner, error)
	Search(ctx context.Context, q repository.BookingSearchQuery) ([]model.BookingWithOwner, int64, error)
	ListUpcomingByUser(ctx context.Context, userID string, now time.Time) ([]model.Booking, error)
	DeleteOwned(ctx context.Context, id, ownerID string, now time.Time) (model.Booking, error)
	Delete(ctx context.Context, id string) error
}

// ProfileStore is the subset of *repository.ProfileRepo the handlers use.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (model.Profile, error)
	List(ctx context.Context) ([]model.Profile, error)
	UpdateRole(ctx context.Context, id string, role model.Role) (model.Profile, error)
	UpdateDetails(ctx context.Context, id string, u repository.ProfileUpdate) (model.Profile, error)
}

// Events receives domain events after a mutation commits.
type Events interface {
	Emit(ev queue.BookingEvent)
}

// CacheInvalidator drops cached calendar responses.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Hooks bundles the side effects that follow a successful mutation.  Nil
// fields are skipped.
type Hooks struct {
	Events Events
	Cache  CacheInvalidator
}

func (h Hooks) changed(ctx context.Context, ev queue.BookingEvent) {
	if h.Cache != nil {
		if err := h.Cache.Bump(context.WithoutCancel(ctx)); err != nil {
			log.Printf("cache: bump generation: %v", err)
		}
	}
	if h.Events != nil {
		h.Events.Emit(ev)
	}
}

// rejection writes a rule failure: 409 for conflicts with other bookings,
// 400 for everything else.
func rejection(c echo.Context, rj *booking.Rejection) error {
	status := http.StatusBadRequest
	if rj.Conflict() {
		status = http.StatusConflict
	}
	return c.JSON(status, echo.Map{"error": rj.Message, "rule": rj.Rule})
}

// internalError logs err under prefix and writes a generic 500.
func internalError(c echo.Context, prefix, msg string, err error) error {
	log.Printf("%s: %s: %v", prefix, msg, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
}

func asRejection(err error) (*booking.Rejection, bool) {
	var rj *booking.Rejection
	ok := errors.As(err, &rj)
	return rj, ok
}

func timeOrNow(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}
