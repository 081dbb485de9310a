package model

import "time"

// Booking is a reservation of the gym for the half-open interval
// [StartTime, EndTime).  All instants are stored and returned in UTC.
//
// IsRecurring and RecurringParentID exist for recurrence grouping; the
// current creation paths always write false and nil.  ClientReference is
// a free-text label trainers attach to sessions held for a client.
type Booking struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurringParentID *string   `json:"recurring_parent_id"`
	ClientReference   *string   `json:"client_reference"`
	CreatedAt         time.Time `json:"created_at"`
}

// Started reports whether the booking has begun at instant now.
func (b Booking) Started(now time.Time) bool {
	return !b.StartTime.After(now)
}

// Ended reports whether the booking is over at instant now.
func (b Booking) Ended(now time.Time) bool {
	return !b.EndTime.After(now)
}

// BookingWithOwner is a booking joined with the owner attributes needed by
// the calendar (role colouring) and the admin listing (email and unit).
type BookingWithOwner struct {
	Booking
	OwnerEmail string  `json:"owner_email"`
	OwnerUnit  *string `json:"owner_unit"`
	OwnerRole  Role    `json:"owner_role"`
}
