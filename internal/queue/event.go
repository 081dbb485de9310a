// Package queue defines the booking event payload and the consumer that
// records events to a log file.
package queue

import (
	"fmt"
	"time"
)

// QueueName is the durable RabbitMQ queue booking events are sent to.
const QueueName = "booking.events"

// Event types.
const (
	TypeBookingCreated     = "booking.created"
	TypeBookingCancelled   = "booking.cancelled"
	TypeProfileRoleChanged = "profile.role_changed"
)

// BookingEvent is published after a booking or role mutation commits.  It
// carries enough for downstream consumers to log or notify without
// querying the primary database.
type BookingEvent struct {
	Type            string    `json:"type"`
	BookingID       string    `json:"booking_id,omitempty"`
	UserID          string    `json:"user_id"`
	ActorID         string    `json:"actor_id"`
	ActorRole       string    `json:"actor_role"`
	StartTime       time.Time `json:"start_time,omitzero"`
	EndTime         time.Time `json:"end_time,omitzero"`
	ClientReference string    `json:"client_reference,omitempty"`
	NewRole         string    `json:"new_role,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Line renders ev as a single human-readable log line.
func (ev BookingEvent) Line() string {
	ts := ev.OccurredAt.UTC().Format(time.RFC3339)
	switch ev.Type {
	case TypeProfileRoleChanged:
		return fmt.Sprintf("[%s] Role changed | user_id=%s | new_role=%s | by=%s (%s)\n",
			ts, ev.UserID, ev.NewRole, ev.ActorID, ev.ActorRole)
	case TypeBookingCreated, TypeBookingCancelled:
		verb := "Booking created"
		if ev.Type == TypeBookingCancelled {
			verb = "Booking cancelled"
		}
		line := fmt.Sprintf("[%s] %s | booking_id=%s | user_id=%s | slot=%s/%s | by=%s (%s)",
			ts, verb, ev.BookingID, ev.UserID,
			ev.StartTime.UTC().Format(time.RFC3339), ev.EndTime.UTC().Format(time.RFC3339),
			ev.ActorID, ev.ActorRole)
		if ev.ClientReference != "" {
			line += fmt.Sprintf(" | client=%q", ev.ClientReference)
		}
		return line + "\n"
	}
	return fmt.Sprintf("[%s] Unknown event %q | user_id=%s\n", ts, ev.Type, ev.UserID)
}
