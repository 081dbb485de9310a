package booking

import (
	"context"
	"time"

	"github.com/iliyamo/gym-booking/internal/model"
)

// Snapshot is the in-memory Source: it evaluates the availability rules
// against bookings the caller already holds.  The repository reads through
// the database instead; in-memory stores used in tests hand their contents
// to the rules as a Snapshot.
type Snapshot []model.Booking

func (s Snapshot) HasOverlap(_ context.Context, start, end time.Time) (bool, error) {
	for _, b := range s {
		if Overlaps(b.StartTime, b.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (s Snapshot) CountUserBookingsBetween(_ context.Context, userID string, from, to time.Time) (int, error) {
	n := 0
	for _, b := range s {
		if b.UserID == userID && !b.StartTime.Before(from) && b.StartTime.Before(to) {
			n++
		}
	}
	return n, nil
}
