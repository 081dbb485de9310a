// Package booking holds the rules that decide whether a proposed gym
// reservation is acceptable.  The rules are evaluated in a fixed order and
// the first failure wins: the cheap, role-independent checks run first and
// the two checks that need to read existing bookings run last, so a request
// rejected early never costs a store round trip.
//
// Nothing in this package performs I/O on its own.  Callers supply the
// current instant and a Source through which existing bookings are read.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/gym-booking/internal/model"
)

// Rule identifies a single check.  The identifier is returned to clients
// alongside the human-readable message.
type Rule string

const (
	RulePast       Rule = "past"
	RuleOrder      Rule = "order"
	RuleAlignment  Rule = "alignment"
	RuleDuration   Rule = "duration"
	RuleHorizon    Rule = "horizon"
	RuleHours      Rule = "hours"
	RuleOverlap    Rule = "overlap"
	RuleDailyCap   Rule = "daily_cap"
	RuleMaxAdvance Rule = "max_advance" // dry-run only
)

// Rejection is returned when a candidate fails a rule.
type Rejection struct {
	Rule    Rule
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// Conflict reports whether the rejection is caused by other bookings
// rather than by the request itself.  Conflicts are resolved by picking a
// different slot; every other rejection by correcting the input.
func (r *Rejection) Conflict() bool {
	return r.Rule == RuleOverlap || r.Rule == RuleDailyCap
}

func reject(rule Rule, format string, args ...any) *Rejection {
	return &Rejection{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Source gives the rules read access to existing bookings.
type Source interface {
	// HasOverlap reports whether any booking satisfies
	// b.start < end && b.end > start, regardless of owner.
	HasOverlap(ctx context.Context, start, end time.Time) (bool, error)
	// CountUserBookingsBetween counts userID's bookings whose start lies in
	// [from, to).
	CountUserBookingsBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// Candidate is a proposed reservation together with who is asking.
type Candidate struct {
	UserID string
	Role   model.Role
	Start  time.Time
	End    time.Time
}

// Accepted carries the normalized interval of a candidate that passed.
type Accepted struct {
	Start time.Time
	End   time.Time
}

// Policy holds the facility parameters the rules are evaluated against.
type Policy struct {
	Location        *time.Location // facility local time, used for hours and calendar days
	OpenHour        int            // first bookable hour
	CloseHour       int            // bookings must end at or before this hour
	SlotMinutes     int            // start and end must be multiples of this many minutes
	MaxDuration     time.Duration  // longest single booking
	NeighborHorizon time.Duration
	TrainerHorizon  time.Duration
	PrecheckDays    int // dry-run neighbor horizon in calendar days
	MaxAdvanceDays  int // dry-run absolute horizon in calendar days
}

// DefaultPolicy returns the gym's rules: open 06:00 to 22:00 in loc,
// half-hour slots, at most 90 minutes, neighbors 7 days ahead and
// trainers 28 days ahead.  A nil loc means UTC.
func DefaultPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{
		Location:        loc,
		OpenHour:        6,
		CloseHour:       22,
		SlotMinutes:     30,
		MaxDuration:     90 * time.Minute,
		NeighborHorizon: 7 * 24 * time.Hour,
		TrainerHorizon:  28 * 24 * time.Hour,
		PrecheckDays:    7,
		MaxAdvanceDays:  365,
	}
}

// horizon returns how far ahead role may book.  ok is false for roles
// without a limit.
func (p Policy) horizon(role model.Role) (limit time.Duration, ok bool, err error) {
	switch role {
	case model.RoleNeighbor:
		return p.NeighborHorizon, true, nil
	case model.RoleTrainer:
		return p.TrainerHorizon, true, nil
	case model.RoleAdmin:
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("booking: unknown role %q", role)
}

// Check runs every rule in order against c.  Rules 1 to 6 never touch src.
func (p Policy) Check(ctx context.Context, src Source, c Candidate, now time.Time) (Accepted, error) {
	acc, err := p.CheckStatic(c, now)
	if err != nil {
		return Accepted{}, err
	}
	if err := p.CheckAvailability(ctx, src, c); err != nil {
		return Accepted{}, err
	}
	return acc, nil
}

// CheckStatic runs the rules that only depend on the request, the role and
// the clock: past, order, alignment, duration, horizon and hours.
func (p Policy) CheckStatic(c Candidate, now time.Time) (Accepted, error) {
	start, end := c.Start, c.End

	if start.Before(now) {
		return Accepted{}, reject(RulePast, "Cannot book time slots in the past")
	}
	if !start.Before(end) {
		return Accepted{}, reject(RuleOrder, "Start time must be before end time")
	}
	if !p.aligned(start) || !p.aligned(end) {
		return Accepted{}, reject(RuleAlignment,
			"Bookings must start and end on the hour (:00) or half-hour (:%02d)", p.SlotMinutes)
	}
	if end.Sub(start) > p.MaxDuration {
		return Accepted{}, reject(RuleDuration,
			"Booking duration cannot exceed %d minutes", int(p.MaxDuration/time.Minute))
	}

	limit, bounded, err := p.horizon(c.Role)
	if err != nil {
		return Accepted{}, err
	}
	if bounded && start.After(now.Add(limit)) {
		return Accepted{}, reject(RuleHorizon, "%ss can only book up to %d days in advance",
			capitalize(string(c.Role)), int(limit/(24*time.Hour)))
	}

	local := start.In(p.loc())
	open := time.Date(local.Year(), local.Month(), local.Day(), p.OpenHour, 0, 0, 0, p.loc())
	closing := time.Date(local.Year(), local.Month(), local.Day(), p.CloseHour, 0, 0, 0, p.loc())
	if start.Before(open) || end.After(closing) {
		return Accepted{}, reject(RuleHours, "Gym is only open from %02d:00 to %02d:00", p.OpenHour, p.CloseHour)
	}

	return Accepted{Start: start.UTC(), End: end.UTC()}, nil
}

// CheckAvailability runs the two rules that read existing bookings: the
// facility-wide overlap check and, for neighbors, the one-booking-per-day
// cap.  Errors from src are returned wrapped and are not rejections.
func (p Policy) CheckAvailability(ctx context.Context, src Source, c Candidate) error {
	busy, err := src.HasOverlap(ctx, c.Start.UTC(), c.End.UTC())
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if busy {
		return reject(RuleOverlap, "This time slot is already booked")
	}

	if c.Role != model.RoleNeighbor {
		return nil
	}
	from, to := p.DayBounds(c.Start)
	n, err := src.CountUserBookingsBetween(ctx, c.UserID, from, to)
	if err != nil {
		return fmt.Errorf("check daily cap: %w", err)
	}
	if n > 0 {
		return reject(RuleDailyCap, "You already have a booking on this day. Neighbors can only book once per day.")
	}
	return nil
}

// Precheck is the lightweight dry run offered to clients before they pick
// an end time.  It works in whole calendar days: start may not fall before
// today, neighbors may not go past the end of today+PrecheckDays, and
// nobody may go past the end of today+MaxAdvanceDays.
func (p Policy) Precheck(start time.Time, role model.Role, now time.Time) error {
	today, _ := p.DayBounds(now)
	if start.Before(today) {
		return reject(RulePast, "Cannot book time slots in the past")
	}
	if role == model.RoleNeighbor && !start.Before(today.AddDate(0, 0, p.PrecheckDays+1)) {
		return reject(RuleHorizon, "Neighbors can only book up to %d days in advance", p.PrecheckDays)
	}
	if !start.Before(today.AddDate(0, 0, p.MaxAdvanceDays+1)) {
		return reject(RuleMaxAdvance, "Booking date is too far in the future")
	}
	return nil
}

// DayBounds returns local midnight of t's facility calendar day and the
// following midnight.
func (p Policy) DayBounds(t time.Time) (time.Time, time.Time) {
	l := t.In(p.loc())
	from := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, p.loc())
	return from, from.AddDate(0, 0, 1)
}

func (p Policy) aligned(t time.Time) bool {
	l := t.In(p.loc())
	return l.Minute()%p.SlotMinutes == 0 && l.Second() == 0 && l.Nanosecond() == 0
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
