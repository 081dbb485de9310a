package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/gym-booking/internal/booking"
	"github.com/iliyamo/gym-booking/internal/database"
	"github.com/iliyamo/gym-booking/internal/model"
)

// BookingRepo provides data access to the bookings table.  All timestamps
// are written and returned in UTC.
type BookingRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB, d database.Dialect) *BookingRepo { return &BookingRepo{db: db, d: d} }

// CheckFunc runs the availability rules against a read view of the
// bookings table.  A non-nil error aborts the insert.
type CheckFunc func(ctx context.Context, src booking.Source) error

// CreateChecked inserts b if check passes.  The check and the insert run
// in one transaction that first locks the booking_guard row, so two
// requests for overlapping slots cannot both pass the overlap check.  On
// success b.ID and b.CreatedAt are populated.
func (r *BookingRepo) CreateChecked(ctx context.Context, b *model.Booking, check CheckFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// The lock is a locking read, so on InnoDB the transaction's snapshot
	// is only taken by the first plain SELECT inside check, after the lock
	// is held; it therefore sees every booking committed by earlier holders.
	var guard int
	if err := tx.QueryRowContext(ctx, "SELECT id FROM booking_guard WHERE id = 1 FOR UPDATE").Scan(&guard); err != nil {
		return fmt.Errorf("lock booking guard: %w", err)
	}

	if err := check(ctx, txSource{q: tx, d: r.d}); err != nil {
		return err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	b.CreatedAt = time.Now().UTC()
	const ins = `INSERT INTO bookings (id, user_id, start_time, end_time, is_recurring, recurring_parent_id, client_reference, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, r.d.Rebind(ins),
		b.ID, b.UserID, b.StartTime, b.EndTime, b.IsRecurring, b.RecurringParentID, b.ClientReference, b.CreatedAt,
	); err != nil {
		if isExclusionViolation(err) {
			return &booking.Rejection{Rule: booking.RuleOverlap, Message: "This time slot is already booked"}
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

const bookingColumns = "b.id, b.user_id, b.start_time, b.end_time, b.is_recurring, b.recurring_parent_id, b.client_reference, b.created_at"

// bookingTargets returns scan destinations for bookingColumns and a
// finisher that copies nullable columns into b.
func bookingTargets(b *model.Booking) ([]any, func()) {
	var parent, ref sql.NullString
	targets := []any{&b.ID, &b.UserID, &b.StartTime, &b.EndTime, &b.IsRecurring, &parent, &ref, &b.CreatedAt}
	return targets, func() {
		if parent.Valid {
			v := parent.String
			b.RecurringParentID = &v
		}
		if ref.Valid {
			v := ref.String
			b.ClientReference = &v
		}
		b.StartTime = b.StartTime.UTC()
		b.EndTime = b.EndTime.UTC()
		b.CreatedAt = b.CreatedAt.UTC()
	}
}

// GetByID returns a single booking or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	targets, finish := bookingTargets(&b)
	err := r.db.QueryRowContext(ctx, r.d.Rebind("SELECT "+bookingColumns+" FROM bookings b WHERE b.id = ?"), id).Scan(targets...)
	if err != nil {
		return model.Booking{}, notFound(err)
	}
	finish()
	return b, nil
}

// ListRange returns bookings with start_time >= from and end_time <= to,
// ordered by start time and joined with their owner.  Nil bounds are
// open.
func (r *BookingRepo) ListRange(ctx context.Context, from, to *time.Time) ([]model.BookingWithOwner, error) {
	q := "SELECT " + bookingColumns + ", p.email, p.unit, p.role FROM bookings b JOIN profiles p ON p.id = b.user_id"
	var (
		where []string
		args  []any
	)
	if from != nil {
		where = append(where, "b.start_time >= ?")
		args = append(args, from.UTC())
	}
	if to != nil {
		where = append(where, "b.end_time <= ?")
		args = append(args, to.UTC())
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY b.start_time ASC"

	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWithOwner(rows)
}

// ListUpcomingByUser returns userID's bookings that have not ended at now.
func (r *BookingRepo) ListUpcomingByUser(ctx context.Context, userID string, now time.Time) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		"SELECT "+bookingColumns+" FROM bookings b WHERE b.user_id = ? AND b.end_time > ? ORDER BY b.start_time ASC"),
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		targets, finish := bookingTargets(&b)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		finish()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Delete removes a booking.  It returns ErrNotFound when no row matched.
func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.d.Rebind("DELETE FROM bookings WHERE id = ?"), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ErrAlreadyStarted is returned when an owner tries to cancel a booking
// whose start time has passed.
var ErrAlreadyStarted = errors.New("booking already started")

// DeleteOwned removes booking id on behalf of ownerID.  It returns
// ErrNotFound, ErrForbidden when ownerID does not own it, or
// ErrAlreadyStarted when it started at or before now.  The row is locked
// while the checks run.
func (r *BookingRepo) DeleteOwned(ctx context.Context, id, ownerID string, now time.Time) (model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var b model.Booking
	targets, finish := bookingTargets(&b)
	if err := tx.QueryRowContext(ctx, r.d.Rebind(
		"SELECT "+bookingColumns+" FROM bookings b WHERE b.id = ? FOR UPDATE"), id).Scan(targets...); err != nil {
		return model.Booking{}, notFound(err)
	}
	finish()
	switch {
	case b.UserID != ownerID:
		return model.Booking{}, ErrForbidden
	case b.Started(now):
		return model.Booking{}, ErrAlreadyStarted
	}
	if _, err := tx.ExecContext(ctx, r.d.Rebind("DELETE FROM bookings WHERE id = ?"), id); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// txSource reads bookings through the creating transaction.
type txSource struct {
	q querier
	d database.Dialect
}

func (s txSource) HasOverlap(ctx context.Context, start, end time.Time) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, s.d.Rebind(
		"SELECT 1 FROM bookings WHERE start_time < ? AND end_time > ? LIMIT 1"),
		end.UTC(), start.UTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s txSource) CountUserBookingsBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, s.d.Rebind(
		"SELECT COUNT(*) FROM bookings WHERE user_id = ? AND start_time >= ? AND start_time < ?"),
		userID, from.UTC(), to.UTC()).Scan(&n)
	return n, err
}
