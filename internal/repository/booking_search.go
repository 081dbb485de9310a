package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/gym-booking/internal/model"
)

// BookingSearchQuery defines filters & pagination for the admin listing.
type BookingSearchQuery struct {
	Email    string     // case-insensitive substring of the owner's email
	Role     model.Role // owner role; empty for any
	When     string     // "any" (default), "upcoming", "active" or "past"
	Now      time.Time  // reference instant for When
	Page     int        // 1-based
	PageSize int        // 0 returns every match
}

// Search returns bookings joined with their owner, ordered by start time,
// and the total number of matches before paging.
func (r *BookingRepo) Search(ctx context.Context, q BookingSearchQuery) ([]model.BookingWithOwner, int64, error) {
	where := []string{}
	args := []any{}

	now := q.Now.UTC()
	switch strings.ToLower(q.When) {
	case "upcoming":
		where = append(where, "b.start_time > ?")
		args = append(args, now)
	case "active":
		where = append(where, "b.end_time > ?")
		args = append(args, now)
	case "past":
		where = append(where, "b.end_time <= ?")
		args = append(args, now)
	}
	if q.Email != "" {
		where = append(where, "LOWER(p.email) LIKE ? ESCAPE '!'")
		args = append(args, likeContains(strings.ToLower(q.Email)))
	}
	if q.Role != "" {
		where = append(where, "p.role = ?")
		args = append(args, string(q.Role))
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	const from = " FROM bookings b JOIN profiles p ON p.id = b.user_id WHERE "

	var total int64
	if err := r.db.QueryRowContext(ctx, r.d.Rebind("SELECT COUNT(*)"+from+cond), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := "SELECT " + bookingColumns + ", p.email, p.unit, p.role" + from + cond + " ORDER BY b.start_time ASC"
	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		dataSQL += " LIMIT ? OFFSET ?"
		args = append(args, q.PageSize, (page-1)*q.PageSize)
	}
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(dataSQL), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := scanWithOwner(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// likeContains returns a LIKE pattern matching s anywhere, with s's own
// wildcards escaped.  '!' is the escape character because backslash is
// itself an escape in MySQL string literals but not in Postgres ones.
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// scanWithOwner reads rows selected as bookingColumns followed by the
// owner's email, unit and role.
func scanWithOwner(rows *sql.Rows) ([]model.BookingWithOwner, error) {
	out := []model.BookingWithOwner{}
	for rows.Next() {
		var (
			item model.BookingWithOwner
			unit sql.NullString
			role string
		)
		targets, finish := bookingTargets(&item.Booking)
		if err := rows.Scan(append(targets, &item.OwnerEmail, &unit, &role)...); err != nil {
			return nil, err
		}
		finish()
		if unit.Valid {
			v := unit.String
			item.OwnerUnit = &v
		}
		item.OwnerRole = model.Role(role)
		out = append(out, item)
	}
	return out, rows.Err()
}
