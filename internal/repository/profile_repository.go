package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/gym-booking/internal/database"
	"github.com/iliyamo/gym-booking/internal/model"
)

// ProfileRepo reads and updates rows of the profiles table.  It never
// inserts (see IdentityRepo.Register) and never deletes.
type ProfileRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewProfileRepo returns a ProfileRepo bound to db.
func NewProfileRepo(db *sql.DB, d database.Dialect) *ProfileRepo { return &ProfileRepo{db: db, d: d} }

// ProfileUpdate lists the fields an owner may change.  Nil fields are
// left as they are; an empty Unit clears it.
type ProfileUpdate struct {
	DisplayName *string
	Unit        *string
}

const profileColumns = "id, email, display_name, unit, role, created_at"

func scanProfile(row interface{ Scan(...any) error }) (model.Profile, error) {
	var (
		p    model.Profile
		unit sql.NullString
		role string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &unit, &role, &p.CreatedAt); err != nil {
		return model.Profile{}, err
	}
	if unit.Valid {
		u := unit.String
		p.Unit = &u
	}
	p.Role = model.Role(role)
	return p, nil
}

// GetByID returns the profile with the given id or ErrNotFound.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, r.d.Rebind(
		"SELECT "+profileColumns+" FROM profiles WHERE id = ?"), id))
	return p, notFound(err)
}

// List returns every profile, newest first.
func (r *ProfileRepo) List(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateRole sets the role of profile id and returns the updated row.
func (r *ProfileRepo) UpdateRole(ctx context.Context, id string, role model.Role) (model.Profile, error) {
	if _, err := r.db.ExecContext(ctx, r.d.Rebind("UPDATE profiles SET role = ? WHERE id = ?"), string(role), id); err != nil {
		return model.Profile{}, err
	}
	// MySQL reports zero affected rows for an unchanged value, so existence
	// is decided by the read-back rather than RowsAffected.
	return r.GetByID(ctx, id)
}

// UpdateDetails applies an owner's changes to display_name and unit.
func (r *ProfileRepo) UpdateDetails(ctx context.Context, id string, u ProfileUpdate) (model.Profile, error) {
	sets := []string{}
	args := []any{}
	if u.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, strings.TrimSpace(*u.DisplayName))
	}
	if u.Unit != nil {
		sets = append(sets, "unit = ?")
		if v := strings.TrimSpace(*u.Unit); v != "" {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	if len(sets) > 0 {
		args = append(args, id)
		q := "UPDATE profiles SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...); err != nil {
			return model.Profile{}, err
		}
	}
	return r.GetByID(ctx, id)
}
