package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/gym-booking/internal/database"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/utils"
)

// IdentityRepo stores credentials.  Registering an identity also creates
// its profile, so there is always exactly one profile per identity.
type IdentityRepo struct {
	DB *sql.DB
	d  database.Dialect
}

func NewIdentityRepo(db *sql.DB, d database.Dialect) *IdentityRepo {
	return &IdentityRepo{DB: db, d: d}
}

var ErrEmailExists = fmt.Errorf("email already exists: %w", ErrConflict)

// Signup is the input to Register.
type Signup struct {
	Email       string
	Password    string
	DisplayName string
	Unit        *string
}

// Register inserts an identity and its neighbor profile in one transaction
// and returns the new profile.
func (r *IdentityRepo) Register(ctx context.Context, s Signup, cost int) (model.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(s.Email))
	hash, err := utils.HashPassword(s.Password, cost)
	if err != nil {
		return model.Profile{}, err
	}
	now := time.Now().UTC()
	p := model.Profile{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(s.DisplayName),
		Unit:        s.Unit,
		Role:        model.RoleNeighbor,
		CreatedAt:   now,
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Profile{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, r.d.Rebind(
		"INSERT INTO identities (id, email, password_hash, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?)"),
		p.ID, email, hash, true, now, now); err != nil {
		if isUniqueViolation(err) {
			return model.Profile{}, ErrEmailExists
		}
		return model.Profile{}, err
	}
	if _, err := tx.ExecContext(ctx, r.d.Rebind(
		"INSERT INTO profiles (id, email, display_name, unit, role, created_at) VALUES (?,?,?,?,?,?)"),
		p.ID, p.Email, p.DisplayName, p.Unit, string(p.Role), p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.Profile{}, ErrEmailExists
		}
		return model.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Profile{}, err
	}
	committed = true
	return p, nil
}

const identityColumns = "id,email,password_hash,is_active,created_at,updated_at"

// GetByEmail fetches an identity by normalized email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.Identity
	err := r.DB.QueryRowContext(ctx, r.d.Rebind(
		"SELECT "+identityColumns+" FROM identities WHERE email=? LIMIT 1"),
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

// GetByID fetches an identity by id.
func (r *IdentityRepo) GetByID(ctx context.Context, id string) (model.Identity, error) {
	var u model.Identity
	err := r.DB.QueryRowContext(ctx, r.d.Rebind(
		"SELECT "+identityColumns+" FROM identities WHERE id=? LIMIT 1"),
		id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}
