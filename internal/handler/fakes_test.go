package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/gym-booking/internal/booking"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/queue"
	"github.com/iliyamo/gym-booking/internal/repository"
	"github.com/iliyamo/gym-booking/internal/utils"
)

var errStoreDown = errors.New("store down")

// memBookings is an in-memory BookingStore.  The mutex plays the part of
// the booking_guard row lock.
type memBookings struct {
	mu       sync.Mutex
	list     []model.Booking
	roles    map[string]model.Role
	failNext bool
	seq      int
}

func newMemBookings(roles map[string]model.Role, seed ...model.Booking) *memBookings {
	return &memBookings{list: seed, roles: roles}
}

func (m *memBookings) CreateChecked(ctx context.Context, b *model.Booking, check repository.CheckFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errStoreDown
	}
	if err := check(ctx, booking.Snapshot(m.list)); err != nil {
		return err
	}
	m.seq++
	b.ID = fmt.Sprintf("b-%d", m.seq)
	b.CreatedAt = time.Now().UTC()
	m.list = append(m.list, *b)
	return nil
}

func (m *memBookings) GetByID(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.list {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, repository.ErrNotFound
}

func (m *memBookings) ListRange(_ context.Context, from, to *time.Time) ([]model.BookingWithOwner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return nil, errStoreDown
	}
	out := []model.BookingWithOwner{}
	for _, b := range m.list {
		if from != nil && b.StartTime.Before(*from) || to != nil && b.EndTime.After(*to) {
			continue
		}
		out = append(out, model.BookingWithOwner{Booking: b, OwnerEmail: b.UserID + "@example.com", OwnerRole: m.roles[b.UserID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memBookings) Search(ctx context.Context, q repository.BookingSearchQuery) ([]model.BookingWithOwner, int64, error) {
	all, err := m.ListRange(ctx, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	out := []model.BookingWithOwner{}
	for _, b := range all {
		switch q.When {
		case "upcoming":
			if b.Started(q.Now) {
				continue
			}
		case "active":
			if b.Ended(q.Now) {
				continue
			}
		case "past":
			if !b.Ended(q.Now) {
				continue
			}
		}
		if q.Email != "" && !strings.Contains(strings.ToLower(b.OwnerEmail), strings.ToLower(q.Email)) {
			continue
		}
		if q.Role != "" && b.OwnerRole != q.Role {
			continue
		}
		out = append(out, b)
	}
	total := int64(len(out))
	if q.PageSize > 0 {
		lo := min((max(q.Page, 1)-1)*q.PageSize, len(out))
		out = out[lo:min(lo+q.PageSize, len(out))]
	}
	return out, total, nil
}

func (m *memBookings) ListUpcomingByUser(_ context.Context, userID string, now time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Booking{}
	for _, b := range m.list {
		if b.UserID == userID && !b.Ended(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) DeleteOwned(_ context.Context, id, ownerID string, now time.Time) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.list {
		if b.ID != id {
			continue
		}
		if b.UserID != ownerID {
			return model.Booking{}, repository.ErrForbidden
		}
		if b.Started(now) {
			return model.Booking{}, repository.ErrAlreadyStarted
		}
		m.list = append(m.list[:i], m.list[i+1:]...)
		return b, nil
	}
	return model.Booking{}, repository.ErrNotFound
}

func (m *memBookings) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.list {
		if b.ID == id {
			m.list = append(m.list[:i], m.list[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memBookings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.list)
}

type memProfiles struct {
	mu   sync.Mutex
	byID map[string]model.Profile
}

func newMemProfiles(ps ...model.Profile) *memProfiles {
	m := &memProfiles{byID: map[string]model.Profile{}}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memProfiles) GetByID(_ context.Context, id string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func (m *memProfiles) List(_ context.Context) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Profile, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProfiles) UpdateRole(_ context.Context, id string, role model.Role) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	p.Role = role
	m.byID[id] = p
	return p, nil
}

func (m *memProfiles) UpdateDetails(_ context.Context, id string, u repository.ProfileUpdate) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	if u.DisplayName != nil {
		p.DisplayName = strings.TrimSpace(*u.DisplayName)
	}
	if u.Unit != nil {
		if v := strings.TrimSpace(*u.Unit); v != "" {
			p.Unit = &v
		} else {
			p.Unit = nil
		}
	}
	m.byID[id] = p
	return p, nil
}

// memIdentities stores identities and creates their profiles in profiles.
type memIdentities struct {
	mu       sync.Mutex
	byEmail  map[string]model.Identity
	profiles *memProfiles
	seq      int
}

func (m *memIdentities) Register(_ context.Context, s repository.Signup, cost int) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(s.Email))
	if _, ok := m.byEmail[email]; ok {
		return model.Profile{}, repository.ErrEmailExists
	}
	hash, err := utils.HashPassword(s.Password, cost)
	if err != nil {
		return model.Profile{}, err
	}
	m.seq++
	id := fmt.Sprintf("id-%d", m.seq)
	m.byEmail[email] = model.Identity{ID: id, Email: email, PasswordHash: hash, IsActive: true}
	p := model.Profile{ID: id, Email: email, DisplayName: s.DisplayName, Unit: s.Unit, Role: model.RoleNeighbor}
	m.profiles.mu.Lock()
	m.profiles.byID[id] = p
	m.profiles.mu.Unlock()
	return p, nil
}

func (m *memIdentities) GetByEmail(_ context.Context, email string) (model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return model.Identity{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memIdentities) GetByID(_ context.Context, id string) (model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return model.Identity{}, repository.ErrNotFound
}

type memTokens struct {
	mu      sync.Mutex
	owner   map[string]string
	revoked map[string]bool
}

func newMemTokens() *memTokens {
	return &memTokens{owner: map[string]string{}, revoked: map[string]bool{}}
}

func (m *memTokens) StoreRefresh(_ context.Context, identityID, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner[hash] = identityID
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.owner[hash]
	if !ok || m.revoked[hash] {
		return "", repository.ErrNotFound
	}
	return id, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owner[hash]; !ok || m.revoked[hash] {
		return repository.ErrNotFound
	}
	m.revoked[hash] = true
	return nil
}

// staleTokens answers ValidateRefresh as if revocations were not yet
// visible, the view a concurrent refresh can have.
type staleTokens struct{ *memTokens }

func (s staleTokens) ValidateRefresh(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.owner[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	return id, nil
}

func (m *memTokens) RevokeAllForIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, id := range m.owner {
		if id == identityID {
			m.revoked[h] = true
		}
	}
	return nil
}

// recorder captures emitted events and cache bumps.
type recorder struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	bumps  int
}

func (r *recorder) Emit(ev queue.BookingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Bump(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumps++
	return nil
}

func (r *recorder) hooks() Hooks { return Hooks{Events: r, Cache: r} }
