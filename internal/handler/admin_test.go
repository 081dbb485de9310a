package handler

import (
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/iliyamo/gym-booking/internal/model"
)

func TestAdminDeleteBooking(t *testing.T) {
	store := newMemBookings(testRoles,
		owned("past", "nora", slot(27, "09:00", "10:00")),
		owned("future", "nick", slot(29, "09:00", "10:00")),
	)
	rec := &recorder{}
	h := NewAdminHandler(store, newMemProfiles(), rec.hooks(), nil)

	for _, id := range []string{"future", "past"} {
		res, _ := serve(t, h.DeleteBooking, http.MethodDelete, "/v1/admin/bookings/"+id, "", admin, id)
		if res.Code != http.StatusOK {
			t.Fatalf("delete %s: status = %d", id, res.Code)
		}
	}
	if store.count() != 0 {
		t.Fatalf("bookings left: %d", store.count())
	}
	if len(rec.events) != 2 || rec.events[0].ActorID != "admin" || rec.events[0].UserID != "nick" {
		t.Fatalf("unexpected events %+v", rec.events)
	}

	res, _ := serve(t, h.DeleteBooking, http.MethodDelete, "/v1/admin/bookings/future", "", admin, "future")
	if res.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d", res.Code)
	}
}

func TestAdminListBookings(t *testing.T) {
	store := newMemBookings(testRoles,
		owned("a", "nora", slot(20, "09:00", "10:00")),
		owned("b", "tara", slot(29, "09:00", "10:00")),
	)
	h := NewAdminHandler(store, newMemProfiles(), Hooks{}, nil)
	_, body := serve(t, h.ListBookings, http.MethodGet, "/v1/admin/bookings", "", admin, "")
	list := body["bookings"].([]any)
	if len(list) != 2 {
		t.Fatalf("got %d bookings, want 2", len(list))
	}
	first := list[0].(map[string]any)
	if first["owner_email"] != "nora@example.com" || first["owner_role"] != "neighbor" {
		t.Fatalf("owner details missing: %v", first)
	}

	store.failNext = true
	res, body := serve(t, h.ListBookings, http.MethodGet, "/v1/admin/bookings", "", admin, "")
	if res.Code != http.StatusInternalServerError || body["error"] != "Failed to fetch bookings" {
		t.Fatalf("store failure: %d %v", res.Code, body)
	}
}

func TestAdminSearchBookings(t *testing.T) {
	store := newMemBookings(testRoles,
		owned("done", "nora", slot(27, "09:00", "10:00")),
		owned("soon", "nick", slot(28, "09:00", "10:00")),
		owned("later", "tara", slot(29, "09:00", "10:00")),
		owned("last", "nora", slot(30, "09:00", "10:00")),
	)
	h := NewAdminHandler(store, newMemProfiles(), Hooks{}, nil)
	h.Now = func() time.Time { return testNow }

	ids := func(body map[string]any) []string {
		var out []string
		for _, v := range body["bookings"].([]any) {
			out = append(out, v.(map[string]any)["id"].(string))
		}
		return out
	}
	tests := []struct {
		query string
		want  []string
		total float64
	}{
		{query: "", want: []string{"done", "soon", "later", "last"}, total: 4},
		{query: "?when=upcoming", want: []string{"soon", "later", "last"}, total: 3},
		{query: "?when=past", want: []string{"done"}, total: 1},
		{query: "?email=NORA", want: []string{"done", "last"}, total: 2},
		{query: "?role=trainer", want: []string{"later"}, total: 1},
		{query: "?page=2&page_size=3", want: []string{"last"}, total: 4},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, body := serve(t, h.ListBookings, http.MethodGet, "/v1/admin/bookings"+tt.query, "", admin, "")
			if res.Code != http.StatusOK {
				t.Fatalf("status = %d (body %s)", res.Code, res.Body.String())
			}
			if got := ids(body); !slices.Equal(got, tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			if body["total"] != tt.total {
				t.Fatalf("total = %v, want %v", body["total"], tt.total)
			}
		})
	}

	for _, q := range []string{"?when=soonish", "?role=owner", "?page=0", "?page_size=x"} {
		res, _ := serve(t, h.ListBookings, http.MethodGet, "/v1/admin/bookings"+q, "", admin, "")
		if res.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, res.Code)
		}
	}
}

func TestAdminUpdateRole(t *testing.T) {
	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{name: "promote to trainer", id: "nora", body: `{"role":"trainer"}`, want: http.StatusOK},
		{name: "case and spaces are tolerated", id: "nora", body: `{"role":" Admin "}`, want: http.StatusOK},
		{name: "unknown role", id: "nora", body: `{"role":"owner"}`, want: http.StatusBadRequest},
		{name: "empty role", id: "nora", body: `{}`, want: http.StatusBadRequest},
		{name: "missing profile", id: "ghost", body: `{"role":"trainer"}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := newMemProfiles(model.Profile{ID: "nora", Role: model.RoleNeighbor})
			rec := &recorder{}
			h := NewAdminHandler(newMemBookings(testRoles), profiles, rec.hooks(), nil)
			res, body := serve(t, h.UpdateRole, http.MethodPatch, "/v1/admin/users/"+tt.id+"/role", tt.body, admin, tt.id)
			if res.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", res.Code, tt.want, res.Body.String())
			}
			if res.Code != http.StatusOK {
				if len(rec.events) != 0 {
					t.Fatalf("event emitted on failure")
				}
				return
			}
			user := body["user"].(map[string]any)
			if !model.Role(user["role"].(string)).Valid() {
				t.Fatalf("invalid role in response %v", user)
			}
			if len(rec.events) != 1 || rec.events[0].Type != "profile.role_changed" || rec.bumps != 1 {
				t.Fatalf("events=%+v bumps=%d", rec.events, rec.bumps)
			}
		})
	}
}

func TestAdminListUsers(t *testing.T) {
	h := NewAdminHandler(newMemBookings(testRoles),
		newMemProfiles(model.Profile{ID: "a", Role: model.RoleAdmin}, model.Profile{ID: "b", Role: model.RoleNeighbor}),
		Hooks{}, nil)
	_, body := serve(t, h.ListUsers, http.MethodGet, "/v1/admin/users", "", admin, "")
	if users := body["users"].([]any); len(users) != 2 {
		t.Fatalf("got %d users", len(users))
	}
}
