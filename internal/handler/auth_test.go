package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/config"
	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/utils"
)

func newAuthHandler() (*AuthHandler, *memTokens) {
	profiles := newMemProfiles()
	ids := &memIdentities{byEmail: map[string]model.Identity{}, profiles: profiles}
	tokens := newMemTokens()
	cfg := config.Config{JWTSecret: "secret", AccessTTLMin: 15, RefreshTTLDays: 30, BcryptCost: 4}
	return NewAuthHandler(cfg, ids, profiles, tokens), tokens
}

func sessionCookie(res *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range res.Result().Cookies() {
		if ck.Name == middleware.SessionCookie {
			return ck
		}
	}
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	h, _ := newAuthHandler()
	anon := caller{}

	res, body := serve(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":" Nora@Example.com ","password":"correct horse","unit":"4B"}`, anon, "")
	if res.Code != http.StatusCreated {
		t.Fatalf("register: status = %d (body %s)", res.Code, res.Body.String())
	}
	user := body["user"].(map[string]any)
	if user["role"] != "neighbor" || user["email"] != "nora@example.com" || user["display_name"] != "nora" {
		t.Fatalf("unexpected user %v", user)
	}
	ck := sessionCookie(res)
	if ck == nil || !ck.HttpOnly || ck.Value == "" {
		t.Fatalf("session cookie not set: %+v", ck)
	}
	access := body["access"].(map[string]any)["token"].(string)
	if sub, err := utils.ParseAccessToken("secret", access); err != nil || sub != user["id"] {
		t.Fatalf("access token subject = %q, %v", sub, err)
	}

	res, _ = serve(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"nora@example.com","password":"another one"}`, anon, "")
	if res.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status = %d", res.Code)
	}
	res, _ = serve(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"x@example.com","password":"short"}`, anon, "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status = %d", res.Code)
	}

	res, _ = serve(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"nora@example.com","password":"wrong password"}`, anon, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status = %d", res.Code)
	}
	res, _ = serve(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"nobody@example.com","password":"correct horse"}`, anon, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status = %d", res.Code)
	}
	res, body = serve(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"NORA@example.com","password":"correct horse"}`, anon, "")
	if res.Code != http.StatusOK || body["user"].(map[string]any)["id"] != user["id"] {
		t.Fatalf("login: status = %d body %v", res.Code, body)
	}
}

func TestRefreshRotates(t *testing.T) {
	h, _ := newAuthHandler()
	_, body := serve(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"tara@example.com","password":"correct horse"}`, caller{}, "")
	first := body["refresh"].(map[string]any)["token"].(string)

	res, body := serve(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+first+`"}`, caller{}, "")
	if res.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d (body %s)", res.Code, res.Body.String())
	}
	second := body["refresh"].(map[string]any)["token"].(string)
	if second == first {
		t.Fatal("refresh token was not rotated")
	}

	res, _ = serve(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+first+`"}`, caller{}, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: status = %d", res.Code)
	}
	res, _ = serve(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", `{}`, caller{}, "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("missing refresh token: status = %d", res.Code)
	}
}

func TestRefreshClaimsTokenOnce(t *testing.T) {
	h, tokens := newAuthHandler()
	_, body := serve(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"tara@example.com","password":"correct horse"}`, caller{}, "")
	raw := body["refresh"].(map[string]any)["token"].(string)

	// Both requests see the token as valid; only one may rotate it.
	h.Tokens = staleTokens{tokens}
	codes := []int{}
	for range 2 {
		res, _ := serve(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+raw+`"}`, caller{}, "")
		codes = append(codes, res.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusUnauthorized {
		t.Fatalf("statuses = %v, want [200 401]", codes)
	}
}

func TestRegisterFieldLimits(t *testing.T) {
	long := func(n int) string { return strings.Repeat("x", n) }
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "display name at limit", body: `{"email":"a@example.com","password":"correct horse","display_name":"` + long(120) + `"}`, want: http.StatusCreated},
		{name: "display name too long", body: `{"email":"b@example.com","password":"correct horse","display_name":"` + long(121) + `"}`, want: http.StatusBadRequest},
		{name: "unit at limit", body: `{"email":"c@example.com","password":"correct horse","unit":" ` + long(32) + ` "}`, want: http.StatusCreated},
		{name: "unit too long", body: `{"email":"d@example.com","password":"correct horse","unit":"` + long(33) + `"}`, want: http.StatusBadRequest},
		{name: "email too long", body: `{"email":"` + long(250) + `@example.com","password":"correct horse"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newAuthHandler()
			res, body := serve(t, h.Register, http.MethodPost, "/v1/auth/register", tt.body, caller{}, "")
			if res.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", res.Code, tt.want, res.Body.String())
			}
			if tt.want == http.StatusCreated {
				user := body["user"].(map[string]any)
				if u, ok := user["unit"].(string); ok && u != strings.TrimSpace(u) {
					t.Fatalf("unit not trimmed: %q", u)
				}
			}
		})
	}
}

func TestLogout(t *testing.T) {
	h, tokens := newAuthHandler()
	_, body := serve(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"nick@example.com","password":"correct horse"}`, caller{}, "")
	access := body["access"].(map[string]any)["token"].(string)
	refresh := body["refresh"].(map[string]any)["token"].(string)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: access})
	res := httptest.NewRecorder()
	if err := h.Logout(e.NewContext(req, res)); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if res.Code != http.StatusNoContent {
		t.Fatalf("logout: status = %d (body %s)", res.Code, res.Body.String())
	}
	if ck := sessionCookie(res); ck == nil || ck.Value != "" || ck.MaxAge >= 0 {
		t.Fatalf("session cookie not cleared: %+v", ck)
	}
	if _, err := tokens.ValidateRefresh(t.Context(), utils.HashRefreshRaw(refresh)); err == nil {
		t.Fatal("refresh token still valid after logout")
	}

	r, _ := serve(t, h.Logout, http.MethodPost, "/v1/auth/logout", `{}`, caller{}, "")
	if r.Code != http.StatusBadRequest {
		t.Fatalf("logout without credentials: status = %d", r.Code)
	}
}
