package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/config"
	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/model"
	"github.com/iliyamo/gym-booking/internal/repository"
	"github.com/iliyamo/gym-booking/internal/utils"
)

// IdentityStore is the subset of *repository.IdentityRepo the auth
// endpoints use.
type IdentityStore interface {
	Register(ctx context.Context, s repository.Signup, cost int) (model.Profile, error)
	GetByEmail(ctx context.Context, email string) (model.Identity, error)
	GetByID(ctx context.Context, id string) (model.Identity, error)
}

// TokenStore is the subset of *repository.TokenRepo the auth endpoints use.
type TokenStore interface {
	StoreRefresh(ctx context.Context, identityID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForIdentity(ctx context.Context, identityID string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg        config.Config
	Identities IdentityStore
	Profiles   ProfileStore
	Tokens     TokenStore
}

func NewAuthHandler(cfg config.Config, ids IdentityStore, profiles ProfileStore, tokens TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Identities: ids, Profiles: profiles, Tokens: tokens}
}

// ----- DTOs -----

// maxEmail is the width of the email columns.
const maxEmail = 255

type registerReq struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName string  `json:"display_name"`
	Unit        *string `json:"unit"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    model.Profile `json:"user"`
	Access  tokenPart     `json:"access"`
	Refresh tokenPart     `json:"refresh"`
}

// Register creates an identity with a neighbor profile and signs it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if len(req.Email) > maxEmail {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email must be at most 255 characters"})
	}
	if err := utils.CheckPasswordStrength(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		req.DisplayName = strings.SplitN(req.Email, "@", 2)[0]
	}
	if err := checkDisplayName(req.DisplayName); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if err := checkUnit(unit); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		req.Unit = &unit
		if unit == "" {
			req.Unit = nil
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Identities.Register(ctx, repository.Signup{
		Email: req.Email, Password: req.Password, DisplayName: req.DisplayName, Unit: req.Unit,
	}, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	}
	if err != nil {
		return internalError(c, "auth", "create user failed", err)
	}
	return h.issue(ctx, c, p, http.StatusCreated)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Identities.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return internalError(c, "auth", "query failed", err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.signIn(ctx, c, u.ID, http.StatusOK)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.  Each token can be rotated once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	identityID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	// Rotation is claimed by the revoke: a concurrent refresh with the same
	// token finds it already revoked.
	if err := h.Tokens.RevokeByHash(ctx, hash); errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	} else if err != nil {
		return internalError(c, "auth", "revoke refresh failed", err)
	}
	u, err := h.Identities.GetByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return internalError(c, "auth", "load user failed", err)
	}
	return h.signIn(ctx, c, identityID, http.StatusOK)
}

// Logout revokes one refresh token when given in the body, otherwise every
// refresh token of the caller identified by the access token.  The session
// cookie is cleared in both cases.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refresh := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	switch {
	case refresh != "":
		hash := utils.HashRefreshRaw(refresh)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		} else if err != nil {
			return internalError(c, "auth", "logout failed", err)
		}
	default:
		uid := h.accessSubject(c)
		if uid == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide an access token or refresh_token"})
		}
		if err := h.Tokens.RevokeAllForIdentity(ctx, uid); err != nil {
			return internalError(c, "auth", "logout failed", err)
		}
	}
	h.setSessionCookie(c, "", time.Unix(0, 0).UTC(), -1)
	return c.NoContent(http.StatusNoContent)
}

// accessSubject returns the identity of a valid access token in the
// Authorization header or session cookie, or "".
func (h *AuthHandler) accessSubject(c echo.Context) string {
	raw := ""
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		raw = strings.TrimPrefix(auth, "Bearer ")
	} else if ck, err := c.Cookie(middleware.SessionCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		return ""
	}
	sub, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw)
	if err != nil {
		return ""
	}
	return sub
}

func (h *AuthHandler) signIn(ctx context.Context, c echo.Context, identityID string, status int) error {
	p, err := h.Profiles.GetByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
	}
	if err != nil {
		return internalError(c, "auth", "load profile failed", err)
	}
	return h.issue(ctx, c, p, status)
}

// issue creates an access/refresh pair for p, stores the refresh hash and
// writes the response together with the session cookie.
func (h *AuthHandler) issue(ctx context.Context, c echo.Context, p model.Profile, status int) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, p.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return internalError(c, "auth", "issue access failed", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return internalError(c, "auth", "issue refresh failed", err)
	}
	if err := h.Tokens.StoreRefresh(ctx, p.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return internalError(c, "auth", "save refresh failed", err)
	}
	h.setSessionCookie(c, access.Token, access.Exp, int(time.Until(access.Exp).Seconds()))
	return c.JSON(status, authResp{
		User:    p,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

func (h *AuthHandler) setSessionCookie(c echo.Context, value string, exp time.Time, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
