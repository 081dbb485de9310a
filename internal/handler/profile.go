package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/repository"
)

// ProfileHandler lets a signed-in user read and edit their own profile.
type ProfileHandler struct {
	Profiles ProfileStore
}

func NewProfileHandler(p ProfileStore) *ProfileHandler { return &ProfileHandler{Profiles: p} }

// Me handles GET /v1/me.  LoadProfile has already fetched the row.
func (h *ProfileHandler) Me(c echo.Context) error {
	p, ok := middleware.CurrentProfile(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": p})
}

// UpdateMe handles PATCH /v1/me.  Only display_name and unit may change;
// a body that mentions role is refused outright.
func (h *ProfileHandler) UpdateMe(c echo.Context) error {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if _, ok := body["role"]; ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "role can only be changed by an admin"})
	}

	var upd repository.ProfileUpdate
	for key, raw := range body {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": key + " must be a string"})
		}
		switch key {
		case "display_name":
			if err := checkDisplayName(v); err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
			}
			upd.DisplayName = &v
		case "unit":
			if err := checkUnit(v); err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
			}
			upd.Unit = &v
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown field " + key})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	p, err := h.Profiles.UpdateDetails(ctx, middleware.UserID(c), upd)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
	case err != nil:
		return internalError(c, "profile", "Failed to update profile", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": p})
}

// Column widths of profiles.display_name and profiles.unit.
const (
	maxDisplayName = 120
	maxUnit        = 32
)

func checkDisplayName(v string) error {
	v = strings.TrimSpace(v)
	if v == "" || utf8.RuneCountInString(v) > maxDisplayName {
		return errors.New("display_name must be 1 to 120 characters")
	}
	return nil
}

func checkUnit(v string) error {
	if utf8.RuneCountInString(strings.TrimSpace(v)) > maxUnit {
		return errors.New("unit must be at most 32 characters")
	}
	return nil
}
