// Profile HTTP handlers.
//
//   - GET   /users/me             my account and profile
//   - PATCH /users/me/profile     partial profile edit
//   - GET   /users/{id}/profile   another traveler's public profile
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-layover-backend/internal/services"
)

// GetMyProfile godoc
// @ID          getMyProfile
// @Summary     My account and profile
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.UserProfile
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /users/me [get]
func (h *Handlers) GetMyProfile(c *gin.Context) {
	p, err := h.profiles.Me(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateMyProfile godoc
// @ID          updateMyProfile
// @Summary     Edit my profile
// @Description Omitted fields are left as they are; an empty string clears a field. dateOfBirth is YYYY-MM-DD.
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.ProfilePatch  true  "Fields to change"
// @Success     200   {object}  domain.Profile
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid profile"
// @Router      /users/me/profile [patch]
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	var patch services.ProfilePatch
	if !bindJSON(c, &patch) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), userID(c), patch)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// GetUserProfile godoc
// @ID          getUserProfile
// @Summary     Another traveler's profile
// @Description Name and profile only; the email address is never included.
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "User ID"  format(uuid)
// @Success     200  {object}  services.UserProfile
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown traveler"
// @Router      /users/{id}/profile [get]
func (h *Handlers) GetUserProfile(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	p, err := h.profiles.Public(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
