// Auth HTTP handlers.
//
//   - POST /auth/register
//   - POST /auth/login
//   - POST /auth/refresh   (rotates the refresh-token cookie)
//   - POST /auth/logout
//   - GET  /auth/me
//
// The refresh token never appears in a response body; it travels in an
// HttpOnly cookie scoped to the auth routes.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/services"
)

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Email     string `json:"email"     binding:"required,email,max=255" example:"ada@example.com"`
	Password  string `json:"password"  binding:"required,max=72"        example:"correct horse battery"`
	FirstName string `json:"firstName" binding:"required,max=100"       example:"Ada"`
	LastName  string `json:"lastName"  binding:"required,max=100"       example:"Lovelace"`
}

// LoginRequest is the sign-in payload.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// AuthResponse carries a fresh access token and the signed-in traveler.
type AuthResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        domain.User `json:"user"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Creates a traveler account and opens a session. The refresh token is set as an HttpOnly cookie.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Sign-up form"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid input or weak password"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		failService(c, err)
		return
	}
	h.writeSession(c, http.StatusCreated, s)
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	h.writeSession(c, http.StatusOK, s)
}

// Refresh godoc
// @ID          refresh
// @Summary     Rotate the session
// @Description Exchanges the refresh-token cookie for a new access token and a rotated cookie. The presented refresh token is revoked.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.AuthResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing, expired or revoked refresh token"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	token, _ := c.Cookie(h.cookie.Name)
	if strings.TrimSpace(token) == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing refresh token")
		return
	}
	s, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			h.clearRefreshCookie(c)
		}
		failService(c, err)
		return
	}
	h.writeSession(c, http.StatusOK, s)
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Revokes the refresh token (if any) and clears the cookie. Always succeeds.
// @Tags        Auth
// @Success     204  {string}  string  "No Content"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if token, _ := c.Cookie(h.cookie.Name); token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			failService(c, err)
			return
		}
	}
	h.clearRefreshCookie(c)
	noContent(c)
}

// Me godoc
// @ID          me
// @Summary     Current traveler
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.auth.Me(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (h *Handlers) writeSession(c *gin.Context, status int, s *services.Session) {
	maxAge := int(time.Until(s.RefreshExpiresAt).Seconds())
	h.setRefreshCookie(c, s.RefreshToken, maxAge)
	noStore(c)
	ok(c, status, AuthResponse{AccessToken: s.AccessToken, ExpiresAt: s.AccessExpiresAt, User: s.User})
}

func (h *Handlers) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, value, maxAge, h.cookie.Path, "", h.cookie.Secure, true)
}

func (h *Handlers) clearRefreshCookie(c *gin.Context) {
	h.setRefreshCookie(c, "", -1)
}
