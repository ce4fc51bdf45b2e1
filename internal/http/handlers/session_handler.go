// Session and profile HTTP handlers.
//
//   - POST  /session/register
//   - POST  /session/login
//   - POST  /session/logout
//   - GET   /me
//   - PATCH /me
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/services"
)

// RegisterRequest is the payload of POST /session/register.
type RegisterRequest struct {
	Username    string `json:"username"     binding:"required" example:"alice.b"`
	Email       string `json:"email"        binding:"required" example:"alice@example.com"`
	DisplayName string `json:"display_name" example:"Alice B."`
}

// LoginRequest is the payload of POST /session/login.
type LoginRequest struct {
	Email string `json:"email" binding:"required" example:"alice@example.com"`
}

// UpdateMeRequest is the payload of PATCH /me. Absent fields are unchanged.
type UpdateMeRequest struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	Website     *string `json:"website"`
	IsPrivate   *bool   `json:"is_private"`
}

// Register godoc
// @ID          register
// @Summary     Create a local account and sign it in
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /session/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and email are required")
		return
	}
	u, err := h.Accounts.Register(c.Request.Context(), req.Username, req.Email, req.DisplayName)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// Login godoc
// @ID          login
// @Summary     Sign in the stored user with an e-mail address
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /session/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email is required")
		return
	}
	u, err := h.Accounts.Login(c.Request.Context(), req.Email)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// Logout godoc
// @ID          logout
// @Summary     End the session
// @Tags        Session
// @Produce     json
// @Success     204  {string} string "No Content"
// @Router      /session/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.Accounts.Logout(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Me godoc
// @ID          me
// @Summary     The signed-in user
// @Tags        Session
// @Produce     json
// @Success     200  {object} domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.Accounts.CurrentUser(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateMe godoc
// @ID          updateMe
// @Summary     Edit the signed-in user's profile
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body    body  handlers.UpdateMeRequest  true  "Fields to change"
// @Success     200  {object} domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Router      /me [patch]
func (h *Handlers) UpdateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.Accounts.UpdateProfile(c.Request.Context(), h.Viewer, services.ProfileUpdate{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Website:     req.Website,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
