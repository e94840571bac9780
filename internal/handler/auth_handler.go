package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/middleware"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/response"
)

// AuthHandler wires HTTP endpoints to the activation and auth services.
type AuthHandler struct {
	activation *service.ActivationService
	auth       *service.AuthService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(activation *service.ActivationService, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{activation: activation, auth: auth}
}

// VerifyIdentity godoc
// @Summary Verify pre-registered identity
// @Description Check an external id and full name against the pre-registered record
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.VerifyIdentityRequest true "Identity payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /auth/verify-identity [post]
func (h *AuthHandler) VerifyIdentity(c *gin.Context) {
	var req models.VerifyIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verify payload"))
		return
	}

	res, err := h.activation.VerifyIdentity(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// RequestOTP godoc
// @Summary Request an activation code
// @Description Issue a one-time code and deliver it by email
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RequestOTPRequest true "OTP request payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/request-otp [post]
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req models.RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid otp request payload"))
		return
	}

	res, err := h.activation.RequestActivation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Activate godoc
// @Summary Activate an account
// @Description Complete activation with the mailed code and a chosen password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ActivateRequest true "Activation payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /auth/activate [post]
func (h *AuthHandler) Activate(c *gin.Context) {
	var req models.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid activation payload"))
		return
	}

	if err := h.activation.Activate(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"activated": true}, nil)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password, issuing an opaque session token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Me godoc
// @Summary Current identity
// @Description Return the identity resolved from the presented session token
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, identity, nil)
}

// Logout godoc
// @Summary End the current session
// @Description Destroy the presented session token; repeat calls succeed
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 204 "session destroyed"
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.ContextTokenKey)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
