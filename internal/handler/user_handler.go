package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/response"
)

// UserHandler exposes the administrative user endpoints.
type UserHandler struct {
	activation *service.ActivationService
	users      *service.UserService
	perms      *service.PermissionService
}

// NewUserHandler creates a new handler.
func NewUserHandler(activation *service.ActivationService, users *service.UserService, perms *service.PermissionService) *UserHandler {
	return &UserHandler{activation: activation, users: users, perms: perms}
}

// PreRegister godoc
// @Summary Pre-register a user
// @Description Create an inactive account holding only the external id and full name
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.PreRegisterRequest true "Pre-register payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) PreRegister(c *gin.Context) {
	var req models.PreRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pre-register payload"))
		return
	}

	user, err := h.activation.PreRegister(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// List godoc
// @Summary List users
// @Description List users with filtering and pagination
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param search query string false "Search by name, id or email"
// @Param active query bool false "Filter by active flag"
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if raw, ok := c.GetQuery("active"); ok {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}

	users, pagination, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get one user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path int true "Internal user id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid user id"))
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Permissions godoc
// @Summary Effective permissions for a user
// @Description Merge of every assigned role's grants over the denied baseline
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path int true "Internal user id"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/permissions [get]
func (h *UserHandler) Permissions(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid user id"))
		return
	}

	perms, err := h.perms.EffectivePermissions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, perms, nil)
}

// Roles godoc
// @Summary Roles assigned to a user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path int true "Internal user id"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/roles [get]
func (h *UserHandler) Roles(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid user id"))
		return
	}

	roles, err := h.perms.UserRoles(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}
