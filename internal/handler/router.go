package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/middleware"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
)

// Services groups everything the router needs.
type Services struct {
	Activation *service.ActivationService
	Auth       *service.AuthService
	Users      *service.UserService
	Perms      *service.PermissionService
	Files      *service.FileService
	Metrics    *service.MetricsService
}

// Register mounts every API route under the given group.
func Register(api *gin.RouterGroup, svcs Services, filesCfg config.FilesConfig) {
	authHandler := NewAuthHandler(svcs.Activation, svcs.Auth)
	userHandler := NewUserHandler(svcs.Activation, svcs.Users, svcs.Perms)
	roleHandler := NewRoleHandler(svcs.Perms)
	fileHandler := NewFileHandler(svcs.Files, svcs.Metrics, filesCfg)

	auth := api.Group("/auth")
	{
		auth.POST("/verify-identity", authHandler.VerifyIdentity)
		auth.POST("/request-otp", authHandler.RequestOTP)
		auth.POST("/activate", authHandler.Activate)
		auth.POST("/login", authHandler.Login)
	}

	session := middleware.Session(svcs.Auth)

	authed := api.Group("/auth", session)
	{
		authed.GET("/me", authHandler.Me)
		authed.POST("/logout", authHandler.Logout)
	}

	files := api.Group("/files")
	{
		// The signed token is the credential here, not a session.
		files.GET("/:id/download", fileHandler.Download)

		protected := files.Group("", session)
		protected.GET("", fileHandler.List)
		protected.GET("/stats", fileHandler.Stats)
		protected.GET("/export", fileHandler.Export)
		protected.GET("/:id", fileHandler.Get)
		protected.GET("/:id/link", fileHandler.Link)
		protected.POST("", middleware.RequirePermission(svcs.Perms, models.PermUpload), fileHandler.Upload)
		protected.DELETE("/:id", middleware.RequirePermission(svcs.Perms, models.PermDelete), fileHandler.Delete)
	}

	admin := api.Group("", session, middleware.RequireAdmin())
	{
		admin.POST("/users", userHandler.PreRegister)
		admin.GET("/users", userHandler.List)
		admin.GET("/users/:id", userHandler.Get)
		admin.GET("/users/:id/permissions", userHandler.Permissions)
		admin.GET("/users/:id/roles", userHandler.Roles)

		admin.GET("/roles", roleHandler.List)
		admin.POST("/roles", roleHandler.Create)
		admin.GET("/roles/:id", roleHandler.Get)
		admin.PUT("/roles/:id", roleHandler.Update)
		admin.DELETE("/roles/:id", roleHandler.Delete)
		admin.POST("/roles/:id/assignments", roleHandler.Assign)
		admin.DELETE("/roles/:id/assignments/:userId", roleHandler.Unassign)
	}
}
