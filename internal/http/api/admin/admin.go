package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/config"
	handlers "github.com/router-for-me/GymDesk/internal/http/api/admin/handlers"
	"github.com/router-for-me/GymDesk/internal/http/api/admin/permissions"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/ratelimit"
	"github.com/router-for-me/GymDesk/internal/reconcile"
	"github.com/router-for-me/GymDesk/internal/security"
	"github.com/router-for-me/GymDesk/internal/store"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, st *store.Store, engine *reconcile.Engine, jwtCfg config.JWTConfig, limiter *ratelimit.Manager) {
	if r == nil || st == nil || engine == nil {
		return
	}
	db := st.DB()

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(st, jwtCfg))
	authed.Use(adminPermissionMiddleware())

	memberHandler := handlers.NewMemberHandler(st, engine)
	authed.POST("/members", memberHandler.Create)
	authed.GET("/members", memberHandler.List)
	authed.GET("/members/next-code", memberHandler.NextCode)
	authed.GET("/members/:id", memberHandler.Get)
	authed.PUT("/members/:id", memberHandler.Update)

	membershipHandler := handlers.NewMembershipHandler(st, engine, limiter)
	authed.GET("/memberships", membershipHandler.List)
	authed.POST("/memberships/sweep", membershipHandler.Sweep)
	authed.GET("/memberships/:id", membershipHandler.Get)
	authed.GET("/memberships/:id/balance", membershipHandler.Balance)
	authed.GET("/memberships/:id/periods", membershipHandler.Periods)
	authed.POST("/memberships/:id/payments", membershipHandler.CollectPayment)

	paymentHandler := handlers.NewPaymentHandler(st, engine)
	authed.POST("/payments", paymentHandler.Create)
	authed.GET("/payments", paymentHandler.List)
	authed.GET("/payments/:id", paymentHandler.Get)

	attendanceHandler := handlers.NewAttendanceHandler(st)
	authed.POST("/attendance", attendanceHandler.Create)
	authed.GET("/attendance", attendanceHandler.List)
	authed.GET("/attendance/:id", attendanceHandler.Get)
	authed.PUT("/attendance/:id", attendanceHandler.Update)
	authed.POST("/attendance/:id/checkout", attendanceHandler.CheckOut)
	authed.DELETE("/attendance/:id", attendanceHandler.Delete)

	planHandler := handlers.NewPlanHandler(st)
	authed.POST("/plans", planHandler.Create)
	authed.GET("/plans", planHandler.List)
	authed.GET("/plans/:id", planHandler.Get)
	authed.PUT("/plans/:id", planHandler.Update)
	authed.DELETE("/plans/:id", planHandler.Delete)
	authed.POST("/plans/:id/enable", planHandler.Enable)
	authed.POST("/plans/:id/disable", planHandler.Disable)

	settingHandler := handlers.NewSettingHandler(db)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	adminHandler := handlers.NewAdminHandler(db)
	authed.POST("/admins", adminHandler.Create)
	authed.GET("/admins", adminHandler.List)
	authed.GET("/admins/:id", adminHandler.Get)
	authed.PUT("/admins/:id", adminHandler.Update)
	authed.POST("/admins/:id/disable", adminHandler.Disable)
	authed.POST("/admins/:id/enable", adminHandler.Enable)
	authed.PUT("/admins/:id/password", adminHandler.ChangePassword)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(st *store.Store, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := st.DB().WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Set("adminPermissions", permissions.ParsePermissions(admin.Permissions))
		c.Set("adminIsSuperAdmin", admin.IsSuperAdmin)
		c.Next()
	}
}

// adminPermissionMiddleware rejects routes the signed-in admin was not
// granted. Super admins pass every check.
func adminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool("adminIsSuperAdmin") {
			c.Next()
			return
		}
		granted, _ := c.Get("adminPermissions")
		perms, _ := granted.([]string)
		if !permissions.HasPermission(perms, permissions.Key(c.Request.Method, c.FullPath())) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}
