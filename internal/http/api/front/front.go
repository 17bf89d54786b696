package front

import (
	"github.com/gin-gonic/gin"
	handlers "github.com/router-for-me/GymDesk/internal/http/api/front/handlers"
	"github.com/router-for-me/GymDesk/internal/store"
)

// RegisterFrontRoutes registers the unauthenticated public routes.
func RegisterFrontRoutes(r *gin.Engine, st *store.Store) {
	if r == nil || st == nil {
		return
	}
	front := r.Group("/v0/front")

	planHandler := handlers.NewPlanFrontHandler(st)
	front.GET("/plans", planHandler.List)
}
