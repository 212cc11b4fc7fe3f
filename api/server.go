package api

import (
	"github.com/gin-gonic/gin"

	"marketbrief/checkpoint"
	"marketbrief/orchestrator"
)

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(svc *orchestrator.Service, store checkpoint.Store) *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	// Register resource routers
	RegisterInsightRoutes(r, svc, store)
	RegisterHealthRoutes(r)
	return r
}
