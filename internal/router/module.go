package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Module mounts a feature's routes on the API group.
type Module interface {
	Register(rg *gin.RouterGroup)
}

// ModuleFunc adapts a plain function to Module.
type ModuleFunc func(rg *gin.RouterGroup)

func (f ModuleFunc) Register(rg *gin.RouterGroup) { f(rg) }

// healthModule answers liveness probes on GET /health.
func healthModule(appName string) Module {
	return ModuleFunc(func(rg *gin.RouterGroup) {
		rg.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "app": appName})
		})
	})
}
