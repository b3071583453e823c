// Package router assembles the gin engine from the registered modules.
package router

import (
	"net/http"
	"strings"
	"time"

	apphttp "adecis_backend/internal/http"
	"adecis_backend/platform/config"
	"adecis_backend/platform/httpkit"
	"adecis_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// App bundles the dependencies the router needs from the composition root.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Modules []apphttp.Module
}

// New builds the gin engine, mounts shared middleware, and lets each module
// register its routes.
func New(app *App) *gin.Engine {
	if !strings.EqualFold(app.Config.Env, "development") {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     app.Config.GetCORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")

	// 60 req/min per IP on the authenticated dashboard surface.
	apiLimiter := httpkit.NewIPRateLimiter(rate.Limit(1), 60, app.Logger)
	protected := v1.Group("")
	protected.Use(apiLimiter.RateLimit())
	protected.Use(httpkit.AuthRequired(app.Config))

	ctx := &apphttp.RouterContext{
		Engine:    engine,
		V1:        v1,
		Protected: protected,
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(ctx)
		app.Logger.Info("module routes registered", "module", module.Name())
	}

	return engine
}
