package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/calsync/internal/client/handlers"
	"github.com/openmined/calsync/internal/client/middleware"
	"github.com/openmined/calsync/internal/version"
)

const defaultRateLimit = "10-S"

type RouteConfig struct {
	Auth      middleware.TokenAuthConfig
	Mode      string
	RateLimit string
}

func SetupRoutes(syncSvc handlers.SyncService, reloadSvc handlers.ReloadService, routeConfig *RouteConfig) http.Handler {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	rate := routeConfig.RateLimit
	if rate == "" {
		rate = defaultRateLimit
	}

	syncH := handlers.NewSyncHandler(syncSvc, reloadSvc, routeConfig.Mode)

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.RateLimiter(rate))

	r.GET("/", IndexHandler)
	r.GET("/health", func(c *gin.Context) {
		c.PureJSON(http.StatusOK, handlers.ControlPlaneResponse{Code: handlers.CodeOk})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", syncH.Status)
		v1.POST("/reload", syncH.Reload)

		v1Sync := v1.Group("/sync")
		{
			v1Sync.POST("/now", syncH.Now)
			v1Sync.POST("/now/:index", syncH.NowEntry)
			v1Sync.GET("/history", syncH.History)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":      version.AppName,
		"version":  version.Version,
		"revision": version.Revision,
		"detailed": version.Detailed(),
	})
}
