package app

import (
	"net/http"

	"github.com/andorinha-digital/core/internal/middleware"
	"github.com/andorinha-digital/core/internal/modules/cases"
	"github.com/andorinha-digital/core/internal/modules/offering"
	"github.com/andorinha-digital/core/internal/modules/post"
	"github.com/andorinha-digital/core/internal/modules/user"
	"github.com/andorinha-digital/core/internal/modules/webhook"
	pkgredis "github.com/andorinha-digital/core/internal/pkg/redis"
	"github.com/andorinha-digital/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(db)
	adminMW := middleware.RequireAdmin()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "andorinha-core",
		"version": "1.0.0",
	}

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	api := r.Group("/api/v2")

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })

	userSvc := user.NewService(db, a.hooks)
	user.NewHandler(userSvc).RegisterRoutes(api, authMW, adminMW)

	postSvc := post.NewService(db, a.hooks)
	post.NewHandler(postSvc, userSvc).RegisterRoutes(api, authMW)

	cases.NewHandler(cases.NewService(db, a.hooks)).RegisterRoutes(api, authMW)
	offering.NewHandler(offering.NewService(db, a.hooks)).RegisterRoutes(api, authMW)

	webhook.NewHandler(a.hooks).RegisterRoutes(api, authMW, adminMW)
}
