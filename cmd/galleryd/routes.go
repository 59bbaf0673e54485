package main

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/gallerysync/cmd/galleryd/handlers"
	"github.com/opst/gallerysync/pkg/auth"
)

type routes struct {
	query    handlers.GalleryReader
	syncer   handlers.Syncer
	tagger   handlers.Tagger
	authz    auth.Authorizer
	identify func(token string) (auth.Identity, error)
}

func (r routes) register(e *echo.Echo) {
	e.Pre(middleware.RemoveTrailingSlash())

	api := e.Group("/api/gallery")
	api.GET("", handlers.GetGalleryHandler(r.query))

	adminOnly := handlers.AdminOnly(r.authz, r.identify)
	api.POST("/sync", handlers.PostSyncHandler(r.syncer), adminOnly)
	api.GET("/sync", handlers.GetSyncHandler(r.syncer), adminOnly)
	api.POST("/week", handlers.PostWeekHandler(r.tagger), adminOnly)
}
