package main

import (
	"github.com/gin-gonic/gin"
)

// setupRoutes configures all routes for the application
func setupRoutes(appServer *AppServer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(errorHandlingMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", appServer.healthHandler)

	api := router.Group("/api/v1")
	api.Use(authMiddleware(appServer.token))
	api.POST("/jobs", appServer.createJobHandler)

	return router
}
