package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// pinger is satisfied by *db.Client.
type pinger interface {
	Ping(ctx context.Context) error
}

// newHealthRouter serves GET /healthz, reporting whether the database
// answers a ping.
func newHealthRouter(db pinger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}
