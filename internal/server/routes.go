package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity headers injected by the platform's auth layer in front of this
// service. Drydock does not authenticate participants itself; it trusts
// these headers plus the shared tokens.
const (
	headerUser = "X-Drydock-User"
	headerTeam = "X-Drydock-Team"
)

// registerRoutes sets up all API and page routes on the gin router.
func registerRoutes(router *gin.Engine, opts *StartOpts) {
	h := &handlers{opts: opts}

	api := router.Group("/api")

	participant := api.Group("")
	participant.Use(participantAuth(opts.Auth.ParticipantToken))
	participant.GET("/challenges", h.challenges)
	participant.POST("/running", h.running)
	participant.POST("/request", h.request)
	participant.POST("/renew", h.renew)
	participant.POST("/reset", h.reset)
	participant.POST("/stop", h.stop)
	participant.POST("/solve", h.solve)

	admin := api.Group("")
	admin.Use(adminAuth(opts.Auth.AdminToken))
	admin.POST("/kill", h.kill)
	admin.POST("/purge", h.purge)
	admin.GET("/images", h.images)
	admin.POST("/settings/update", h.updateSettings)
	admin.POST("/challenges/update", h.updateChallenge)

	pages := router.Group("")
	pages.Use(adminAuth(opts.Auth.AdminToken))
	pages.GET("/dashboard", h.dashboard)
	pages.GET("/settings", h.settingsPage)
}

// participantAuth checks the shared participant token, when one is
// configured, and requires a user identity header.
func participantAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" && bearerToken(c) != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if c.GetHeader(headerUser) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		c.Next()
	}
}

// adminAuth requires the admin bearer token.
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || bearerToken(c) != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

// identity extracts the caller's user and team IDs from the injected headers.
func identity(c *gin.Context) (userID, teamID uint) {
	if v, err := strconv.ParseUint(c.GetHeader(headerUser), 10, 32); err == nil {
		userID = uint(v)
	}
	if v, err := strconv.ParseUint(c.GetHeader(headerTeam), 10, 32); err == nil {
		teamID = uint(v)
	}
	return userID, teamID
}
