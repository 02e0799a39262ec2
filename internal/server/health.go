package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Service works."})
}

// fallback mirrors the route handling of the deployments behind path
// rewriting proxies: any path ending in "ping" reaches the heartbeat
// handler, everything else answers as a health probe. The configured
// health alias is one such rewritten path.
func (s *Server) fallback(c *gin.Context) {
	path := strings.Trim(c.Request.URL.Path, "/")
	if strings.HasSuffix(path, "ping") {
		s.ping(c)
		return
	}
	s.health(c)
}
