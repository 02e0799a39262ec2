package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	heartbeatdomain "github.com/geoinfo-winterthur/cadusage/internal/heartbeat/domain"
)

// ping runs one heartbeat. CAD clients in the field disagree on the
// casing of the query parameters, so both spellings are accepted.
func (s *Server) ping(c *gin.Context) {
	hb := heartbeatdomain.Heartbeat{
		UserName:   firstQuery(c, "userName", "username"),
		DomainName: firstQuery(c, "domainName", "domainname"),
		AppCode:    firstQuery(c, "appCode", "appcode"),
		Version:    firstQuery(c, "version", "Version"),
	}

	_, err := s.heartbeatSvc.Record(c.Request.Context(), hb)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, heartbeatdomain.ErrMissingUserName):
		c.String(http.StatusBadRequest, "No user name provided")
	case errors.Is(err, heartbeatdomain.ErrMissingDomainName):
		c.String(http.StatusBadRequest, "No domain name provided")
	case errors.Is(err, heartbeatdomain.ErrMissingAppCode):
		c.String(http.StatusBadRequest, "No app code provided")
	default:
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "Internal Server Error")
	}
}

func firstQuery(c *gin.Context, names ...string) string {
	for _, name := range names {
		if value, ok := c.GetQuery(name); ok && value != "" {
			return value
		}
	}
	return ""
}
