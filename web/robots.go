package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Albums are shared by link only
func DisallowRobots(c *gin.Context) {
	c.String(http.StatusOK, "User-agent: *\nDisallow: /\n")
}
