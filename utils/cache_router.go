package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	CacheNoCache = 0
)

// CacheControl sets the cache-control header of every response going through it.
// Handlers running later can still override the header.
func CacheControl(seconds int) gin.HandlerFunc {
	value := "no-cache"
	if seconds != CacheNoCache {
		value = "private, max-age=" + strconv.Itoa(seconds)
	}
	return func(c *gin.Context) {
		c.Header("cache-control", value)
		c.Next()
	}
}
