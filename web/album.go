package web

import (
	"errors"
	"flipbook/db"
	"flipbook/handlers"
	"flipbook/models"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const passwordHeader = "X-Album-Password"

// AlbumView returns what the flipbook viewer needs to render an album.
// Protected albums require the password in the "password" query or the X-Album-Password header.
func AlbumView(store *models.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		albumID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, handlers.NotFoundResponse)
			return
		}
		album := models.Album{}
		if err = db.Instance.Preload("User").First(&album, albumID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, handlers.NotFoundResponse)
				return
			}
			c.JSON(http.StatusInternalServerError, handlers.DBError1Response)
			return
		}
		password := c.Query("password")
		if password == "" {
			password = c.GetHeader(passwordHeader)
		}
		if !album.PasswordMatches(password) {
			c.Header("cache-control", "no-store")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "password required", "protected": true})
			return
		}
		files, err := store.ListFiles(c.Request.Context(), album.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, handlers.DBError2Response)
			return
		}
		if album.IsProtected() {
			c.Header("cache-control", "no-store")
		}
		c.JSON(http.StatusOK, gin.H{
			"ownerName": album.User.Name,
			"title":     album.Title,
			"date":      album.Date,
			"theme":     album.Theme,
			"protected": album.IsProtected(),
			"files":     files,
		})
	}
}
