package handlers

import (
	"errors"
	"flipbook/db"
	"flipbook/models"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type AlbumInfo struct {
	ID        uint64 `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Theme     string `json:"theme"`
	Protected bool   `json:"protected"`
	Password  string `json:"password,omitempty"`
	Files     int64  `json:"files"`
	CreatedAt int64  `json:"created_at"`
}

type AlbumCreateRequest struct {
	Title    string `form:"title" binding:"required,max=300"`
	Date     string `form:"date" binding:"max=30"`
	Theme    string `form:"theme" binding:"max=50"`
	Password string `form:"password" binding:"max=128"`
}

type AlbumSaveRequest struct {
	AlbumID  uint64  `form:"album_id" binding:"required"`
	Title    *string `form:"title" binding:"omitempty,max=300"`
	Date     *string `form:"date" binding:"omitempty,max=30"`
	Theme    *string `form:"theme" binding:"omitempty,max=50"`
	Password *string `form:"password" binding:"omitempty,max=128"`
}

type AlbumIDRequest struct {
	AlbumID uint64 `form:"album_id" binding:"required"`
}

// albumInfo renders an album, the password is only shown to its owner
func albumInfo(a *models.Album, files int64, owner bool) AlbumInfo {
	info := AlbumInfo{
		ID:        a.ID,
		Title:     a.Title,
		Date:      a.Date,
		Theme:     a.Theme,
		Protected: a.IsProtected(),
		Files:     files,
		CreatedAt: a.CreatedAt,
	}
	if owner {
		info.Password = a.Password
	}
	return info
}

func AlbumList(c *gin.Context, user *models.User) {
	rows, err := db.Instance.
		Table("albums").
		Select("albums.id, albums.title, albums.date, albums.theme, albums.password, albums.created_at, count(files.id)").
		Joins("left join files on files.album_id = albums.id").
		Where("albums.user_id = ?", user.ID).
		Group("albums.id, albums.title, albums.date, albums.theme, albums.password, albums.created_at").
		Order("albums.created_at DESC, albums.id DESC").
		Rows()
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	defer rows.Close()
	result := []AlbumInfo{}
	for rows.Next() {
		album := models.Album{}
		var count int64
		if err = rows.Scan(&album.ID, &album.Title, &album.Date, &album.Theme, &album.Password, &album.CreatedAt, &count); err != nil {
			c.JSON(http.StatusInternalServerError, DBError2Response)
			return
		}
		result = append(result, albumInfo(&album, count, true))
	}
	c.JSON(http.StatusOK, result)
}

func AlbumGet(c *gin.Context, user *models.User) {
	r := AlbumIDRequest{}
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	album, err := models.AlbumFind(user.ID, r.AlbumID)
	if err != nil {
		albumLookupFailed(c, err)
		return
	}
	var count int64
	if err = db.Instance.Model(&models.File{}).Where("album_id = ?", album.ID).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError2Response)
		return
	}
	c.JSON(http.StatusOK, albumInfo(&album, count, true))
}

func AlbumCreate(c *gin.Context, user *models.User) {
	r := AlbumCreateRequest{}
	if err := c.ShouldBindWith(&r, binding.Form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	album := models.Album{
		Title:    r.Title,
		Date:     r.Date,
		Theme:    r.Theme,
		Password: r.Password,
	}
	if err := models.AlbumCreate(user, &album); err != nil {
		if errors.Is(err, models.ErrNoCredits) {
			c.JSON(http.StatusPaymentRequired, Response{err.Error()})
			return
		}
		log.Error().Err(err).Uint64("user_id", user.ID).Msg("album create")
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, albumInfo(&album, 0, true))
}

func AlbumSave(c *gin.Context, user *models.User) {
	r := AlbumSaveRequest{}
	if err := c.ShouldBindWith(&r, binding.Form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	album, err := models.AlbumFind(user.ID, r.AlbumID)
	if err != nil {
		albumLookupFailed(c, err)
		return
	}
	if r.Title != nil && *r.Title != "" {
		album.Title = *r.Title
	}
	if r.Date != nil {
		album.Date = *r.Date
	}
	if r.Theme != nil && *r.Theme != "" {
		album.Theme = *r.Theme
	}
	if r.Password != nil {
		album.Password = *r.Password
	}
	err = db.Instance.Model(&album).Updates(map[string]any{
		"title":    album.Title,
		"date":     album.Date,
		"theme":    album.Theme,
		"password": album.Password,
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError2Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

func albumLookupFailed(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	c.JSON(http.StatusInternalServerError, DBError3Response)
}
