package models

import (
	"crypto/subtle"
	"errors"
	"flipbook/db"

	"gorm.io/gorm"
)

const (
	ThemeClassic = "classic"
)

var ErrNoCredits = errors.New("no credits left")

type Album struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"not null;index:user_album_created,priority:1;"`
	User      User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt int64  `gorm:"index:user_album_created,priority:2"`
	Title     string `gorm:"type:varchar(300)"`
	Date      string `gorm:"type:varchar(30)"` // wedding date as entered, e.g. 2026-06-20
	Theme     string `gorm:"type:varchar(50)"`
	Password  string `gorm:"type:varchar(128)"` // empty means public
}

func (a *Album) IsProtected() bool {
	return a.Password != ""
}

func (a *Album) PasswordMatches(password string) bool {
	if !a.IsProtected() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(a.Password), []byte(password)) == 1
}

// AlbumCreate takes one credit from the user and creates the album, both or neither
func AlbumCreate(user *User, album *Album) error {
	album.UserID = user.ID
	if album.Theme == "" {
		album.Theme = ThemeClassic
	}
	return db.Instance.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&User{}).
			Where("id = ? AND credits > 0", user.ID).
			UpdateColumn("credits", gorm.Expr("credits - 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrNoCredits
		}
		if err := tx.Create(album).Error; err != nil {
			return err
		}
		user.Credits--
		return nil
	})
}

// AlbumFind loads an album owned by userID
func AlbumFind(userID, albumID uint64) (album Album, err error) {
	err = db.Instance.Where("id = ? AND user_id = ?", albumID, userID).First(&album).Error
	return
}

// AlbumDelete removes the album and its files. The deleted files are returned so
// their stored content can be cleaned up by the caller.
func AlbumDelete(userID, albumID uint64) (files []File, err error) {
	err = db.Instance.Transaction(func(tx *gorm.DB) error {
		album := Album{}
		if err := tx.Where("id = ? AND user_id = ?", albumID, userID).First(&album).Error; err != nil {
			return err
		}
		if err := tx.Where("album_id = ?", album.ID).Order("order_index ASC, id ASC").Find(&files).Error; err != nil {
			return err
		}
		if err := tx.Where("album_id = ?", album.ID).Delete(&File{}).Error; err != nil {
			return err
		}
		return tx.Delete(&album).Error
	})
	if err != nil {
		files = nil
	}
	return
}
