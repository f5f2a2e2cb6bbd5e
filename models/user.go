package models

import (
	"errors"
	"flipbook/db"
	"flipbook/utils"
	"strings"
)

type User struct {
	ID        uint64 `gorm:"primaryKey"`
	CreatedAt int64
	UpdatedAt int64
	Name      string `gorm:"type:varchar(100)"`
	Email     string `gorm:"type:varchar(150);index:uniq_email,unique"`
	Password  string `gorm:"type:varchar(128)"`
	PassSalt  string `gorm:"type:varchar(200)"`
	// Each album creation consumes one credit
	Credits int `gorm:"not null;default:0"`
}

const (
	saltSize = 60
)

var ErrInvalidLogin = errors.New("invalid email or password")

func UserCreate(name, email, plainTextPassword string, credits int) (u User, err error) {
	u.Email = strings.ToLower(strings.TrimSpace(email))
	u.Name = name
	u.Credits = credits
	u.SetPassword(plainTextPassword)
	return u, db.Instance.Create(&u).Error
}

func (u *User) SetPassword(plainTextPassword string) {
	u.PassSalt = utils.RandSalt(saltSize)
	u.Password = utils.Sha512String(plainTextPassword + u.PassSalt)
}

func UserLogin(email, plainTextPassword string) (u User, err error) {
	result := db.Instance.First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if result.Error != nil {
		return User{}, ErrInvalidLogin
	}
	if u.Password != utils.Sha512String(plainTextPassword+u.PassSalt) {
		return User{}, ErrInvalidLogin
	}
	return u, nil
}
