package models

import (
	"flipbook/db"
)

func Init() error {
	return db.Instance.AutoMigrate(&User{}, &Album{}, &File{})
}
