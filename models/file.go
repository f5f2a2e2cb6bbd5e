package models

import (
	"context"

	"gorm.io/gorm"
)

const (
	FileTypeCoverFront = "cover_front"
	FileTypeCoverBack  = "cover_back"
	FileTypeSheet      = "sheet"
)

// File is an ingested asset of an album. OrderIndex defines the display order,
// covers conventionally use 0 and 1 and sheets follow. It is not unique.
type File struct {
	ID         uint64 `gorm:"primaryKey" json:"id"`
	AlbumID    uint64 `gorm:"not null;index:album_order,priority:1" json:"albumId"`
	Album      Album  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	FilePath   string `gorm:"type:varchar(2000);not null" json:"filePath"`
	FileType   string `gorm:"type:varchar(30);not null" json:"fileType"`
	OrderIndex int    `gorm:"not null;index:album_order,priority:2" json:"orderIndex"`
	CreatedAt  int64  `json:"-"`
}

// PersistenceError is returned when the store cannot be reached or rejects a write
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence error: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// FileStore records and loads File rows
type FileStore struct {
	DB *gorm.DB
}

func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{DB: db}
}

// RecordFile persists one file and returns it with the new ID.
// Only AlbumID, FilePath, FileType and OrderIndex are taken from the input.
func (s *FileStore) RecordFile(ctx context.Context, in File) (File, error) {
	file := File{
		AlbumID:    in.AlbumID,
		FilePath:   in.FilePath,
		FileType:   in.FileType,
		OrderIndex: in.OrderIndex,
	}
	if err := s.DB.WithContext(ctx).Create(&file).Error; err != nil {
		return File{}, &PersistenceError{Err: err}
	}
	return file, nil
}

// ListFiles returns the files of an album in display order
func (s *FileStore) ListFiles(ctx context.Context, albumID uint64) ([]File, error) {
	files := []File{}
	err := s.DB.WithContext(ctx).
		Where("album_id = ?", albumID).
		Order("order_index ASC, id ASC").
		Find(&files).Error
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return files, nil
}

// DeleteFile removes a single file of the album and returns the removed row
func (s *FileStore) DeleteFile(ctx context.Context, albumID, fileID uint64) (File, error) {
	file := File{}
	err := s.DB.WithContext(ctx).Where("id = ? AND album_id = ?", fileID, albumID).First(&file).Error
	if err != nil {
		return File{}, err
	}
	if err = s.DB.WithContext(ctx).Delete(&file).Error; err != nil {
		return File{}, &PersistenceError{Err: err}
	}
	return file, nil
}
