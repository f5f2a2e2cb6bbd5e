package handlers

import (
	"errors"
	"flipbook/models"
	"flipbook/processing"
	"flipbook/storage"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// multipart overhead allowed on top of the file payloads
const formOverhead = 1 << 20

type ManifestFile struct {
	FilePath   string `json:"filePath"`
	FileType   string `json:"fileType"`
	OrderIndex int    `json:"orderIndex"`
}

// ManifestRequest lists files the client has already hosted. A nil Files means the
// body carried no manifest at all.
type ManifestRequest struct {
	Files *[]ManifestFile `json:"files"`
}

// Files serves the ingestion endpoint and the per-album file operations
type Files struct {
	Pipeline    *processing.Pipeline
	Store       *models.FileStore
	Placers     []storage.Placer
	MaxFiles    int
	MaxFileSize int64
}

func (h *Files) loadAlbum(c *gin.Context, user *models.User) (album models.Album, ok bool) {
	albumID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || albumID == 0 {
		c.JSON(http.StatusBadRequest, Response{"bad album id"})
		return
	}
	album, err = models.AlbumFind(user.ID, albumID)
	if err != nil {
		albumLookupFailed(c, err)
		return
	}
	return album, true
}

// Upload adds files to an album. A JSON body with a "files" array is recorded as is,
// anything else must be a multipart form carrying one or more "files" parts.
func (h *Files) Upload(c *gin.Context, user *models.User) {
	album, ok := h.loadAlbum(c, user)
	if !ok {
		return
	}
	if c.ContentType() == binding.MIMEJSON {
		h.uploadManifest(c, &album)
		return
	}
	h.uploadParts(c, &album)
}

func (h *Files) uploadManifest(c *gin.Context, album *models.Album) {
	r := ManifestRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		if errors.Is(err, io.EOF) {
			abortWithError(c, processing.ErrNoDataReceived)
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{"bad request", err.Error()})
		return
	}
	if r.Files == nil {
		abortWithError(c, fmt.Errorf("%w: expected a files array or a multipart upload", processing.ErrNoDataReceived))
		return
	}
	entries := make([]processing.ManifestEntry, len(*r.Files))
	for i, f := range *r.Files {
		if f.FilePath == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{"bad request", fmt.Sprintf("file %d has no filePath", i)})
			return
		}
		if f.OrderIndex < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{"bad request", fmt.Sprintf("file %d has a negative orderIndex", i)})
			return
		}
		entries[i] = processing.ManifestEntry{FilePath: f.FilePath, FileType: f.FileType, OrderIndex: f.OrderIndex}
	}
	files, err := h.Pipeline.RecordManifest(c.Request.Context(), album.ID, entries)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Files) uploadParts(c *gin.Context, album *models.Album) {
	if h.MaxFiles > 0 && h.MaxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.MaxFiles)*h.MaxFileSize+formOverhead)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{"request too large", err.Error()})
			return
		}
		abortWithError(c, fmt.Errorf("%w: %v", processing.ErrNoDataReceived, err))
		return
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		abortWithError(c, processing.ErrNoDataReceived)
		return
	}
	if h.MaxFiles > 0 && len(parts) > h.MaxFiles {
		c.JSON(http.StatusBadRequest, ErrorResponse{"too many files", fmt.Sprintf("%d files sent, at most %d allowed", len(parts), h.MaxFiles)})
		return
	}
	items := make([]processing.Item, len(parts))
	for i, part := range parts {
		if h.MaxFileSize > 0 && part.Size > h.MaxFileSize {
			c.JSON(http.StatusBadRequest, ErrorResponse{"file too large", fmt.Sprintf("%s is %d bytes, at most %d allowed", part.Filename, part.Size, h.MaxFileSize)})
			return
		}
		// Content is read by the pipeline one window at a time
		items[i] = processing.Item{
			Index:    i,
			Name:     part.Filename,
			MimeType: part.Header.Get("Content-Type"),
			FileType: formValue(form, "fileType_"+strconv.Itoa(i)),
			Open: func() (io.ReadCloser, error) {
				return part.Open()
			},
		}
	}
	files, err := h.Pipeline.Upload(c.Request.Context(), album.ID, items)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h *Files) List(c *gin.Context, user *models.User) {
	album, ok := h.loadAlbum(c, user)
	if !ok {
		return
	}
	files, err := h.Store.ListFiles(c.Request.Context(), album.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, files)
}

// Delete removes a single file record and then its stored content, if this server placed it
func (h *Files) Delete(c *gin.Context, user *models.User) {
	album, ok := h.loadAlbum(c, user)
	if !ok {
		return
	}
	fileID, err := strconv.ParseUint(c.Param("file"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{"bad file id"})
		return
	}
	file, err := h.Store.DeleteFile(c.Request.Context(), album.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, NotFoundResponse)
			return
		}
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	h.removeContent(c, file)
	c.JSON(http.StatusOK, OKResponse)
}

// DeleteAlbum removes the album with all its files
func (h *Files) DeleteAlbum(c *gin.Context, user *models.User) {
	r := AlbumIDRequest{}
	if err := c.ShouldBindWith(&r, binding.Form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files, err := models.AlbumDelete(user.ID, r.AlbumID)
	if err != nil {
		albumLookupFailed(c, err)
		return
	}
	for _, file := range files {
		h.removeContent(c, file)
	}
	c.JSON(http.StatusOK, OKResponse)
}

// removeContent is best effort: the record is already gone and manifest paths are not ours
func (h *Files) removeContent(c *gin.Context, file models.File) {
	err := storage.Remove(c.Request.Context(), file.FilePath, h.Placers...)
	if err != nil && !errors.Is(err, storage.ErrUnknownLocator) {
		log.Warn().Err(err).Uint64("album_id", file.AlbumID).Str("path", file.FilePath).Msg("stored content not removed")
	}
}
