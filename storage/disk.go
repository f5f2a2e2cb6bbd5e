package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// DiskStorage places content under a local directory, served by the web server under URLPrefix
type DiskStorage struct {
	// BasePath is a directory that is writable by the current process
	BasePath  string
	URLPrefix string
	dirs      cmap.ConcurrentMap[string, bool]
	now       func() time.Time
}

func NewDiskStorage(basePath, urlPrefix string) *DiskStorage {
	return &DiskStorage{
		BasePath:  basePath,
		URLPrefix: "/" + strings.Trim(urlPrefix, "/"),
		dirs:      cmap.New[bool](),
		now:       time.Now,
	}
}

func (s *DiskStorage) createDir(dir string) error {
	if s.dirs.Has(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	s.dirs.Set(dir, true)
	return nil
}

// relativePath is <album>/<timestamp>_<index><ext>. The timestamp and index
// make it unique within one batch, so each file is written only once.
func (s *DiskStorage) relativePath(obj Object) string {
	name := strconv.FormatInt(s.now().UnixNano(), 10) + "_" + strconv.Itoa(obj.Index) + obj.Ext
	return path.Join(strconv.FormatUint(obj.AlbumID, 10), name)
}

func (s *DiskStorage) getFullPath(rel string) string {
	return filepath.Join(s.BasePath, filepath.FromSlash(rel))
}

func (s *DiskStorage) Place(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := s.relativePath(obj)
	fileName := s.getFullPath(rel)
	if err := s.createDir(filepath.Dir(fileName)); err != nil {
		return "", err
	}
	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}
	_, err = file.Write(obj.Data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fileName)
		return "", err
	}
	return s.URLPrefix + "/" + rel, nil
}

func (s *DiskStorage) Owns(locator string) bool {
	return strings.HasPrefix(locator, s.URLPrefix+"/")
}

func (s *DiskStorage) Remove(ctx context.Context, locator string) error {
	if !s.Owns(locator) {
		return ErrUnknownLocator
	}
	rel := strings.TrimPrefix(locator, s.URLPrefix+"/")
	if rel == "" || strings.Contains(rel, "..") {
		return fmt.Errorf("invalid locator %q", locator)
	}
	err := os.Remove(s.getFullPath(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
