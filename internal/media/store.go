// Package media keeps uploaded avatars and message attachments on
// local disk, handing back public identifiers the API can serve later.
package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"parley/internal/core"
	"parley/internal/domain"
)

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("media: file too large")

// Store persists uploaded files and resolves them back by public id.
type Store interface {
	Save(fh *multipart.FileHeader) (domain.Attachment, error)
	Open(publicID string) (*os.File, string, error)
	Remove(publicID string) error
}

// DiskStore writes files under a single base directory, one file per
// upload, named by a generated id so original filenames never collide
// or escape the directory.
type DiskStore struct {
	dir     string
	baseURL string
	maxSize int64
}

func NewDiskStore(dir, baseURL string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}, nil
}

// Save streams the upload to disk and returns its public handle.
func (d *DiskStore) Save(fh *multipart.FileHeader) (domain.Attachment, error) {
	if fh.Size > d.maxSize {
		return domain.Attachment{}, ErrTooLarge
	}
	name := filepath.Base(fh.Filename)
	if name == "" || name == "." || name == ".." {
		return domain.Attachment{}, fmt.Errorf("media: invalid filename: %w", core.ErrInvalidRequest)
	}

	src, err := fh.Open()
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("media: open upload: %w", err)
	}
	defer src.Close()

	publicID := uuid.NewString() + sanitizeExt(filepath.Ext(name))
	path := filepath.Join(d.dir, publicID)
	dst, err := os.Create(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("media: create file: %w", err)
	}
	defer dst.Close()

	// MaxBytesReader is not available here, so cap the copy ourselves.
	written, err := io.Copy(dst, io.LimitReader(src, d.maxSize+1))
	if err != nil {
		os.Remove(path)
		return domain.Attachment{}, fmt.Errorf("media: write file: %w", err)
	}
	if written > d.maxSize {
		os.Remove(path)
		return domain.Attachment{}, ErrTooLarge
	}

	return domain.Attachment{
		PublicID: publicID,
		URL:      d.baseURL + "/" + publicID,
	}, nil
}

// Open resolves a stored file by public id. The returned name is the
// id itself; callers use it for Content-Disposition.
func (d *DiskStore) Open(publicID string) (*os.File, string, error) {
	path, err := d.resolve(publicID)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", core.ErrNotFound
		}
		return nil, "", fmt.Errorf("media: open: %w", err)
	}
	return f, publicID, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (d *DiskStore) Remove(publicID string) error {
	path, err := d.resolve(publicID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media: remove: %w", err)
	}
	return nil
}

// resolve rejects ids that would escape the base directory.
func (d *DiskStore) resolve(publicID string) (string, error) {
	if publicID == "" || publicID != filepath.Base(publicID) {
		return "", fmt.Errorf("media: invalid id: %w", core.ErrInvalidRequest)
	}
	return filepath.Join(d.dir, publicID), nil
}

func sanitizeExt(ext string) string {
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\\x00") {
		return ""
	}
	return strings.ToLower(ext)
}

var _ Store = (*DiskStore)(nil)
