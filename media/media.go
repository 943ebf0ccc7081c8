// Package media stores uploaded profile photos.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrValidation = errors.New("media: invalid object")

// Storage puts an object under key and returns the URL it is served from.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SniffJPEG reports whether the first bytes of r look like a JPEG. r is
// rewound afterwards.
func SniffJPEG(r io.ReadSeeker) (bool, error) {
	head := make([]byte, 512)
	n, err := r.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return http.DetectContentType(head[:n]) == "image/jpeg", nil
}

// DiskStorage writes objects under Root and serves them at URLPrefix.
type DiskStorage struct {
	Root      string
	URLPrefix string
}

func NewDiskStorage(root, urlPrefix string) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &DiskStorage{Root: root, URLPrefix: urlPrefix}, nil
}

func (d *DiskStorage) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if key == "" || clean != key || strings.Contains(key, "..") {
		return "", ErrValidation
	}
	return filepath.Join(d.Root, filepath.FromSlash(clean)), nil
}

// Put writes to a temp file and renames it into place so readers never see
// a partial file.
func (d *DiskStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	dst, err := d.path(key)
	if err != nil || body == nil {
		return "", ErrValidation
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename: %w", err)
	}
	return d.URLPrefix + key, nil
}

func (d *DiskStorage) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
