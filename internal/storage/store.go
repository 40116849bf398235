// Package storage keeps uploaded attachments (documents, voice notes) and
// returns the public URL they are served from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/parentrak/parentrak-backend/internal/config"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured size.
	ErrTooLarge = errors.New("storage: object too large")
	// ErrBadName is returned for names that are empty or escape the root.
	ErrBadName = errors.New("storage: invalid object name")
)

// Store persists an object under name and returns its public URL.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// LocalStore writes objects below a directory that the HTTP server exposes
// under PublicURL.
type LocalStore struct {
	Dir       string
	PublicURL string
	MaxBytes  int64
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(cfg config.StorageConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", cfg.Dir, err)
	}
	return &LocalStore{
		Dir:       cfg.Dir,
		PublicURL: strings.TrimRight(cfg.PublicURL, "/"),
		MaxBytes:  cfg.MaxUploadBytes,
	}, nil
}

// ObjectName builds a collision-free name for a child's attachment, keeping
// the extension of the original file name.
func ObjectName(childID, kind, original string) string {
	ext := strings.ToLower(path.Ext(filepath.Base(original)))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join("children", childID, kind, uuid.NewString()+ext)
}

// Put implements Store. Partially written files are removed on error.
func (s *LocalStore) Put(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return "", ErrBadName
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("storage: create: %w", err)
	}

	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && n > s.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("storage: write: %w", err)
	}
	return s.PublicURL + "/" + clean, nil
}
