package blobstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

// Store is the binary object store holding report images. Reports keep only
// the keys.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Save stores data under a fresh key below prefix and returns the key.
func Save(ctx context.Context, s Store, prefix string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty blob")
	}
	key := NewKey(prefix, contentType)
	if err := s.Upload(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func NewKey(prefix, contentType string) string {
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
