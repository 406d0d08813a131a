package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Object is a stored file.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Storage keeps uploaded material files.
type Storage interface {
	Put(ctx context.Context, filename, contentType string, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// objectName builds a collision-free, filesystem-safe name that keeps the extension.
func objectName(filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, stem)
	if len(stem) > 64 {
		stem = stem[:64]
	}
	return uuid.NewString()[:8] + "-" + stem + ext
}
