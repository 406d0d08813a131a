package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local stores files on disk; the API serves Dir under PublicPrefix.
type Local struct {
	Dir          string
	PublicPrefix string
}

func NewLocal(dir, publicPrefix string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{Dir: dir, PublicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

func (l *Local) Put(_ context.Context, filename, _ string, r io.Reader) (Object, error) {
	name := objectName(filename)
	f, err := os.Create(filepath.Join(l.Dir, name))
	if err != nil {
		return Object{}, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(l.Dir, name))
		return Object{}, fmt.Errorf("write upload: %w", err)
	}
	return Object{Key: name, URL: l.PublicPrefix + "/" + name, Size: n}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	if key != filepath.Base(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	err := os.Remove(filepath.Join(l.Dir, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
