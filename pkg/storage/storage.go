// Package storage keeps annotated images either on local disk or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"GeoDetect/pkg/s3"
)

var (
	ErrNotFound    = errors.New("stored file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Object tells the caller how to serve a stored file: from Path on disk or by
// redirecting to RedirectURL.
type Object struct {
	Path        string
	RedirectURL string
}

type IStorage interface {
	Save(ctx context.Context, name string, data []byte, contentType string) error
	Resolve(ctx context.Context, name string) (Object, error)
	Delete(ctx context.Context, name string) error
}

// CleanName rejects anything that is not a bare file name. Dot files are
// refused too, which keeps in-flight temp files out of reach.
func CleanName(name string) (string, error) {
	base := filepath.Base(name)
	if name == "" || base != name || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

type localStorage struct {
	dir string
}

func NewLocal(dir string) (IStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &localStorage{dir: dir}, nil
}

func (l *localStorage) Save(_ context.Context, name string, data []byte, _ string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(l.dir, name))
}

func (l *localStorage) Resolve(_ context.Context, name string) (Object, error) {
	name, err := CleanName(name)
	if err != nil {
		return Object{}, err
	}

	path := filepath.Join(l.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Object{}, ErrNotFound
		}
		return Object{}, err
	}

	return Object{Path: path}, nil
}

func (l *localStorage) Delete(_ context.Context, name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(l.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type s3Storage struct {
	client s3.ItfS3
}

func NewS3(client s3.ItfS3) IStorage {
	return &s3Storage{client: client}
}

func (s *s3Storage) Save(ctx context.Context, name string, data []byte, contentType string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}

	_, err = s.client.Upload(ctx, name, data, contentType)
	return err
}

func (s *s3Storage) Resolve(_ context.Context, name string) (Object, error) {
	name, err := CleanName(name)
	if err != nil {
		return Object{}, err
	}

	url, err := s.client.PresignUrl(name)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return Object{RedirectURL: url}, nil
}

func (s *s3Storage) Delete(ctx context.Context, name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	return s.client.DeleteFile(ctx, name)
}
