package core

import (
	"context"
	"errors"
	"io"
)

var ErrFileNotFound = errors.New("file not found")

type (
	// Upload is a file received from a client, ready to be stored.
	Upload struct {
		Name        string
		ContentType string
		Size        int64
		Content     io.Reader
	}

	// FileStorage stores uploaded file contents under opaque keys.
	FileStorage interface {
		Save(ctx context.Context, key string, upload Upload) error
		// Open returns ErrFileNotFound if no object is stored under key.
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
	}
)
