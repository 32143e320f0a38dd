package core

import (
	"context"
	"io"
)

// ObjectStore is any blob storage that can serve stored objects through a public URL.
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) error
	PublicURL(path string) string
}
