package objectsvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
)

var ErrInvalidPath = errors.New("invalid object path")

// DiskStore keeps objects under a local directory, served by the API at baseURL.
type DiskStore struct {
	root    string
	baseURL string
}

var _ core.ObjectStore = (*DiskStore)(nil)

func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) fullPath(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" || strings.Contains(path, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *DiskStore) Upload(ctx context.Context, path string, r io.Reader, _ string) error {
	full, err := s.fullPath(path)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "creating object directory")
	}

	f, err := os.Create(full)
	if err != nil {
		return errors.Wrap(err, "creating object")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return errors.Wrap(err, "writing object")
	}
	return errors.Wrap(f.Close(), "closing object")
}

func (s *DiskStore) PublicURL(path string) string {
	return s.baseURL + "/" + strings.TrimLeft(path, "/")
}
