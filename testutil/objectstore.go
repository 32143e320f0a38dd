package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
)

// PNG is the smallest payload sniffed as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

var ErrUploadFailed = errors.New("upload failed")

// ObjectStore keeps uploads in memory.
// FailAll makes every upload fail; FailAfter n makes uploads fail once n succeeded.
type ObjectStore struct {
	mu        sync.Mutex
	Objects   map[string][]byte
	FailAll   bool
	FailAfter int
	uploads   int
}

var _ core.ObjectStore = (*ObjectStore)(nil)

func NewObjectStore() *ObjectStore {
	return &ObjectStore{Objects: make(map[string][]byte)}
}

func (s *ObjectStore) Upload(_ context.Context, path string, r io.Reader, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAll || (s.FailAfter > 0 && s.uploads >= s.FailAfter) {
		return ErrUploadFailed
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.Objects[path] = data
	s.uploads++
	return nil
}

func (s *ObjectStore) PublicURL(path string) string {
	return "https://cdn.test/" + path
}

func (s *ObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Objects)
}
