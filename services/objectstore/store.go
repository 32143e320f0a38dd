package objectsvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
)

// New returns the object store selected by conf.Storage.Driver.
func New(ctx context.Context, conf *core.Config) (core.ObjectStore, error) {
	switch conf.Storage.Driver {
	case "b2":
		return NewB2Store(ctx, conf)
	case "disk", "":
		return NewDiskStore(conf.Storage.DiskRoot, conf.Storage.PublicBaseURL)
	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
	}
}
