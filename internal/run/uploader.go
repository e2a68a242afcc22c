//go:generate go run github.com/golang/mock/mockgen -source=uploader.go -destination=mock_uploader_test.go -package=run Uploader

package run

import (
	"context"

	"hamup/internal/hamster"
)

// Uploader performs one network upload of one file. It is the only
// network-bound operation in a run; failures come back as typed errors and
// never abort the batch by themselves.
type Uploader interface {
	Upload(ctx context.Context, filePath string, opts hamster.UploadOptions) (*hamster.Result, error)
}
