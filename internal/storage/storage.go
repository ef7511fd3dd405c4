// Package storage abstracts where uploaded files live. The upload
// collaborator hands this module a storage reference; all the pipeline needs
// is a way to open it for reading.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Fetcher opens the bytes behind a storage reference.
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Local resolves plain paths and file:// URLs on the local filesystem.
type Local struct{}

func (Local) Open(_ context.Context, url string) (io.ReadCloser, error) {
	path := strings.TrimPrefix(url, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return f, nil
}
