// Package storage holds the blob stores that keep uploaded article images.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectExists is returned by Upload when a blob with the same name is already stored.
var ErrObjectExists = errors.New("object already exists")

// ErrObjectNotFound is returned when reading a blob that does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore uploads named blobs into a bucket and resolves their public URLs.
// Upload never overwrites: a second upload under the same name fails with ErrObjectExists.
type BlobStore interface {
	Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string) error
	PublicURL(name string) string
}

// Object is a blob read back from a store that can serve its own content.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}
