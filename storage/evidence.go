// Package storage defines the evidence blob collaborator. Blobs are written
// once and referred to by opaque references.
package storage

import (
	"context"
	"errors"
)

var ErrInvalidReference = errors.New("invalid evidence reference")

type EvidenceStore interface {
	// Put stores data and returns a reference to it.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error
}
