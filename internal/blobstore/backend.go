// Package blobstore persists topic content as named documents, splitting
// large bodies into fixed-size character chunks plus a metadata record.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend for a missing document.
var ErrNotFound = errors.New("document not found")

// Backend is a flat namespace of documents.
type Backend interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	contentTypeMarkdown = "text/markdown"
	contentTypeJSON     = "application/json"
	contentTypeChunk    = "text/plain; charset=utf-8"
)
