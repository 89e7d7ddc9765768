package storage

import (
	"context"
)

// DocumentArchive stores raw documents before any transformation so the
// original text survives chunking and anonymization.
type DocumentArchive interface {
	// Put stores a document under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves a document by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks if a document exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes a document from the archive.
	Delete(ctx context.Context, key string) error
}

// NoopArchive discards writes and reports every key as absent. Used when
// raw archival is disabled.
type NoopArchive struct{}

func (NoopArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (NoopArchive) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrNotArchived
}

func (NoopArchive) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (NoopArchive) Delete(ctx context.Context, key string) error {
	return nil
}
