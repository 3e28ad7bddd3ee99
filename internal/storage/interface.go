package storage

import "context"

// Object is one archived document together with its blob properties
type Object struct {
	Name        string
	ContentType string
	Data        []byte
	Metadata    map[string]string
}

// StorageInterface defines the contract for archiving published snapshots.
// Archives are write-only; nothing reads them back at startup.
type StorageInterface interface {
	Store(ctx context.Context, obj Object) error
}

// Noop discards everything. Used when no storage account is configured.
type Noop struct{}

// Ensure Noop implements StorageInterface
var _ StorageInterface = Noop{}

func (Noop) Store(_ context.Context, _ Object) error { return nil }
