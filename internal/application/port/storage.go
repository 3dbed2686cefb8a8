package port

import "context"

// BlobHandle is the resolved location of an evidence blob. The engine
// holds references only; bytes stay with the upload subsystem.
type BlobHandle struct {
	ReferenceID string `json:"reference_id"`
	URL         string `json:"url"`
	Size        int64  `json:"size,omitempty"`
}

// BlobStore resolves evidence reference ids to durable handles
type BlobStore interface {
	Resolve(ctx context.Context, referenceID string) (*BlobHandle, error)
	Exists(ctx context.Context, referenceID string) bool
}
