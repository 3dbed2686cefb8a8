package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/flow"
	"go.uber.org/zap"
)

// FilesystemBlobStore implements port.BlobStore over a local directory.
// Evidence bytes land there through the upload subsystem; the engine only
// resolves reference ids into durable handles.
type FilesystemBlobStore struct {
	baseDir string
	baseURL string
	logger  *zap.Logger
}

// NewFilesystemBlobStore creates a blob store rooted at baseDir. baseURL
// prefixes resolved handle URLs, e.g. "/evidence" or a CDN origin.
func NewFilesystemBlobStore(baseDir, baseURL string, logger *zap.Logger) *FilesystemBlobStore {
	return &FilesystemBlobStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Resolve returns the handle for a stored blob
func (s *FilesystemBlobStore) Resolve(ctx context.Context, referenceID string) (*port.BlobHandle, error) {
	fullPath, err := s.fullPath(referenceID)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: evidence blob %s", flow.ErrNotFound, referenceID)
		}
		s.logger.Error("Failed to stat blob",
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: evidence blob %s", flow.ErrNotFound, referenceID)
	}

	handle := &port.BlobHandle{
		ReferenceID: referenceID,
		URL:         s.baseURL + "/" + referenceID,
		Size:        info.Size(),
	}

	s.logger.Debug("Blob resolved",
		zap.String("reference_id", referenceID),
		zap.Int64("size", handle.Size))

	return handle, nil
}

// Exists checks whether a blob is present for the reference id
func (s *FilesystemBlobStore) Exists(ctx context.Context, referenceID string) bool {
	fullPath, err := s.fullPath(referenceID)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// fullPath joins the reference id onto baseDir. Reference ids may contain
// forward slashes for date-based layouts but must stay inside baseDir.
func (s *FilesystemBlobStore) fullPath(referenceID string) (string, error) {
	if referenceID == "" {
		return "", fmt.Errorf("%w: empty blob reference", flow.ErrValidation)
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(referenceID))

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: blob reference escapes storage root: %s", flow.ErrValidation, referenceID)
	}

	return absPath, nil
}
