package verification

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"community-portal/verification-backend/pkg/storage"
)

// BackupResult locates the copies made by a backup.
type BackupResult struct {
	LocalPath string `json:"local_path"`
	RemoteKey string `json:"remote_key,omitempty"`
}

// Backuper snapshots the verification store locally and, when a bucket is
// configured, to S3.
type Backuper struct {
	repo   *FileRepository
	s3     storage.S3Client
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewBackuper returns a Backuper. s3 may be nil to keep backups local.
func NewBackuper(repo *FileRepository, s3 storage.S3Client, bucket, prefix string, logger *zap.Logger) *Backuper {
	return &Backuper{
		repo:   repo,
		s3:     s3,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Backup copies the store. A failed upload is returned after the local
// copy succeeded, with the result still describing the local copy.
func (b *Backuper) Backup(ctx context.Context) (BackupResult, error) {
	local, err := b.repo.Backup(b.now())
	if err != nil {
		return BackupResult{}, err
	}
	result := BackupResult{LocalPath: local}
	b.logger.Info("Verification store backed up", zap.String("path", local))

	if b.s3 == nil || b.bucket == "" {
		return result, nil
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return result, fmt.Errorf("failed to read backup %s: %w", local, err)
	}
	key := path.Join(b.prefix, filepath.Base(local))
	if err := b.s3.Upload(ctx, b.bucket, key, bytes.NewReader(data)); err != nil {
		return result, fmt.Errorf("failed to upload backup: %w", err)
	}
	result.RemoteKey = key
	b.logger.Info("Verification store uploaded", zap.String("bucket", b.bucket), zap.String("key", key))
	return result, nil
}

// UploadFile stores an arbitrary local file under the backup prefix. It is
// a no-op without a bucket.
func (b *Backuper) UploadFile(ctx context.Context, localPath, name string) (string, error) {
	if b.s3 == nil || b.bucket == "" {
		return "", nil
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	key := path.Join(b.prefix, name)
	if err := b.s3.Upload(ctx, b.bucket, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return key, nil
}
