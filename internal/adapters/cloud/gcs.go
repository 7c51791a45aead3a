// Package cloud provides cloud provider integrations.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/planfab/planfab/internal/core/ports"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig holds Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket          string `json:"bucket"`
	CredentialsPath string `json:"credentials_path,omitempty"`
	BackupPrefix    string `json:"backup_prefix"`
	RetentionDays   int    `json:"retention_days"`
}

// DefaultGCSConfig returns default GCS configuration.
func DefaultGCSConfig() GCSConfig {
	return GCSConfig{
		BackupPrefix:  "backups/",
		RetentionDays: 30,
	}
}

// GCSBackupService backs up the scheduling database to GCS.
type GCSBackupService struct {
	config GCSConfig
	client *storage.Client
	logger ports.Logger
}

// NewGCSBackupService creates a new GCS backup service.
func NewGCSBackupService(ctx context.Context, config GCSConfig, logger ports.Logger) (*GCSBackupService, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if config.BackupPrefix != "" && !strings.HasSuffix(config.BackupPrefix, "/") {
		config.BackupPrefix += "/"
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		if _, err := os.Stat(config.CredentialsPath); err != nil {
			return nil, fmt.Errorf("credentials file not found: %s", config.CredentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSBackupService{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// BackupInfo represents information about a backup.
type BackupInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"path"`
}

// Backup uploads a snapshot of the database file, named by UTC timestamp.
// The daemon should be stopped, or the path should point at a VACUUM INTO
// snapshot, so the file is consistent.
func (s *GCSBackupService) Backup(ctx context.Context, dbPath string) (*BackupInfo, error) {
	file, err := os.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	name := fmt.Sprintf("planfab-%s.db", time.Now().UTC().Format("20060102T150405"))
	objectName := s.config.BackupPrefix + name

	bucket := s.client.Bucket(s.config.Bucket)
	obj := bucket.Object(objectName)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/vnd.sqlite3"

	if _, err := io.Copy(writer, file); err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	s.logger.Info("Backup uploaded to GCS", "bucket", s.config.Bucket, "object", objectName)

	return &BackupInfo{
		Name:      name,
		Size:      stat.Size(),
		CreatedAt: time.Now().UTC(),
		Path:      fmt.Sprintf("gs://%s/%s", s.config.Bucket, objectName),
	}, nil
}

// Restore downloads a backup over the local database file.
func (s *GCSBackupService) Restore(ctx context.Context, name, dbPath string) error {
	bucket := s.client.Bucket(s.config.Bucket)
	obj := bucket.Object(s.config.BackupPrefix + name)

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Close()

	file, err := os.Create(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}

	s.logger.Info("Backup restored from GCS", "object", name, "path", dbPath)
	return nil
}

// List lists all backups in GCS, newest first by object name.
func (s *GCSBackupService) List(ctx context.Context) ([]BackupInfo, error) {
	bucket := s.client.Bucket(s.config.Bucket)
	query := &storage.Query{Prefix: s.config.BackupPrefix}

	var backups []BackupInfo
	it := bucket.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		name := strings.TrimPrefix(attrs.Name, s.config.BackupPrefix)
		backups = append(backups, BackupInfo{
			Name:      name,
			Size:      attrs.Size,
			CreatedAt: attrs.Created,
			Path:      fmt.Sprintf("gs://%s/%s", s.config.Bucket, attrs.Name),
		})
	}

	return backups, nil
}

// Delete deletes a backup from GCS.
func (s *GCSBackupService) Delete(ctx context.Context, name string) error {
	bucket := s.client.Bucket(s.config.Bucket)
	obj := bucket.Object(s.config.BackupPrefix + name)

	if err := obj.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	s.logger.Info("Backup deleted from GCS", "object", name)
	return nil
}

// Cleanup removes backups older than the retention period.
func (s *GCSBackupService) Cleanup(ctx context.Context) (int, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, backup := range backups {
		if backup.CreatedAt.Before(cutoff) {
			if err := s.Delete(ctx, backup.Name); err != nil {
				s.logger.Error("Failed to delete old backup", "name", backup.Name, "error", err)
				continue
			}
			deleted++
		}
	}

	s.logger.Info("Cleanup completed", "deleted", deleted, "retention_days", s.config.RetentionDays)
	return deleted, nil
}

// Close closes the GCS client.
func (s *GCSBackupService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
