package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/planfab/planfab/internal/adapters/cloud"
	"github.com/planfab/planfab/internal/config"
	"github.com/planfab/planfab/internal/core/services"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Backup and restore the scheduling database",
	Long: `Back up the scheduling database to Google Cloud Storage and restore
from previous backups. Configure the bucket under backup: in config.yaml.

Stop the daemon before creating or restoring a backup so the database file
is consistent.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload a backup of the database",
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Restore the database from a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupPrune bool

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	backupCreateCmd.Flags().BoolVar(&backupPrune, "prune", false, "Delete backups past the retention period after upload")
}

func newBackupService(ctx context.Context) (*cloud.GCSBackupService, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.IsBackupEnabled() {
		return nil, nil, fmt.Errorf("backup not configured (set backup.bucket in config.yaml)")
	}

	gcsConfig := cloud.DefaultGCSConfig()
	gcsConfig.Bucket = cfg.Backup.Bucket
	gcsConfig.CredentialsPath = cfg.Backup.CredentialsPath
	if cfg.Backup.Prefix != "" {
		gcsConfig.BackupPrefix = cfg.Backup.Prefix + "/"
	}
	gcsConfig.RetentionDays = cfg.Backup.RetentionDays

	logLevel := cfg.Core.LogLevel
	if verbose {
		logLevel = "debug"
	}
	logger := services.NewSlogLogger(logLevel, cfg.Core.LogJSON)

	svc, err := cloud.NewGCSBackupService(ctx, gcsConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func databasePath(cfg *config.Config) string {
	if cfg.Database.Path != "" {
		return cfg.Database.Path
	}
	return filepath.Join(cfg.Core.DataDir, "planfab.db")
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc, cfg, err := newBackupService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.Backup(ctx, databasePath(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("✓ Backup uploaded\n")
	fmt.Printf("  Name: %s\n", info.Name)
	fmt.Printf("  Size: %d bytes\n", info.Size)
	fmt.Printf("  Path: %s\n", info.Path)

	if backupPrune {
		deleted, err := svc.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("upload succeeded but pruning failed: %w", err)
		}
		fmt.Printf("  Pruned %d old backup(s)\n", deleted)
	}
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	svc, _, err := newBackupService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	backups, err := svc.List(ctx)
	if err != nil {
		return err
	}

	if len(backups) == 0 {
		fmt.Println("(no backups)")
		return nil
	}

	fmt.Printf("%-32s  %12s  %s\n", "NAME", "SIZE", "CREATED")
	for _, backup := range backups {
		fmt.Printf("%-32s  %12d  %s\n", backup.Name, backup.Size,
			backup.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc, cfg, err := newBackupService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	dbPath := databasePath(cfg)
	if err := svc.Restore(ctx, args[0], dbPath); err != nil {
		return err
	}

	fmt.Printf("✓ Restored %s to %s\n", args[0], dbPath)
	fmt.Println("  Restart the daemon to pick up the restored database.")
	return nil
}
