package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize planfab configuration",
	Long: `Initialize planfab by creating the configuration directory and a
default configuration file.

This command creates:
  • ~/.planfab/config.yaml - Main configuration file
  • ~/.planfab/data/ - Data directory for the SQLite database
  • ~/.planfab/logs/ - Log files directory`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	planfabDir, err := ensurePlanfabDir()
	if err != nil {
		return fmt.Errorf("failed to create planfab directory: %w", err)
	}

	subdirs := []string{"data", "logs"}
	for _, subdir := range subdirs {
		path := filepath.Join(planfabDir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
		fmt.Printf("✓ Created %s\n", path)
	}

	configPath := filepath.Join(planfabDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("✓ Created %s\n", configPath)
	} else {
		fmt.Printf("• Config file already exists: %s\n", configPath)
	}

	fmt.Println("\nplanfab initialized.")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit ~/.planfab/config.yaml to customize settings")
	fmt.Println("  2. Run 'planfab daemon start' to start the daemon")
	fmt.Println("  3. Run 'planfab machine import park.yaml' to load the machine park")

	return nil
}

const defaultConfig = `# planfab configuration

core:
  log_level: info  # debug, info, warn, error
  log_json: false
  data_dir: ~/.planfab/data

database:
  cache_size: 64000
  busy_timeout: 5000

# Conflict notifications: schedule.conflict events are POSTed here together
# with the originating request, so the caller can adjust and retry.
notify:
  webhook_url: ""
  webhook_headers: ""

# Off-site backups of the scheduling database.
backup:
  bucket: ""
  credentials_path: ""
  prefix: backups
  retention_days: 30
`
