package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/baremetal-kit/nodeprep/internal/config"
	"github.com/baremetal-kit/nodeprep/pkg/db"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupHost     string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up downloaded images and deployment records",
	Long: `Clean up resources associated with deployments:
  --all            Remove images and records for all deployments
  --host <host>    Remove the image and record for one host
  --orphaned       Remove image files in the image dir not tracked in the database`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean all deployments")
	cleanupCmd.Flags().StringVar(&cleanupHost, "host", "", "Clean a specific host")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Clean orphaned image files")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	switch {
	case cleanupAll:
		return cleanupAllDeployments(repo)
	case cleanupHost != "":
		return cleanupOneHost(repo, cleanupHost)
	case cleanupOrphaned:
		return cleanupOrphanedImages(repo, cfg)
	default:
		return fmt.Errorf("must specify --all, --host, or --orphaned")
	}
}

func cleanupAllDeployments(repo *db.Repository) error {
	deployments, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("Cleaning up %d deployments...\n", len(deployments))

	for _, d := range deployments {
		if err := cleanupDeployment(repo, d); err != nil {
			fmt.Printf("Failed to clean %s: %v\n", d.Host, err)
		} else {
			fmt.Printf("Cleaned: %s\n", d.Host)
		}
	}

	return nil
}

func cleanupOneHost(repo *db.Repository, host string) error {
	d, err := repo.GetByHost(host)
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}
	if d == nil {
		return fmt.Errorf("no deployment found for host %s", host)
	}

	if err := cleanupDeployment(repo, d); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("Cleaned: %s\n", host)
	return nil
}

func cleanupDeployment(repo *db.Repository, d *db.Deployment) error {
	if d.ImagePath != "" {
		if _, err := os.Stat(d.ImagePath); err == nil {
			if err := os.Remove(d.ImagePath); err != nil {
				return errors.Wrap(err, "failed to remove image file")
			}
		}
	}

	return repo.Delete(d.ID)
}

func cleanupOrphanedImages(repo *db.Repository, cfg *config.Config) error {
	fmt.Println("Scanning for orphaned images...")

	entries, err := os.ReadDir(cfg.ImageDir)
	if err != nil {
		return errors.Wrap(err, "failed to read image dir")
	}

	orphanCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".img") {
			continue
		}

		host := strings.TrimSuffix(entry.Name(), ".img")
		d, err := repo.GetByHost(host)
		if err != nil {
			return errors.Wrap(err, "lookup failed")
		}
		if d != nil {
			continue
		}

		orphanPath := filepath.Join(cfg.ImageDir, entry.Name())
		if err := os.Remove(orphanPath); err != nil {
			fmt.Printf("Failed to remove orphaned image %s: %v\n", entry.Name(), err)
		} else {
			fmt.Printf("Removed orphaned image: %s\n", entry.Name())
			orphanCount++
		}
	}

	fmt.Printf("Removed %d orphaned images\n", orphanCount)
	return nil
}
