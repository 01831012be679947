package commands

import (
	"fmt"

	"github.com/baremetal-kit/nodeprep/internal/config"
	"github.com/baremetal-kit/nodeprep/pkg/db"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all deployments and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	deployments, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(deployments) == 0 {
		fmt.Println("No deployments found")
		return nil
	}

	fmt.Printf("%-20s %-10s %-30s %-10s %-20s\n", "HOST", "STATUS", "IMAGE", "SIZE MB", "ERROR")
	fmt.Println("------------------------------------------------------------------------------------------------")

	for _, d := range deployments {
		imagePath := d.ImagePath
		if imagePath == "" {
			imagePath = "-"
		}
		sizeStr := "-"
		if d.SizeBytes > 0 {
			sizeStr = fmt.Sprintf("%d", d.SizeBytes/1024/1024)
		}
		errStr := d.ErrorKind
		if errStr == "" {
			errStr = "-"
		}

		fmt.Printf("%-20s %-10s %-30s %-10s %-20s\n",
			d.Host, d.Status, imagePath, sizeStr, errStr)
	}

	return nil
}
