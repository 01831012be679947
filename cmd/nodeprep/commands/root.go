package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "nodeprep",
	Short: "Bare-metal node preparation - pre-flight-checked image fetch",
	Long:  `Prepares bare-metal nodes for deployment: verifies free memory, then fetches the disk image with checksum validation under a polled timeout.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/deployments.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("image-dir", "/tmp", "Directory for downloaded images")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// image URLs")
	rootCmd.PersistentFlags().Duration("poll-interval", 15*time.Second, "Fetch poll cadence")
	rootCmd.PersistentFlags().Duration("fetch-timeout", 600*time.Second, "Hard fetch timeout")
	rootCmd.PersistentFlags().Bool("overwrite-existing", false, "Replace an existing destination file")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("image-dir", rootCmd.PersistentFlags().Lookup("image-dir"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("poll-interval", rootCmd.PersistentFlags().Lookup("poll-interval"))
	viper.BindPFlag("fetch-timeout", rootCmd.PersistentFlags().Lookup("fetch-timeout"))
	viper.BindPFlag("overwrite-existing", rootCmd.PersistentFlags().Lookup("overwrite-existing"))
}
