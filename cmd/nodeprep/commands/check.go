package commands

import (
	"fmt"
	"log/slog"

	"github.com/baremetal-kit/nodeprep/internal/config"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/baremetal-kit/nodeprep/pkg/preflight"
	"github.com/spf13/cobra"
)

var (
	checkMemReqMB   int64
	checkAvailMemMB int64
)

var checkCmd = &cobra.Command{
	Use:   "check <host>",
	Short: "Run the preflight checks without downloading anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Int64Var(&checkMemReqMB, "mem-req-mb", 0, "Required free memory in MB")
	checkCmd.Flags().Int64Var(&checkAvailMemMB, "available-memory-mb", -1, "Free-memory fact in MB (negative: collect locally)")
	checkCmd.MarkFlagRequired("mem-req-mb")
}

func runCheck(cmd *cobra.Command, args []string) error {
	host := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	availableMB := checkAvailMemMB
	if availableMB < 0 {
		availableMB, err = preflight.FreeMemoryMB()
		if err != nil {
			return errors.Wrap(err, "no memory fact supplied and local collection failed")
		}
		slog.Info("memory_fact_collected", "host", host, "available_mb", availableMB)
	}

	checker := preflight.NewChecker(checkMemReqMB, cfg.MinDiskFreeMB)

	if err := checker.CheckMemory(availableMB); err != nil {
		return err
	}
	if err := checker.CheckDisk(cfg.ImageDir); err != nil {
		return err
	}

	fmt.Printf("Preflight passed for %s: %d MB available, %d MB required\n", host, availableMB, checkMemReqMB)
	return nil
}
