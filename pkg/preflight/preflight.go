// Package preflight validates node resources before an image fetch starts.
// The memory check is the guard the deployment step evaluates against the
// orchestrator-supplied free-memory fact; the disk check is an optional
// local guard on the image directory.
package preflight

import (
	"fmt"
	"log/slog"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

// MemoryCheckMessage is the exact message surfaced when a node does not have
// enough free memory for the image.
const MemoryCheckMessage = "The image size is too big, no free memory available"

// Checker validates resource preconditions for a deployment
type Checker struct {
	memoryRequirementMB int64
	minDiskFreeMB       int64
}

// NewChecker creates a checker. minDiskFreeMB of zero disables the disk
// check.
func NewChecker(memoryRequirementMB, minDiskFreeMB int64) *Checker {
	return &Checker{
		memoryRequirementMB: memoryRequirementMB,
		minDiskFreeMB:       minDiskFreeMB,
	}
}

// CheckMemory fails with ErrPreconditionFailed when availableMB is below the
// required threshold. Equality passes. No side effect on success.
func (c *Checker) CheckMemory(availableMB int64) error {
	if availableMB < c.memoryRequirementMB {
		slog.Error("preflight_memory_check_failed",
			"available_mb", availableMB,
			"required_mb", c.memoryRequirementMB)
		return fmt.Errorf("%w: %s", errors.ErrPreconditionFailed, MemoryCheckMessage)
	}

	slog.Info("preflight_memory_check_passed",
		"available_mb", availableMB,
		"required_mb", c.memoryRequirementMB)
	return nil
}

// CheckDisk fails with ErrPreconditionFailed when the filesystem holding dir
// has less free space than the configured minimum. Disabled when the
// minimum is zero.
func (c *Checker) CheckDisk(dir string) error {
	if c.minDiskFreeMB <= 0 {
		return nil
	}

	freeMB, err := diskFreeMB(dir)
	if err != nil {
		return errors.Wrap(err, "failed to read free disk space")
	}

	if freeMB < c.minDiskFreeMB {
		slog.Error("preflight_disk_check_failed",
			"dir", dir,
			"free_mb", freeMB,
			"required_mb", c.minDiskFreeMB)
		return fmt.Errorf("%w: only %d MB free in %s, %d MB required",
			errors.ErrPreconditionFailed, freeMB, dir, c.minDiskFreeMB)
	}

	slog.Info("preflight_disk_check_passed", "dir", dir, "free_mb", freeMB)
	return nil
}
