// +build !linux

package preflight

import (
	"fmt"
	"runtime"
)

// FreeMemoryMB is unavailable off Linux; the memory fact must be supplied by
// the orchestrator.
func FreeMemoryMB() (int64, error) {
	return 0, fmt.Errorf("local memory facts not supported on %s", runtime.GOOS)
}

func diskFreeMB(dir string) (int64, error) {
	return 0, fmt.Errorf("disk facts not supported on %s", runtime.GOOS)
}
