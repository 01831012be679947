// +build linux

package preflight

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

// FreeMemoryMB reads the node's free memory in MB from /proc/meminfo. It
// prefers MemAvailable and falls back to MemFree on kernels that do not
// report it. Used when the orchestrator does not supply the memory fact.
func FreeMemoryMB() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, errors.Wrap(err, "failed to open /proc/meminfo")
	}
	defer f.Close()

	var availableKB, freeKB int64 = -1, -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemAvailable:":
			availableKB, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemFree:":
			freeKB, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "failed to read /proc/meminfo")
	}

	if availableKB >= 0 {
		return availableKB / 1024, nil
	}
	if freeKB >= 0 {
		return freeKB / 1024, nil
	}
	return 0, fmt.Errorf("no MemAvailable or MemFree entry in /proc/meminfo")
}

func diskFreeMB(dir string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, errors.Wrap(err, "statfs failed")
	}
	return int64(st.Bavail) * st.Bsize / 1024 / 1024, nil
}
