package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

// cgroup v1 reports this for an unrestricted memory limit
const unrestrictedCgroupV1Limit = 9223372036854771712

var cgroupMemoryLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// GetTotalMemory returns the memory available to the process, honouring
// container cgroup limits when present
func GetTotalMemory() uint64 {
	total := memory.TotalMemory()
	for _, path := range cgroupMemoryLimitFiles {
		if limit, ok := readCgroupLimit(path); ok && limit < total {
			return limit
		}
	}
	return total
}

func readCgroupLimit(path string) (uint64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	// cgroup v2 reports "max" when unrestricted
	value := strings.TrimSpace(string(raw))
	if value == "max" {
		return 0, false
	}

	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil || limit == 0 || limit == unrestrictedCgroupV1Limit {
		return 0, false
	}
	return limit, true
}
