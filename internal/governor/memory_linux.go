//go:build linux

package governor

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// ResidentMemoryMB returns the resident set size of the current process.
func ResidentMemoryMB() (float64, error) {
	proc, err := procfs.Self()
	if err != nil {
		return 0, fmt.Errorf("open /proc/self: %w", err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("read process stat: %w", err)
	}
	return float64(stat.ResidentMemory()) / (1024 * 1024), nil
}
