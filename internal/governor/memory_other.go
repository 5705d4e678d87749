//go:build !linux

package governor

import "runtime"

// ResidentMemoryMB approximates process memory with the bytes the Go
// runtime has obtained from the OS.
func ResidentMemoryMB() (float64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Sys) / (1024 * 1024), nil
}
