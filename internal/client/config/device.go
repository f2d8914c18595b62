package config

import (
	"os"
	"runtime"
)

// defaultDeviceName derives a label from the hostname so a fresh install is
// recognizable among the account's devices without any setup.
func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return runtime.GOOS
	}
	return host
}
