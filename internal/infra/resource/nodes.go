package resource

import (
	"os"
	"strconv"
	"strings"
)

// writeNode writes value to a sysfs-style node.
func writeNode(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}

// readNodeInt reads a single integer from a sysfs-style node.
func readNodeInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
