package config

import (
	"fmt"
	"os"
	"strings"
)

// EnsureIgnored appends entry to the ignore file at path unless it is already listed.
// The file is created when missing. Returns true if the file was modified.
func EnsureIgnored(path, entry string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}

	block := "# Data directory\n" + entry + "\n"
	if len(content) > 0 {
		block = "\n" + block
		if !strings.HasSuffix(string(content), "\n") {
			block = "\n" + block
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(block); err != nil {
		return false, fmt.Errorf("append to %s: %w", path, err)
	}
	return true, nil
}
