package session

import (
	"fmt"
	"os"
	"path/filepath"

	"hive/pkg/protocol"
)

// ResolveHome returns the hive home directory from HIVE_HOME or ~/.hive.
func ResolveHome() (string, error) {
	if v := os.Getenv(protocol.EnvHome); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.HiveDir), nil
}
