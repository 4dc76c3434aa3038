// ABOUTME: Standard filesystem paths for nanobot configuration and data
// ABOUTME: Resolves ~/.nanobot/ for global and .nanobot/ for project-local paths

package config

import (
	"os"
	"path/filepath"
)

const (
	globalDirName  = ".nanobot"
	projectDirName = ".nanobot"
)

// GlobalDir returns the user-global config directory (~/.nanobot/).
func GlobalDir() string {
	if dir := os.Getenv("NANOBOT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// ProjectDir returns the project-local config directory (.nanobot/ in cwd).
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, projectDirName)
}

// GlobalConfigFile returns the path to the global config file.
func GlobalConfigFile() string {
	return filepath.Join(GlobalDir(), "config.yaml")
}

// ProjectConfigFile returns the path to the project-local config file.
func ProjectConfigFile(projectRoot string) string {
	return filepath.Join(ProjectDir(projectRoot), "config.yaml")
}

// SecureStoreFile returns the path of the 0600 key-value file holding the
// session id and server URL.
func SecureStoreFile() string {
	return filepath.Join(GlobalDir(), "secure.json")
}

// EnsureDir creates a directory and all parents if they don't exist.
// Uses 0o700 since the directory holds session credentials.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o700)
}
