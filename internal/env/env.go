// Package env locates the per-user directories of winebuild.
package env

import (
	"os"
	"path/filepath"
)

// WorkspaceEnv names the variable overriding the default workspace.
const WorkspaceEnv = "WINEBUILD_WORKSPACE"

// WorkDir returns the default workspace holding sources, build trees and
// install roots. It is not created.
func WorkDir() (string, error) {
	if dir := os.Getenv(WorkspaceEnv); dir != "" {
		return filepath.Abs(dir)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, "winebuild"), nil
}

// ConfigFile returns the path of the per-user configuration file. The
// file need not exist.
func ConfigFile() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "winebuild", "config.yaml"), nil
}
