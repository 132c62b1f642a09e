// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package xdg resolves XDG Base Directory paths for bugreport.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "bugreport"

// ConfigFileName is the file looked up in ConfigDir when no --config is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for bugreport.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the path of the default config file and whether
// a regular file exists there.
func DefaultConfigFile() (string, bool) {
	path := filepath.Join(ConfigDir(), ConfigFileName)
	info, err := os.Stat(path)
	if err != nil {
		return path, false
	}
	return path, info.Mode().IsRegular()
}
