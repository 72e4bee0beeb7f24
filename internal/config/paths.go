package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName    = "sensorlink"
	configName = "sensorlink"
	configFile = configName + ".yaml"

	// SystemConfigDir is searched after the user and working directories.
	SystemConfigDir = "/etc/sensorlink"
)

// GetConfigDir returns the OS-appropriate per-user configuration directory:
//   - Linux: $XDG_CONFIG_HOME/sensorlink or $HOME/.config/sensorlink
//   - macOS: $HOME/.config/sensorlink
//   - Windows: %LOCALAPPDATA%\sensorlink
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the default location of the user config file.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// SearchPaths lists the directories Load looks in, in order.
func SearchPaths() []string {
	var paths []string
	if dir, err := GetConfigDir(); err == nil {
		paths = append(paths, dir)
	}
	return append(paths, ".", SystemConfigDir)
}
