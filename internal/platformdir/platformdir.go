// Package platformdir resolves the per-user data directory the engine
// persists its database and downloads under, expanding "~" the way the
// teacher's session.New does for its Database and DataDir config fields.
package platformdir

import (
	"os"
	"path/filepath"
	"runtime"

	homedir "github.com/mitchellh/go-homedir"
)

// AppName is the directory leaf used under the platform's conventional
// per-user config root.
const AppName = "seedcore"

// Default returns the platform-conventional per-user data directory:
// ~/.config/seedcore on Linux, ~/Library/Application Support/seedcore on
// macOS, %APPDATA%\seedcore on Windows.
func Default() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, AppName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", AppName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppName), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		return filepath.Join(home, ".config", AppName), nil
	}
}

// Expand expands a leading "~" in path using the user's home directory.
func Expand(path string) (string, error) {
	return homedir.Expand(path)
}
