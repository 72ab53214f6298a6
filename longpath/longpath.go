// Package longpath prepares file paths for APIs with a legacy length limit.
package longpath

import (
	"path/filepath"
	"runtime"
	"strings"
)

// windowsLimit is the length from which Windows paths need the extended prefix.
const windowsLimit = 240

const extendedPrefix = `\\?\`

// Normalize returns an absolute, cleaned path. On Windows, paths of
// windowsLimit characters or more get the `\\?\` extended-length prefix.
func Normalize(path string) string {
	return normalize(path, runtime.GOOS)
}

func normalize(path, goos string) string {
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if goos != "windows" {
		return abs
	}
	abs = strings.ReplaceAll(abs, "/", `\`)
	if strings.HasPrefix(abs, extendedPrefix) || len(abs) < windowsLimit {
		return abs
	}
	if strings.HasPrefix(abs, `\\`) {
		return extendedPrefix + `UNC\` + abs[2:]
	}
	return extendedPrefix + abs
}
