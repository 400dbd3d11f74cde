package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Filename limits
const (
	// MaxFileNameLength caps sanitized names at this many runes, below
	// common filesystem limits with room for an extension.
	MaxFileNameLength = 250
)

// Partial download markers left behind by interrupted transfers
var (
	PartialExtensions = []string{".part", ".ytdl"}
)

// Characters stripped from filenames: illegal on at least one supported
// OS, or glob metacharacters that would break download-state probing.
const illegalFileNameChars = `<>:"/\|?*[]#`

// Names reserved by Windows regardless of extension
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename converts an arbitrary title into a name that is safe
// on Windows, macOS and Linux. Spaces become underscores, illegal and
// control characters are dropped, and overly long names are truncated.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20:
			// control characters
		case strings.ContainsRune(illegalFileNameChars, r):
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()

	// Trailing dots and spaces are invalid on Windows
	out = strings.TrimRight(out, ". ")

	// Truncate on a rune boundary so multibyte titles stay valid UTF-8
	if utf8.RuneCountInString(out) > MaxFileNameLength {
		runes := []rune(out)
		out = string(runes[:MaxFileNameLength])
	}

	if out == "" {
		return "untitled"
	}

	base := out
	if ext := filepath.Ext(out); ext != "" {
		base = strings.TrimSuffix(out, ext)
	}
	if windowsReservedNames[strings.ToUpper(base)] {
		out += "_"
	}
	return out
}

// IsDownloadComplete reports whether a finished file matching the given
// base path exists without any partial-download markers next to it.
func IsDownloadComplete(basePath string) bool {
	matches, err := filepath.Glob(basePath + ".*")
	if err != nil || len(matches) == 0 {
		return false
	}
	complete := false
	for _, m := range matches {
		partial := false
		for _, ext := range PartialExtensions {
			if strings.HasSuffix(m, ext) {
				partial = true
				break
			}
		}
		if partial {
			return false
		}
		complete = true
	}
	return complete
}

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Downloads"), nil
}
