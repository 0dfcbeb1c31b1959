//go:build !windows
// +build !windows

package fs

import "os"

// createLink makes a relative symlink; absTarget is unused on platforms
// where a plain symlink works without elevated privilege.
func createLink(linkPath, relTarget, absTarget string) error {
	return os.Symlink(relTarget, linkPath)
}
