//go:build linux

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// backupAttr is the freedesktop.org extended attribute backup tools honour.
const backupAttr = "user.xdg.robots.backup"

// ExcludeFromBackup marks path so whole-device backup tools skip it.
//
// File systems without user xattr support are not an error.
func ExcludeFromBackup(path string) error {
	err := unix.Setxattr(path, backupAttr, []byte("false"), 0)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EPERM) {
		return nil
	}
	return err
}
