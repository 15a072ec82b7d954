//go:build !linux

package fs

// ExcludeFromBackup is a no-op on platforms without a supported marker.
func ExcludeFromBackup(path string) error {
	_ = path
	return nil
}
