//go:build linux || darwin

package storage

import "golang.org/x/sys/unix"

// AvailableDiskSpace implements get_available_disk_space (§6) via statfs.
func AvailableDiskSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil //nolint:unconvert
}
