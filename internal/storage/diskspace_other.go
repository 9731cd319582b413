//go:build !linux && !darwin

package storage

import "errors"

// AvailableDiskSpace has no portable implementation on this platform; the
// teacher never targeted Windows either. Returning an error (rather than a
// guessed value) keeps get_available_disk_space honest about the gap.
func AvailableDiskSpace(path string) (uint64, error) {
	return 0, errors.New("storage: available disk space is not implemented on this platform")
}
