//go:build !windows

package engine

import "syscall"

// diskAvail reports the free space of the volume holding path, in KB.
func diskAvail(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize) / 1024, nil
}
