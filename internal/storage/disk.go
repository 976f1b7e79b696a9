package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// DiskUsageBytes sums the sizes of the regular files under paths. A path may name a file or a
// directory. Empty and missing paths count as zero, so an unconfigured index never fails status.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range paths {
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
