package finalize

import (
	"os"
)

// renameChecked renames src to dst after checking that dst doesn't exist.
func renameChecked(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return renameExists(dst)
	}
	return os.Rename(src, dst)
}
