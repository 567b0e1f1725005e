//go:build !linux

package finalize

func renameNoReplace(src, dst string) error { return renameChecked(src, dst) }
