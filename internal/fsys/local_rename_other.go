//go:build !linux

package fsys

func renameNoReplace(src, dst string) error {
	return linkRename(src, dst)
}
