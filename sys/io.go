package sys

import (
	"os"
	"path/filepath"
)

// Exists returns true if the filename or directory exists.
func Exists(fn string) bool {
	_, err := os.Stat(fn)
	return err == nil
}

// WriteFileIfMissing writes buf to fn, creating parent directories as
// needed. It returns false without writing when fn already exists.
func WriteFileIfMissing(fn string, buf []byte, perm os.FileMode) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(fn)
		return false, err
	}
	return true, f.Close()
}
