package status

import (
	"os"
	"path/filepath"
)

// writeFileAtomic replaces path with data so that a concurrent reader, or a
// reader after a crash, sees either the old or the new content in full.
// The sequence is: temp file in the same directory, fsync, rename, fsync dir.
func writeFileAtomic(path string, data []byte, perm os.FileMode, beforeRename func(string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if beforeRename != nil {
		if err := beforeRename(tmpName); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
