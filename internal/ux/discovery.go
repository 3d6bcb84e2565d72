package ux

import (
	"os"
	"path/filepath"
)

// DirName is the per-project docflow directory.
const DirName = ".docflow"

// DiscoverDocflowDir walks from start towards the filesystem root and
// returns the first directory containing a .docflow directory. The walk
// stops after the repository root (the first directory holding .git). found
// is false when no .docflow directory exists; dir is then start/.docflow.
func DiscoverDocflowDir(start string) (dir string, found bool, err error) {
	start, err = filepath.Abs(start)
	if err != nil {
		return "", false, err
	}

	cur := start
	for {
		candidate := filepath.Join(cur, DirName)
		if isDir(candidate) {
			return candidate, true, nil
		}
		if exists(filepath.Join(cur, ".git")) {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return filepath.Join(start, DirName), false, nil
}

// ProjectRoot returns the directory holding the discovered .docflow
// directory, or start when none exists.
func ProjectRoot(start string) (string, error) {
	dir, _, err := DiscoverDocflowDir(start)
	if err != nil {
		return "", err
	}
	return filepath.Dir(dir), nil
}

// DiscoverConfigFile returns the config file inside the discovered .docflow
// directory. found reports whether the file exists.
func DiscoverConfigFile(start, filename string) (path string, found bool, err error) {
	dir, _, err := DiscoverDocflowDir(start)
	if err != nil {
		return "", false, err
	}
	path = filepath.Join(dir, filename)
	return path, exists(path), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
