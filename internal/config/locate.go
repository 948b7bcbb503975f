package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the configuration file name looked up by Locate.
const FileName = "resticd.yaml"

// ErrNotFound is returned by Locate when no configuration file exists in
// any searched location.
var ErrNotFound = errors.New("config: no configuration file found")

// SearchPaths returns the locations Locate probes, in order: the directory
// of the running executable, then the working directory.
func SearchPaths() []string {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), FileName))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, FileName))
	}
	return candidates
}

// Locate returns explicit when set, otherwise the first existing file
// from SearchPaths.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return firstExisting(SearchPaths())
}

func firstExisting(candidates []string) (string, error) {
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, candidates)
}
