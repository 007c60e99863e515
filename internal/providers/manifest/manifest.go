package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrManifestNotFound is returned when the manifest file or directory is absent
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrEntryNotFound is returned when no entry has the requested key
	ErrEntryNotFound = errors.New("manifest entry not found")
)

// Entry is one application listed in a manifest
type Entry struct {
	Key        string
	Name       string
	BinaryPath string
	Arguments  string
	WorkingDir string
	ImagePath  string
	IsVR       bool
}

// Reader is implemented by every manifest format
type Reader interface {
	ListEntries(path string) ([]Entry, error)
	NameForKey(path, key string) (string, error)
	ImagePathForKey(path, key string) (string, error)
}

type lister interface {
	ListEntries(path string) ([]Entry, error)
}

func find(l lister, path, key string) (Entry, error) {
	entries, err := l.ListEntries(path)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s in %s", ErrEntryNotFound, key, path)
}

func nameForKey(l lister, path, key string) (string, error) {
	e, err := find(l, path, key)
	if err != nil {
		return "", err
	}
	return e.Name, nil
}

func imagePathForKey(l lister, path, key string) (string, error) {
	e, err := find(l, path, key)
	if err != nil {
		return "", err
	}
	if e.ImagePath == "" {
		return "", fmt.Errorf("%w: no image for %s", ErrEntryNotFound, key)
	}
	return e.ImagePath, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return data, nil
}
