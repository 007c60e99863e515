package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

type catalogFile struct {
	Experiences []catalogEntry `yaml:"experiences" toml:"experiences"`
}

type catalogEntry struct {
	ID         string `yaml:"id" toml:"id"`
	Name       string `yaml:"name" toml:"name"`
	Executable string `yaml:"executable" toml:"executable"`
	Path       string `yaml:"path" toml:"path"`
	Parameters string `yaml:"parameters" toml:"parameters"`
	VR         bool   `yaml:"vr" toml:"vr"`
	Image      string `yaml:"image" toml:"image"`
}

// Catalog reads the catalog of embedded experiences, YAML unless the file
// ends in .toml. Entries that name only an executable are located by
// scanning Root.
type Catalog struct {
	Root string
}

func (c Catalog) ListEntries(path string) ([]Entry, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		unmarshal = toml.Unmarshal
	}
	if err := unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	var missing []string
	for _, e := range file.Experiences {
		if e.Path == "" && e.Executable != "" {
			missing = append(missing, e.Executable)
		}
	}
	found := map[string]string{}
	if len(missing) > 0 && c.Root != "" {
		if found, err = FindExecutables(context.Background(), c.Root, missing...); err != nil {
			return nil, err
		}
	}

	base := filepath.Dir(path)
	entries := make([]Entry, 0, len(file.Experiences))
	for _, e := range file.Experiences {
		if e.ID == "" {
			continue
		}
		bin := e.Path
		if bin == "" {
			bin = found[strings.ToLower(e.Executable)]
		}
		entry := Entry{
			Key:        e.ID,
			Name:       e.Name,
			BinaryPath: bin,
			Arguments:  e.Parameters,
			ImagePath:  absolute(base, e.Image),
			IsVR:       e.VR,
		}
		if bin != "" {
			entry.WorkingDir = filepath.Dir(bin)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c Catalog) NameForKey(path, key string) (string, error) {
	return nameForKey(c, path, key)
}

func (c Catalog) ImagePathForKey(path, key string) (string, error) {
	return imagePathForKey(c, path, key)
}

// FindExecutables walks root and returns the first path found for each
// of names, keyed by lowercased file name.
func FindExecutables(ctx context.Context, root string, names ...string) (map[string]string, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}

	var mu sync.Mutex
	found := make(map[string]string)
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		base := strings.ToLower(d.Name())
		if !wanted[base] {
			return nil
		}
		mu.Lock()
		if prev, ok := found[base]; !ok || p < prev {
			found[base] = p
		}
		mu.Unlock()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return found, nil
}
