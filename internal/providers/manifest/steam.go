package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SteamLibrary reads appmanifest_*.acf files from a steamapps directory
type SteamLibrary struct{}

// ListEntries lists the installed apps of the steamapps directory at path
func (SteamLibrary) ListEntries(path string) ([]Entry, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	files, err := doublestar.Glob(os.DirFS(path), "appmanifest_*.acf")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var entries []Entry
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		state := parseACF(data)
		appID := state["appid"]
		if appID == "" {
			continue
		}
		entries = append(entries, Entry{
			Key:        appID,
			Name:       state["name"],
			WorkingDir: filepath.Join(path, "common", state["installdir"]),
			ImagePath:  SteamHeaderImage(filepath.Dir(path), appID),
			IsVR:       true,
		})
	}
	return entries, nil
}

func (l SteamLibrary) NameForKey(path, key string) (string, error) {
	return nameForKey(l, path, key)
}

func (l SteamLibrary) ImagePathForKey(path, key string) (string, error) {
	return imagePathForKey(l, path, key)
}

// SteamHeaderImage is where the Steam client caches an app's header image
func SteamHeaderImage(steamRoot, appID string) string {
	return filepath.Join(steamRoot, "appcache", "librarycache", appID+"_header.jpg")
}

// parseACF flattens the quoted key/value pairs of an ACF document.
// Nested sections are skipped; only the top-level AppState values matter.
func parseACF(data []byte) map[string]string {
	out := make(map[string]string)
	depth := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "{":
			depth++
			continue
		case "}":
			depth--
			continue
		}
		if depth != 1 {
			continue
		}
		fields := quoted(line)
		if len(fields) == 2 {
			out[strings.ToLower(fields[0])] = fields[1]
		}
	}
	return out
}

func quoted(line string) []string {
	var fields []string
	for {
		start := strings.IndexByte(line, '"')
		if start < 0 {
			return fields
		}
		rest := line[start+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return fields
		}
		fields = append(fields, rest[:end])
		line = rest[end+1:]
	}
}
