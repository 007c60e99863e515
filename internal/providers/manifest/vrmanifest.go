package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/bytedance/sonic"
)

type vrManifestFile struct {
	Source       string          `json:"source"`
	Applications []vrApplication `json:"applications"`
}

type vrApplication struct {
	AppKey           string `json:"app_key"`
	LaunchType       string `json:"launch_type"`
	BinaryPath       string `json:"binary_path_windows"`
	Arguments        string `json:"arguments"`
	WorkingDirectory string `json:"working_directory"`
	ImagePath        string `json:"image_path"`
	IsDashboard      bool   `json:"is_dashboard_overlay"`
	Strings          map[string]struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"strings"`
}

// VRManifest reads OpenVR .vrmanifest files
type VRManifest struct{}

func (VRManifest) ListEntries(path string) ([]Entry, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var file vrManifestFile
	if err := sonic.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vrmanifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	entries := make([]Entry, 0, len(file.Applications))
	for _, app := range file.Applications {
		if app.AppKey == "" || app.IsDashboard {
			continue
		}
		name := app.AppKey
		if s, ok := app.Strings["en_us"]; ok && s.Name != "" {
			name = s.Name
		}
		entries = append(entries, Entry{
			Key:        app.AppKey,
			Name:       name,
			BinaryPath: absolute(base, app.BinaryPath),
			Arguments:  app.Arguments,
			WorkingDir: absolute(base, app.WorkingDirectory),
			ImagePath:  absolute(base, app.ImagePath),
			IsVR:       true,
		})
	}
	return entries, nil
}

func (m VRManifest) NameForKey(path, key string) (string, error) {
	return nameForKey(m, path, key)
}

func (m VRManifest) ImagePathForKey(path, key string) (string, error) {
	return imagePathForKey(m, path, key)
}

// absolute resolves manifest-relative paths against the manifest directory
func absolute(base, p string) string {
	if p == "" || filepath.IsAbs(p) || (len(p) > 1 && p[1] == ':') {
		return p
	}
	return filepath.Join(base, p)
}
