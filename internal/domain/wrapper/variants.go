package wrapper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/station/internal/domain/headset"
	"github.com/GriffinCanCode/station/internal/providers/manifest"
	"github.com/GriffinCanCode/station/internal/providers/vrruntime"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

func summaries(kind types.WrapperType, entries []manifest.Entry) []types.ExperienceSummary {
	out := make([]types.ExperienceSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.ExperienceSummary{
			Type:       kind,
			ID:         e.Key,
			Name:       e.Name,
			Executable: filepath.Base(e.BinaryPath),
			Path:       e.BinaryPath,
			Parameters: e.Arguments,
			IsVR:       e.IsVR,
		})
	}
	return out
}

func existing(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", manifest.ErrEntryNotFound, path)
		}
		return "", err
	}
	return path, nil
}

// Embedded launches executables listed in the Station's own catalog
type Embedded struct {
	Catalog manifest.Catalog
	Path    string // catalog file
}

func (Embedded) Type() types.WrapperType { return types.WrapperEmbedded }
func (Embedded) ProcessNames() []string  { return nil }

func (e Embedded) Collect(context.Context) ([]types.ExperienceSummary, error) {
	entries, err := e.Catalog.ListEntries(e.Path)
	if err != nil {
		return nil, err
	}
	return summaries(types.WrapperEmbedded, entries), nil
}

// Resolve prefers the experience's own path over the catalog entry
func (e Embedded) Resolve(exp types.Experience) (Target, error) {
	bin, params := exp.AltPath, exp.Parameters
	if bin == "" {
		entries, err := e.Catalog.ListEntries(e.Path)
		if err != nil {
			return Target{}, err
		}
		for _, entry := range entries {
			if entry.Key == exp.ID {
				bin = entry.BinaryPath
				if params == "" {
					params = entry.Arguments
				}
				break
			}
		}
		if bin == "" {
			return Target{}, fmt.Errorf("%w: %s", manifest.ErrEntryNotFound, exp.ID)
		}
	}

	name := exp.ExecutableName
	if name == "" {
		name = filepath.Base(bin)
	}
	return Target{
		Path:       bin,
		Args:       splitArgs(params),
		MatchNames: []string{name},
	}, nil
}

func (e Embedded) HeaderImage(id string) (string, error) {
	path, err := e.Catalog.ImagePathForKey(e.Path, id)
	if err != nil {
		return "", err
	}
	return existing(path)
}

// Registrar accepts runtime launch registrations
type Registrar interface {
	Register(key, uri string)
}

// ArtworkSource downloads header images the Steam client has not cached
type ArtworkSource interface {
	HeaderImage(ctx context.Context, appID string) (string, error)
}

const artworkTimeout = 30 * time.Second

// Steam launches games installed in a Steam library
type Steam struct {
	Library   manifest.SteamLibrary
	SteamApps string // steamapps directory
	SteamRoot string
	SteamExe  string
	Registrar Registrar     // Optional
	Artwork   ArtworkSource // Optional
}

func (Steam) Type() types.WrapperType { return types.WrapperSteam }
func (Steam) ProcessNames() []string  { return []string{"steam"} }

// Collect lists installed games, registering each with the VR runtime.
// SteamVR itself is not an experience.
func (s Steam) Collect(context.Context) ([]types.ExperienceSummary, error) {
	entries, err := s.Library.ListEntries(s.SteamApps)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Key == headset.SteamVRAppID {
			continue
		}
		if s.Registrar != nil {
			s.Registrar.Register(vrruntime.SteamAppKey(e.Key), "steam://rungameid/"+e.Key)
		}
		kept = append(kept, e)
	}
	return summaries(types.WrapperSteam, kept), nil
}

func (s Steam) Resolve(exp types.Experience) (Target, error) {
	name, err := s.Library.NameForKey(s.SteamApps, exp.ID)
	if err != nil {
		return Target{}, err
	}
	args := []string{"-applaunch", exp.ID}
	args = append(args, splitArgs(exp.Parameters)...)
	return Target{
		Name:       name,
		RuntimeKey: vrruntime.SteamAppKey(exp.ID),
		Path:       s.SteamExe,
		Args:       args,
		MatchTitle: name,
		Launcher:   true,
	}, nil
}

// HeaderImage prefers the Steam client's cache and falls back to Artwork
func (s Steam) HeaderImage(id string) (string, error) {
	path, err := existing(manifest.SteamHeaderImage(s.SteamRoot, id))
	if err == nil || s.Artwork == nil {
		return path, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), artworkTimeout)
	defer cancel()
	return s.Artwork.HeaderImage(ctx, id)
}

// VRManifest launches applications listed in an OpenVR .vrmanifest.
// Revive and custom experiences differ only in the manifest they read.
type VRManifest struct {
	kind     types.WrapperType
	reader   manifest.VRManifest
	path     string
	required []string
}

// NewRevive creates the variant for the Revive injector manifest
func NewRevive(path string) *VRManifest {
	return &VRManifest{kind: types.WrapperRevive, path: path, required: []string{vrruntime.ServerProcess}}
}

// NewCustom creates the variant for the Station's custom manifest
func NewCustom(path string) *VRManifest {
	return &VRManifest{kind: types.WrapperCustom, path: path, required: []string{vrruntime.ServerProcess}}
}

func (m *VRManifest) Type() types.WrapperType { return m.kind }
func (m *VRManifest) ProcessNames() []string  { return append([]string(nil), m.required...) }

func (m *VRManifest) Collect(context.Context) ([]types.ExperienceSummary, error) {
	entries, err := m.reader.ListEntries(m.path)
	if err != nil {
		return nil, err
	}
	return summaries(m.kind, entries), nil
}

func (m *VRManifest) Resolve(exp types.Experience) (Target, error) {
	entries, err := m.reader.ListEntries(m.path)
	if err != nil {
		return Target{}, err
	}
	for _, e := range entries {
		if e.Key != exp.ID {
			continue
		}
		params := exp.Parameters
		if params == "" {
			params = e.Arguments
		}
		return Target{
			Name:       e.Name,
			RuntimeKey: e.Key,
			Path:       e.BinaryPath,
			Args:       splitArgs(params),
			Dir:        e.WorkingDir,
			MatchNames: []string{strings.TrimSuffix(filepath.Base(e.BinaryPath), filepath.Ext(e.BinaryPath))},
			MatchTitle: e.Name,
		}, nil
	}
	return Target{}, fmt.Errorf("%w: %s in %s", manifest.ErrEntryNotFound, exp.ID, m.path)
}

func (m *VRManifest) HeaderImage(id string) (string, error) {
	path, err := m.reader.ImagePathForKey(m.path, id)
	if err != nil {
		return "", err
	}
	return existing(path)
}
