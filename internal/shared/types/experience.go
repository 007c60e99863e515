package types

import "strings"

// WrapperType identifies the launch mechanism of an experience
type WrapperType string

const (
	WrapperEmbedded WrapperType = "Embedded"
	WrapperSteam    WrapperType = "Steam"
	WrapperRevive   WrapperType = "Revive"
	WrapperCustom   WrapperType = "Custom"
)

// ParseWrapperType maps a tag from the wire to a WrapperType
func ParseWrapperType(s string) (WrapperType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "embedded":
		return WrapperEmbedded, true
	case "steam":
		return WrapperSteam, true
	case "revive":
		return WrapperRevive, true
	case "custom":
		return WrapperCustom, true
	default:
		return "", false
	}
}

// ExperienceStatus represents experience lifecycle states
type ExperienceStatus string

const (
	ExperienceStopped ExperienceStatus = "Stopped"
	ExperienceRunning ExperienceStatus = "Running"
)

// Experience represents a launchable application
type Experience struct {
	Type            WrapperType       `json:"type"`
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	ExecutableName  string            `json:"executable_name,omitempty"`
	Parameters      string            `json:"parameters,omitempty"`
	AltPath         string            `json:"alt_path,omitempty"` // Absolute path to the executable
	Status          ExperienceStatus  `json:"status"`
	IsVR            bool              `json:"is_vr"`
	HeaderImagePath string            `json:"header_image_path,omitempty"`
	Subtype         map[string]string `json:"subtype,omitempty"` // e.g. {"category": "shareCode"}
}

// IsNull reports whether the experience is missing its identity and must not be launched
func (e Experience) IsNull() bool {
	return e.Type == "" || e.ID == "" || e.Name == ""
}

// Summary returns the catalog view of the experience
func (e Experience) Summary() ExperienceSummary {
	return ExperienceSummary{
		Type:       e.Type,
		ID:         e.ID,
		Name:       e.Name,
		Executable: e.ExecutableName,
		Path:       e.AltPath,
		Parameters: e.Parameters,
		IsVR:       e.IsVR,
	}
}

// ExperienceSummary is one entry of a wrapper's installed-application scan
type ExperienceSummary struct {
	Type       WrapperType `json:"type"`
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Executable string      `json:"executable,omitempty"`
	Path       string      `json:"path,omitempty"`
	Parameters string      `json:"parameters,omitempty"`
	IsVR       bool        `json:"is_vr"`
}

// Experience expands a summary back into a launchable experience
func (s ExperienceSummary) Experience() Experience {
	return Experience{
		Type:           s.Type,
		ID:             s.ID,
		Name:           s.Name,
		ExecutableName: s.Executable,
		AltPath:        s.Path,
		Parameters:     s.Parameters,
		Status:         ExperienceStopped,
		IsVR:           s.IsVR,
	}
}
