package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/station/internal/domain/executable"
)

var (
	ErrUnknownNamespace = errors.New("unknown command namespace")
	ErrUnknownAction    = errors.New("unknown command action")
	ErrMalformedCommand = errors.New("malformed command")
)

// Namespace is the third field of an inbound envelope
type Namespace string

const (
	NamespaceConnection       Namespace = "Connection"
	NamespaceStation          Namespace = "Station"
	NamespaceHandleExecutable Namespace = "HandleExecutable"
	NamespaceExperience       Namespace = "Experience"
	NamespaceQA               Namespace = "QA"
)

// Command is a decoded inbound command
type Command interface {
	Namespace() Namespace
}

type (
	// Connect is the peer handshake
	Connect struct{}

	// GetValue asks for the value of Key
	GetValue struct{ Key string }

	// SetValue assigns Value to Key
	SetValue struct{ Key, Value string }

	// HandleExecutable starts or stops an internal executable
	HandleExecutable struct{ Request executable.Request }

	// RefreshExperiences rescans installed experiences
	RefreshExperiences struct{}

	// RestartExperience restarts the session and its experience
	RestartExperience struct{}

	// RequestThumbnails asks for the header images of IDs
	RequestThumbnails struct{ IDs []string }

	// LaunchExperience launches the experience with ID
	LaunchExperience struct{ ID string }

	// PassToExperience hands values to the running experience
	PassToExperience struct{ Values map[string]string }

	// EndExperience stops the running experience
	EndExperience struct{}

	// QA is a quality-assurance request
	QA struct {
		Action string
		Fields map[string]any
	}
)

func (Connect) Namespace() Namespace            { return NamespaceConnection }
func (GetValue) Namespace() Namespace           { return NamespaceStation }
func (SetValue) Namespace() Namespace           { return NamespaceStation }
func (HandleExecutable) Namespace() Namespace   { return NamespaceHandleExecutable }
func (RefreshExperiences) Namespace() Namespace { return NamespaceExperience }
func (RestartExperience) Namespace() Namespace  { return NamespaceExperience }
func (RequestThumbnails) Namespace() Namespace  { return NamespaceExperience }
func (LaunchExperience) Namespace() Namespace   { return NamespaceExperience }
func (PassToExperience) Namespace() Namespace   { return NamespaceExperience }
func (EndExperience) Namespace() Namespace      { return NamespaceExperience }
func (QA) Namespace() Namespace                 { return NamespaceQA }

// Parse decodes the payload of a command in namespace
func Parse(namespace, payload string) (Command, error) {
	switch Namespace(namespace) {
	case NamespaceConnection:
		return Connect{}, nil
	case NamespaceStation:
		return parseStation(payload)
	case NamespaceHandleExecutable:
		req, err := executable.ParseRequest(strings.Split(payload, ":"))
		if err != nil {
			return nil, err
		}
		return HandleExecutable{Request: req}, nil
	case NamespaceExperience:
		return parseExperience(payload)
	case NamespaceQA:
		return parseQA(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, namespace)
	}
}

func parseStation(payload string) (Command, error) {
	action, rest, _ := strings.Cut(payload, ":")
	switch action {
	case "GetValue":
		if rest == "" {
			return nil, fmt.Errorf("%w: GetValue without key", ErrMalformedCommand)
		}
		return GetValue{Key: rest}, nil
	case "SetValue":
		key, value, ok := strings.Cut(rest, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: SetValue %q", ErrMalformedCommand, rest)
		}
		return SetValue{Key: key, Value: value}, nil
	default:
		return nil, fmt.Errorf("%w: Station:%s", ErrUnknownAction, action)
	}
}

func parseExperience(payload string) (Command, error) {
	action, rest, _ := strings.Cut(payload, ":")
	switch action {
	case "Refresh":
		return RefreshExperiences{}, nil
	case "Restart":
		return RestartExperience{}, nil
	case "End":
		return EndExperience{}, nil
	case "Launch":
		if rest == "" {
			return nil, fmt.Errorf("%w: Launch without id", ErrMalformedCommand)
		}
		return LaunchExperience{ID: rest}, nil
	case "Thumbnails":
		ids, err := parseIDs(rest)
		if err != nil {
			return nil, err
		}
		return RequestThumbnails{IDs: ids}, nil
	case "PassToExperience":
		var values map[string]string
		if err := sonic.UnmarshalString(rest, &values); err != nil {
			return nil, fmt.Errorf("%w: PassToExperience: %v", ErrMalformedCommand, err)
		}
		return PassToExperience{Values: values}, nil
	default:
		return nil, fmt.Errorf("%w: Experience:%s", ErrUnknownAction, action)
	}
}

// parseIDs accepts a JSON array or a comma-separated list
func parseIDs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ids []string
		if err := sonic.UnmarshalString(s, &ids); err != nil {
			return nil, fmt.Errorf("%w: Thumbnails: %v", ErrMalformedCommand, err)
		}
		return ids, nil
	}
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseQA(payload string) (Command, error) {
	var fields map[string]any
	if err := sonic.UnmarshalString(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: QA: %v", ErrMalformedCommand, err)
	}
	action, _ := fields["action"].(string)
	return QA{Action: action, Fields: fields}, nil
}
