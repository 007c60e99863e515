package types

import "strings"

// MessageKind tags an event routed through the session funnel
type MessageKind string

const (
	KindMessageToAndroid  MessageKind = "MessageToAndroid"
	KindApplicationUpdate MessageKind = "ApplicationUpdate"
	KindSoftwareState     MessageKind = "SoftwareState"
	KindApplicationClosed MessageKind = "ApplicationClosed"
	KindStationError      MessageKind = "StationError"
	KindGameLaunchFailed  MessageKind = "GameLaunchFailed"
	KindStatus            MessageKind = "Status"
	KindPopupDetected     MessageKind = "PopupDetected"
	KindHighTemperature   MessageKind = "HighTemperature"
	KindThumbnailError    MessageKind = "ThumbnailError"
	KindSteamError        MessageKind = "SteamError"
)

// Outbound destinations
const (
	DestinationNUC     = "NUC"
	DestinationAndroid = "Android"
)

// Status values mirrored to the tablet
const (
	StatusOn            = "On"
	StatusNotResponding = "Not Responding"
)

// Message is a tagged outward event
type Message struct {
	Kind   MessageKind
	Values []string
}

// NewMessage builds a message of the given kind
func NewMessage(kind MessageKind, values ...string) Message {
	return Message{Kind: kind, Values: values}
}

// Value returns the i-th value or an empty string
func (m Message) Value(i int) string {
	if i < 0 || i >= len(m.Values) {
		return ""
	}
	return m.Values[i]
}

// String renders the message as kind:values for logging
func (m Message) String() string {
	if len(m.Values) == 0 {
		return string(m.Kind)
	}
	return string(m.Kind) + ":" + strings.Join(m.Values, ":")
}

// Wire renders the payloads sent to the NUC for this message.
// Messages that update local state only return nil.
func (m Message) Wire() []string {
	switch m.Kind {
	case KindStatus:
		return []string{"SetValue:status:" + m.Value(0)}
	case KindSoftwareState:
		return []string{"SetValue:state:" + m.Value(0)}
	case KindApplicationUpdate:
		return []string{
			"SetValue:gameName:" + m.Value(0),
			"SetValue:gameId:" + m.Value(1),
			"SetValue:gameType:" + m.Value(2),
		}
	case KindApplicationClosed:
		return []string{
			"SetValue:gameName:",
			"SetValue:gameId:",
			"SetValue:gameType:",
			"SetValue:status:" + StatusOn,
		}
	case KindMessageToAndroid:
		return []string{strings.Join(m.Values, ":")}
	default:
		return []string{m.String()}
	}
}
