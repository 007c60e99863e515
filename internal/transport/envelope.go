package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEnvelope is returned for inbound text missing routing fields
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is one inbound command
type Envelope struct {
	Source      string
	Destination string
	Namespace   string
	Payload     string // May itself contain colons
}

// ParseEnvelope splits source:destination:namespace:payload
func ParseEnvelope(text string) (Envelope, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ":", 4)
	if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
		return Envelope{}, fmt.Errorf("%w: %q", ErrMalformedEnvelope, text)
	}
	env := Envelope{
		Source:      parts[0],
		Destination: parts[1],
		Namespace:   parts[2],
	}
	if len(parts) == 4 {
		env.Payload = parts[3]
	}
	return env, nil
}

func (e Envelope) String() string {
	return e.Source + ":" + e.Destination + ":" + e.Namespace + ":" + e.Payload
}

// Outbound renders destination:source:payload
func Outbound(destination, source, payload string) string {
	return destination + ":" + source + ":" + payload
}
