package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Envelope
		wantErr bool
	}{
		{
			name: "payload with colons",
			text: "NUC:Station1:HandleExecutable:start:visible:C%/tool.exe::false\n",
			want: Envelope{
				Source:      "NUC",
				Destination: "Station1",
				Namespace:   "HandleExecutable",
				Payload:     "start:visible:C%/tool.exe::false",
			},
		},
		{
			name: "json payload",
			text: `NUC:Station1:QA:{"action":"GetStationState"}`,
			want: Envelope{Source: "NUC", Destination: "Station1", Namespace: "QA", Payload: `{"action":"GetStationState"}`},
		},
		{
			name: "no payload",
			text: "NUC:Station1:Connection",
			want: Envelope{Source: "NUC", Destination: "Station1", Namespace: "Connection"},
		},
		{name: "too few fields", text: "NUC:Station1", wantErr: true},
		{name: "empty namespace", text: "NUC:Station1::x", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEnvelope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, env)
		})
	}
}

func TestOutbound(t *testing.T) {
	assert.Equal(t, "NUC:Station1:SetValue:status:On", Outbound("NUC", "Station1", "SetValue:status:On"))
}
