package ackchannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{name: "ping", in: "ping", want: Message{Kind: KindPing}},
		{name: "ping upper", in: " PING\n", want: Message{Kind: KindPing}},
		{name: "pong", in: "Pong", want: Message{Kind: KindPong}},
		{
			name: "success explicit",
			in:   `{"type":"UPLOAD_SUCCESS","uploadId":"u1","success":true}`,
			want: Message{Kind: KindAck, Type: "UPLOAD_SUCCESS", UploadID: "u1", Success: true},
		},
		{
			name: "success flag false",
			in:   `{"type":"UPLOAD_SUCCESS","uploadId":"u1","success":false}`,
			want: Message{Kind: KindAck, Type: "UPLOAD_SUCCESS", UploadID: "u1"},
		},
		{
			name: "success flag absent",
			in:   `{"type":"UPLOAD_SUCCESS","uploadId":"u2"}`,
			want: Message{Kind: KindAck, Type: "UPLOAD_SUCCESS", UploadID: "u2", Success: true},
		},
		{
			name: "failed ignores flag",
			in:   `{"type":"UPLOAD_FAILED","uploadId":"u3","success":true}`,
			want: Message{Kind: KindAck, Type: "UPLOAD_FAILED", UploadID: "u3"},
		},
		{
			name: "other type",
			in:   `{"type":"SETTINGS_CHANGED"}`,
			want: Message{Kind: KindUnknown, Type: "SETTINGS_CHANGED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := ParseMessage([]byte("hello there"))
	require.Error(t, err)
}
