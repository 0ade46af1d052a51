package ackchannel

import (
	"encoding/json"
	"strings"
)

// Kind classifies an inbound text frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindPing
	KindPong
	KindAck
)

const (
	tokenPing = "ping"
	tokenPong = "pong"

	typeUploadSuccess = "UPLOAD_SUCCESS"
	typeUploadFailed  = "UPLOAD_FAILED"
)

// Message is a decoded inbound frame.
type Message struct {
	Kind     Kind
	Type     string
	UploadID string
	Success  bool
}

type envelope struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
	Success  *bool  `json:"success"`
}

// ParseMessage decodes a text frame. Heartbeat tokens are matched without
// regard to case. An UPLOAD_SUCCESS envelope without a success field counts
// as success; UPLOAD_FAILED is always a failure.
func ParseMessage(data []byte) (Message, error) {
	text := strings.TrimSpace(string(data))
	switch {
	case strings.EqualFold(text, tokenPing):
		return Message{Kind: KindPing}, nil
	case strings.EqualFold(text, tokenPong):
		return Message{Kind: KindPong}, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return Message{}, err
	}

	msg := Message{Type: env.Type, UploadID: env.UploadID}
	switch env.Type {
	case typeUploadSuccess:
		msg.Kind = KindAck
		msg.Success = env.Success == nil || *env.Success
	case typeUploadFailed:
		msg.Kind = KindAck
	}
	return msg, nil
}
