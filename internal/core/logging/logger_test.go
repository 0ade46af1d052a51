package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	logger := Component("queue")
	logger.Info().Ctx(WithUploadID(context.Background(), "u-9")).Msg("test message")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if cmp := logEntry["cmp"]; cmp != "queue" {
		t.Errorf("Component() cmp = %q, want %q", cmp, "queue")
	}

	if id := logEntry["upload_id"]; id != "u-9" {
		t.Errorf("Component() upload_id = %q, want %q", id, "u-9")
	}

	if msg := logEntry["message"]; msg != "test message" {
		t.Errorf("Component() message = %q, want %q", msg, "test message")
	}
}
