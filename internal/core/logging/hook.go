package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook extracts upload_id and artifact from context and adds them to log events.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if uploadID := GetUploadID(ctx); uploadID != "" {
		e.Str("upload_id", uploadID)
	}

	if artifact := GetArtifact(ctx); artifact != "" {
		e.Str("artifact", artifact)
	}
}
