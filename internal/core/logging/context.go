package logging

import "context"

type contextKey string

const (
	uploadIDKey contextKey = "upload_id"
	artifactKey contextKey = "artifact"
)

// WithUploadID adds an upload correlation ID to the context.
func WithUploadID(ctx context.Context, uploadID string) context.Context {
	return context.WithValue(ctx, uploadIDKey, uploadID)
}

// WithArtifact adds an artifact path to the context.
func WithArtifact(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, artifactKey, path)
}

// GetUploadID retrieves the upload correlation ID from the context.
// Returns empty string if not present.
func GetUploadID(ctx context.Context) string {
	if id, ok := ctx.Value(uploadIDKey).(string); ok {
		return id
	}
	return ""
}

// GetArtifact retrieves the artifact path from the context.
// Returns empty string if not present.
func GetArtifact(ctx context.Context) string {
	if p, ok := ctx.Value(artifactKey).(string); ok {
		return p
	}
	return ""
}
