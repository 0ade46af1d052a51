package logging

import (
	"context"
	"testing"
)

func TestWithUploadID(t *testing.T) {
	ctx := WithUploadID(context.Background(), "upload-123")

	if got := GetUploadID(ctx); got != "upload-123" {
		t.Errorf("GetUploadID() = %q, want %q", got, "upload-123")
	}
}

func TestWithArtifact(t *testing.T) {
	ctx := WithArtifact(context.Background(), "/tmp/auditclient/a.png")

	if got := GetArtifact(ctx); got != "/tmp/auditclient/a.png" {
		t.Errorf("GetArtifact() = %q, want %q", got, "/tmp/auditclient/a.png")
	}
}

func TestGetters_NotPresent(t *testing.T) {
	ctx := context.Background()

	if got := GetUploadID(ctx); got != "" {
		t.Errorf("GetUploadID() = %q, want empty string", got)
	}
	if got := GetArtifact(ctx); got != "" {
		t.Errorf("GetArtifact() = %q, want empty string", got)
	}
}
