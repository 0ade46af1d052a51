package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// ErrSubmission is returned when every upload attempt failed.
var ErrSubmission = errors.New("upload submission failed")

// UploaderOptions configures an HTTPUploader.
type UploaderOptions struct {
	URL       string
	ClientID  string
	Attempts  int
	BaseDelay time.Duration
}

// HTTPUploader posts artifacts as multipart form data, retrying with
// exponential backoff.
type HTTPUploader struct {
	client *http.Client
	opts   UploaderOptions
	logger zerolog.Logger
}

func NewHTTPUploader(client *http.Client, opts UploaderOptions, logger zerolog.Logger) *HTTPUploader {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &HTTPUploader{client: client, opts: opts, logger: logger}
}

// Upload sends path tagged with uploadID. The delay between attempts starts
// at BaseDelay and doubles. If ctx is cancelled the context error is
// returned rather than ErrSubmission.
func (u *HTTPUploader) Upload(ctx context.Context, path, uploadID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.opts.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = u.opts.BaseDelay << u.opts.Attempts

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, u.post(ctx, path, uploadID)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(u.opts.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			u.logger.Warn().Ctx(ctx).Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("upload attempt failed")
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrSubmission, attempt, err)
}

func (u *HTTPUploader) post(ctx context.Context, path, uploadID string) error {
	body, contentType, err := multipartBody(path)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.URL, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Client-Id", u.opts.ClientID)
	req.Header.Set("X-Upload-Id", uploadID)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("post artifact: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post artifact: status %d", resp.StatusCode)
	}
	return nil
}

func multipartBody(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreatePart(partHeader(filepath.Base(path)))
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read artifact: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func partHeader(filename string) textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)},
		"Content-Type":        {"application/octet-stream"},
	}
}
