package uploader

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdxmph/upcache/pkg/config"
	"github.com/pdxmph/upcache/pkg/duplicate"
)

// Uploader sends a local file to the remote host and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, filePath string) (string, error)
}

// Func adapts a plain function to the Uploader interface
type Func func(ctx context.Context, filePath string) (string, error)

// Upload calls f(ctx, filePath)
func (f Func) Upload(ctx context.Context, filePath string) (string, error) {
	return f(ctx, filePath)
}

// UploadError reports a failed upload along with whatever the uploader printed
type UploadError struct {
	Reason string
	Output string
	Err    error
}

func (e *UploadError) Error() string {
	msg := "upload failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match both duplicate.ErrUploadFailed and the cause
func (e *UploadError) Unwrap() []error {
	if e.Err == nil {
		return []error{duplicate.ErrUploadFailed}
	}
	return []error{duplicate.ErrUploadFailed, e.Err}
}

// Diagnostics returns the captured uploader output, trimmed
func (e *UploadError) Diagnostics() string {
	return strings.TrimSpace(e.Output)
}

// New builds the uploader described by cfg
func New(cfg config.UploaderConfig) (Uploader, error) {
	if cfg.Endpoint != "" {
		return NewHTTPUploader(cfg), nil
	}
	if len(cfg.Command) > 0 {
		return NewCommandUploader(cfg.Command...), nil
	}
	return nil, fmt.Errorf("no uploader configured: set uploader.command or uploader.endpoint")
}
