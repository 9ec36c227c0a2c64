package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dghubble/oauth1"
	"github.com/pdxmph/upcache/pkg/config"
)

// HTTPUploader posts the file as a multipart form and reads the URL from the
// JSON response. Requests are OAuth1-signed when consumer credentials are set.
type HTTPUploader struct {
	Endpoint       string
	FormField      string
	URLField       string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string

	// Client is used for unsigned requests; defaults to http.DefaultClient
	Client *http.Client
}

// NewHTTPUploader creates an HTTP uploader from configuration
func NewHTTPUploader(cfg config.UploaderConfig) *HTTPUploader {
	return &HTTPUploader{
		Endpoint:       cfg.Endpoint,
		FormField:      cfg.FormField,
		URLField:       cfg.URLField,
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		AccessToken:    cfg.AccessToken,
		AccessSecret:   cfg.AccessSecret,
	}
}

// Upload sends filePath to the endpoint
func (u *HTTPUploader) Upload(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", &UploadError{Reason: "open file", Err: err}
	}
	defer file.Close()

	formField := u.FormField
	if formField == "" {
		formField = "file"
	}

	// Create multipart form
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formField, filepath.Base(filePath))
	if err != nil {
		return "", &UploadError{Reason: "create form file", Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", &UploadError{Reason: "copy file", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &UploadError{Reason: "close form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &buf)
	if err != nil {
		return "", &UploadError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = int64(buf.Len())

	resp, err := u.httpClient(ctx).Do(req)
	if err != nil {
		return "", &UploadError{Reason: "request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{Reason: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &UploadError{Reason: fmt.Sprintf("status %d", resp.StatusCode), Output: string(body)}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &UploadError{Reason: "decode response", Output: string(body), Err: err}
	}

	urlField := u.URLField
	if urlField == "" {
		urlField = "url"
	}
	url, _ := payload[urlField].(string)
	if url == "" {
		return "", &UploadError{Reason: fmt.Sprintf("response has no %q field", urlField), Output: string(body)}
	}
	return url, nil
}

func (u *HTTPUploader) httpClient(ctx context.Context) *http.Client {
	if u.ConsumerKey != "" && u.ConsumerSecret != "" {
		cfg := oauth1.Config{
			ConsumerKey:    u.ConsumerKey,
			ConsumerSecret: u.ConsumerSecret,
		}
		token := oauth1.NewToken(u.AccessToken, u.AccessSecret)
		return cfg.Client(ctx, token)
	}
	if u.Client != nil {
		return u.Client
	}
	return http.DefaultClient
}
