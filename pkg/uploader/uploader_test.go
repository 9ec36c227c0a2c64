package uploader_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdxmph/upcache/pkg/config"
	"github.com/pdxmph/upcache/pkg/duplicate"
	"github.com/pdxmph/upcache/pkg/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseURL(t *testing.T) {
	cases := map[string]string{
		"[INFO] uploading\n[SUCCESS] Upload complete: https://cdn.example/a.png\n": "https://cdn.example/a.png",
		"✅ アップロード完了: https://cdn.example/b.png":                                 "https://cdn.example/b.png",
		"progress 100%\nhttps://cdn.example/c.png\n":                                 "https://cdn.example/c.png",
		"see https://cdn.example/d.png for details":                                  "",
		"nothing useful":                                                              "",
		"[SUCCESS] https://cdn.example/e.png":                                         "https://cdn.example/e.png",
	}
	for output, want := range cases {
		assert.Equal(t, want, uploader.ParseURL(output), output)
	}

	// Marker lines without a URL are status messages
	assert.Equal(t, "https://cdn.example/f.png",
		uploader.ParseURL("[SUCCESS] Auth OK: token valid\n[SUCCESS] Upload complete: https://cdn.example/f.png\n"))
	assert.Equal(t, "https://cdn.example/g.png",
		uploader.ParseURL("[SUCCESS] Connected at 12:30\nhttps://cdn.example/g.png\n"))
	assert.Empty(t, uploader.ParseURL("[SUCCESS] Auth OK: token valid\n"))
}

func TestCommandUploaderSuccess(t *testing.T) {
	path := tempFile(t, "photo.png", "bytes")
	up := uploader.NewCommandUploader("sh", "-c", `echo "[SUCCESS] Upload complete: https://cdn.example/$(basename "$1")"`, "sh")

	url, err := up.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/photo.png", url)
}

func TestCommandUploaderFailureKeepsOutput(t *testing.T) {
	path := tempFile(t, "photo.png", "bytes")
	up := uploader.NewCommandUploader("sh", "-c", `echo "token expired" >&2; exit 3`, "sh")

	_, err := up.Upload(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, duplicate.ErrUploadFailed))

	var uploadErr *uploader.UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Contains(t, uploadErr.Error(), "status 3")
	assert.Contains(t, uploadErr.Diagnostics(), "token expired")
}

func TestCommandUploaderSkipsStatusLines(t *testing.T) {
	path := tempFile(t, "photo.png", "bytes")
	up := uploader.NewCommandUploader("sh", "-c",
		`echo "[SUCCESS] Auth OK: token valid"; echo "[SUCCESS] Connected at 12:30"; echo "[SUCCESS] Upload complete: https://cdn.example/photo.png"`, "sh")

	url, err := up.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/photo.png", url)
}

func TestCommandUploaderStatusLineOnlyFails(t *testing.T) {
	path := tempFile(t, "photo.png", "bytes")
	up := uploader.NewCommandUploader("sh", "-c", `echo "[SUCCESS] Auth OK: token valid"`, "sh")

	_, err := up.Upload(context.Background(), path)
	assert.ErrorIs(t, err, duplicate.ErrUploadFailed)
}

func TestCommandUploaderNoURL(t *testing.T) {
	path := tempFile(t, "photo.png", "bytes")
	up := uploader.NewCommandUploader("sh", "-c", `echo "all done"`, "sh")

	_, err := up.Upload(context.Background(), path)
	assert.ErrorIs(t, err, duplicate.ErrUploadFailed)
	var uploadErr *uploader.UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Contains(t, uploadErr.Diagnostics(), "all done")
}

func TestCommandUploaderMissingProgram(t *testing.T) {
	up := uploader.NewCommandUploader("/nonexistent/uploader")
	_, err := up.Upload(context.Background(), "x.png")
	assert.ErrorIs(t, err, duplicate.ErrUploadFailed)
}

func TestHTTPUploader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "bytes", string(data))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"link":"https://cdn.example/`+header.Filename+`"}`)
	}))
	defer server.Close()

	up := uploader.NewHTTPUploader(config.UploaderConfig{
		Endpoint:  server.URL,
		FormField: "image",
		URLField:  "link",
	})
	url, err := up.Upload(context.Background(), tempFile(t, "photo.png", "bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/photo.png", url)
}

func TestHTTPUploaderSignsWithOAuth1(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "OAuth "), auth)
		assert.Contains(t, auth, `oauth_consumer_key="key"`)
		io.WriteString(w, `{"url":"https://cdn.example/signed.png"}`)
	}))
	defer server.Close()

	up := uploader.NewHTTPUploader(config.UploaderConfig{
		Endpoint:       server.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		AccessToken:    "token",
		AccessSecret:   "token-secret",
	})
	url, err := up.Upload(context.Background(), tempFile(t, "signed.png", "bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/signed.png", url)
}

func TestHTTPUploaderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			io.WriteString(w, `{"status":"ok"}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}))
	defer server.Close()

	path := tempFile(t, "photo.png", "bytes")

	_, err := uploader.NewHTTPUploader(config.UploaderConfig{Endpoint: server.URL + "/fail"}).Upload(context.Background(), path)
	var uploadErr *uploader.UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Contains(t, uploadErr.Error(), "status 502")
	assert.Equal(t, "upstream down", uploadErr.Diagnostics())

	_, err = uploader.NewHTTPUploader(config.UploaderConfig{Endpoint: server.URL + "/empty"}).Upload(context.Background(), path)
	assert.ErrorIs(t, err, duplicate.ErrUploadFailed)

	_, err = uploader.NewHTTPUploader(config.UploaderConfig{Endpoint: server.URL}).Upload(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, duplicate.ErrUploadFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew(t *testing.T) {
	up, err := uploader.New(config.UploaderConfig{Endpoint: "https://upload.example"})
	require.NoError(t, err)
	assert.IsType(t, &uploader.HTTPUploader{}, up)

	up, err = uploader.New(config.UploaderConfig{Command: []string{"upload.sh"}})
	require.NoError(t, err)
	assert.IsType(t, &uploader.CommandUploader{}, up)

	_, err = uploader.New(config.UploaderConfig{})
	assert.Error(t, err)
}
