package duplicate

import (
	"context"
	"net/http"
	"time"

	"github.com/op/go-logging"
)

// DefaultProbeTimeout bounds a single liveness probe
const DefaultProbeTimeout = 10 * time.Second

// Verifier decides whether a cached URL still resolves
type Verifier interface {
	// IsLive reports true only when the URL answered with 200 OK.
	// Any failure, including a timeout, is reported as not live.
	IsLive(ctx context.Context, url string) bool
}

// VerifierFunc adapts a plain function to the Verifier interface
type VerifierFunc func(ctx context.Context, url string) bool

// IsLive calls f(ctx, url)
func (f VerifierFunc) IsLive(ctx context.Context, url string) bool {
	return f(ctx, url)
}

// HTTPVerifier probes URLs with a HEAD request, following redirects
type HTTPVerifier struct {
	Client  *http.Client
	Timeout time.Duration
	Log     *logging.Logger
}

// NewHTTPVerifier creates a verifier with the given probe timeout
func NewHTTPVerifier(timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPVerifier{
		Client:  &http.Client{},
		Timeout: timeout,
		Log:     logging.MustGetLogger("duplicate"),
	}
}

// IsLive issues HEAD against url and reports whether it returned 200
func (v *HTTPVerifier) IsLive(ctx context.Context, url string) bool {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		v.debugf("probe %s: %v", url, err)
		return false
	}

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		v.debugf("probe %s: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.debugf("probe %s: status %d", url, resp.StatusCode)
		return false
	}
	return true
}

func (v *HTTPVerifier) debugf(format string, args ...any) {
	if v.Log != nil {
		v.Log.Debugf(format, args...)
	}
}
