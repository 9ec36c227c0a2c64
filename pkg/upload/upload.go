package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/op/go-logging"
	"github.com/pdxmph/upcache/pkg/duplicate"
	"github.com/pdxmph/upcache/pkg/templates"
	"github.com/pdxmph/upcache/pkg/uploader"
)

// Options for upload
type Options struct {
	Format   string         // template name; falls back to "url"
	Force    bool           // skip the cache and always upload
	Metadata map[string]any // stored with the new record
}

// Result of an upload
type Result struct {
	URL             string
	Record          *duplicate.Upload // nil when the new upload could not be cached
	Reused          bool
	Warnings        []string
	FormattedOutput string
}

// Service uploads files through the cache
type Service struct {
	checker   duplicate.Checker
	uploader  uploader.Uploader
	templates map[string]string
	log       *logging.Logger
}

// New creates a new upload service
func New(checker duplicate.Checker, up uploader.Uploader, tmpls map[string]string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.MustGetLogger("upload")
	}
	return &Service{
		checker:   checker,
		uploader:  up,
		templates: tmpls,
		log:       log,
	}
}

// Upload returns a live cached URL for filePath when there is one, and
// otherwise uploads the file and records the new URL
func (s *Service) Upload(ctx context.Context, filePath string, opts Options) (*Result, error) {
	stat, err := os.Stat(filePath)
	if err != nil || stat.IsDir() {
		return nil, fmt.Errorf("%w: %s", duplicate.ErrFileNotFound, filePath)
	}

	if !opts.Force {
		existing, err := s.checker.Check(ctx, filePath)
		if err != nil {
			// A broken cache must not block the upload
			s.log.Warningf("duplicate check for %s failed: %v", filePath, err)
		} else if existing != nil {
			s.log.Infof("reusing %s for %s (record %d)", existing.URL, filePath, existing.ID)
			result := &Result{URL: existing.URL, Record: existing, Reused: true}
			s.format(result, filePath, opts.Format)
			return result, nil
		}
	}

	url, err := s.uploader.Upload(ctx, filePath)
	if err != nil {
		return nil, err
	}
	result := &Result{URL: url}

	record, err := s.checker.Record(ctx, filePath, url, opts.Metadata)
	if err != nil {
		s.log.Warningf("upload of %s succeeded but was not cached: %v", filePath, err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("upload succeeded but could not be cached: %v", err))
	} else {
		result.Record = record
	}

	s.format(result, filePath, opts.Format)
	return result, nil
}

func (s *Service) format(result *Result, filePath, format string) {
	tmpl, exists := s.templates[format]
	if !exists {
		tmpl, exists = s.templates["url"]
	}
	if !exists {
		tmpl = "%url%"
	}
	vars := templates.BuildVariables(filePath, result.URL, result.Record, result.Reused)
	result.FormattedOutput = templates.Process(tmpl, vars)
}
