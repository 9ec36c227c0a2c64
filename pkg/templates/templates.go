package templates

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdxmph/upcache/pkg/duplicate"
)

// Variables holds all the available template variables
type Variables struct {
	ID         int64
	URL        string
	Filename   string // Original filename
	Name       string // Filename without extension
	Path       string
	Hash       string
	UploadDate time.Time
	Reused     bool // URL came from the cache
}

var (
	// Match %variable% or %var1|var2|var3%
	templatePattern = regexp.MustCompile(`%([^%\s]+)%`)
)

// Process renders a template with the given variables
func Process(template string, vars Variables) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		content := strings.Trim(match, "%")

		// Fallback chain: first non-empty value wins
		for _, part := range strings.Split(content, "|") {
			if value := getVariable(strings.TrimSpace(part), vars); value != "" {
				return value
			}
		}
		return ""
	})
}

// getVariable returns the value of a single variable
func getVariable(name string, vars Variables) string {
	switch name {
	case "id":
		if vars.ID == 0 {
			return ""
		}
		return strconv.FormatInt(vars.ID, 10)
	case "url":
		return vars.URL
	case "filename":
		return vars.Filename
	case "name":
		return vars.Name
	case "path":
		return vars.Path
	case "hash":
		return vars.Hash
	case "upload_date":
		if vars.UploadDate.IsZero() {
			return ""
		}
		return vars.UploadDate.Format(time.RFC3339)
	case "reused":
		return strconv.FormatBool(vars.Reused)
	default:
		return ""
	}
}

// BuildVariables creates template variables for a file and the record that serves it.
// record may be nil when the upload succeeded but could not be cached.
func BuildVariables(filePath, url string, record *duplicate.Upload, reused bool) Variables {
	filename := filepath.Base(filePath)
	vars := Variables{
		URL:      url,
		Filename: filename,
		Name:     strings.TrimSuffix(filename, filepath.Ext(filename)),
		Path:     filePath,
		Reused:   reused,
	}
	if record != nil {
		vars.ID = record.ID
		vars.Hash = record.FileHash
		vars.UploadDate = record.UploadDate
	}
	return vars
}
