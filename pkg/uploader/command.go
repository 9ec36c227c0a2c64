package uploader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

// successMarkers prefix the line that carries the URL, e.g.
// "[SUCCESS] Upload complete: https://host/file.png"
var successMarkers = []string{"[SUCCESS]", "✅"}

// CommandUploader runs an external program with the file path as its last
// argument and reads the URL from its standard output
type CommandUploader struct {
	Command []string
}

// NewCommandUploader creates an uploader for the given command and leading arguments
func NewCommandUploader(command ...string) *CommandUploader {
	return &CommandUploader{Command: command}
}

// Upload runs the command and extracts the uploaded URL
func (u *CommandUploader) Upload(ctx context.Context, filePath string) (string, error) {
	if len(u.Command) == 0 {
		return "", &UploadError{Reason: "no upload command configured"}
	}

	args := append(append([]string{}, u.Command[1:]...), filePath)
	cmd := exec.CommandContext(ctx, u.Command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := combineOutput(stdout.String(), stderr.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &UploadError{Reason: "uploader exited with status " + exitStatus(exitErr), Output: output}
		}
		return "", &UploadError{Reason: "could not run uploader", Output: output, Err: err}
	}

	url := ParseURL(stdout.String())
	if url == "" {
		return "", &UploadError{Reason: "no URL in uploader output", Output: output}
	}
	return url, nil
}

// ParseURL finds the uploaded URL in uploader output. The first success
// marker line carrying an http(s) URL, either right after the marker or after
// its first colon, wins; otherwise the first line that is itself an http(s)
// URL is used. Marker lines without a URL are status messages and are skipped.
func ParseURL(output string) string {
	var bare string

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, marker := range successMarkers {
			if !strings.HasPrefix(line, marker) {
				continue
			}
			rest := strings.TrimSpace(strings.TrimPrefix(line, marker))
			if isURL(rest) {
				return rest
			}
			if _, after, ok := strings.Cut(rest, ":"); ok {
				if url := strings.TrimSpace(after); isURL(url) {
					return url
				}
			}
		}
		if bare == "" && isURL(line) {
			bare = line
		}
	}
	return bare
}

// isURL reports whether s is a single http(s) URL token
func isURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	return !strings.ContainsAny(s, " \t")
}

func combineOutput(stdout, stderr string) string {
	var b strings.Builder
	if s := strings.TrimSpace(stdout); s != "" {
		b.WriteString("stdout:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(stderr); s != "" {
		b.WriteString("stderr:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func exitStatus(err *exec.ExitError) string {
	return strconv.Itoa(err.ExitCode())
}
