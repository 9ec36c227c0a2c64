package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pdxmph/upcache/pkg/duplicate"
)

// WriteStats prints cache statistics
func WriteStats(w io.Writer, stats *duplicate.Stats) {
	fmt.Fprintln(w, "Upload cache statistics:")
	fmt.Fprintf(w, "  Total records:   %d\n", stats.TotalCount)
	fmt.Fprintf(w, "  Valid records:   %d\n", stats.ValidCount)
	fmt.Fprintf(w, "  Invalid records: %d\n", stats.InvalidCount)
	fmt.Fprintf(w, "  Total size:      %s (%d bytes)\n", humanize.IBytes(uint64(stats.TotalValidBytes)), stats.TotalValidBytes)
	fmt.Fprintf(w, "  Earliest upload: %s\n", formatDate(stats.EarliestUpload))
	fmt.Fprintf(w, "  Latest upload:   %s\n", formatDate(stats.LatestUpload))
}

// WriteSearch prints search results, one block per record
func WriteSearch(w io.Writer, query string, uploads []*duplicate.Upload) {
	fmt.Fprintf(w, "Search results for %q: %d\n", query, len(uploads))
	for _, u := range uploads {
		fmt.Fprintln(w, strings.Repeat("-", 50))
		fmt.Fprintf(w, "ID:       %d\n", u.ID)
		fmt.Fprintf(w, "Filename: %s\n", u.Filename)
		fmt.Fprintf(w, "URL:      %s\n", u.URL)
		if u.FileSize != nil {
			fmt.Fprintf(w, "Size:     %s\n", humanize.IBytes(uint64(*u.FileSize)))
		}
		fmt.Fprintf(w, "Uploaded: %s\n", formatDate(&u.UploadDate))
		if u.LastVerified != nil {
			fmt.Fprintf(w, "Verified: %s\n", humanize.Time(*u.LastVerified))
		}
	}
}

// WriteUpload prints the details of a reused cache record
func WriteUpload(w io.Writer, u *duplicate.Upload) {
	fmt.Fprintln(w, "File already uploaded:")
	fmt.Fprintf(w, "  Filename: %s\n", u.Filename)
	fmt.Fprintf(w, "  URL:      %s\n", u.URL)
	fmt.Fprintf(w, "  Uploaded: %s\n", formatDate(&u.UploadDate))
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05"), humanize.Time(*t))
}
