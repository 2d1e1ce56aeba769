package tui

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rshade/contentloader/internal/engine/cache"
)

// CacheStatus is the data shown by the cache status command.
type CacheStatus struct {
	Directory string
	Strategy  string
	Enabled   bool
	Entries   []cache.EntryInfo
	TotalSize int64
	// LatestUpdate is the stored remote timestamp, "" when unknown.
	LatestUpdate string
	// LastRefresh is the stored TTL refresh time, "" when unknown.
	LastRefresh string
}

// RenderCacheStatus renders the cache summary followed by one row per record.
func RenderCacheStatus(st CacheStatus, s Styler) string {
	var sb strings.Builder

	sb.WriteString(s.Title("Content Cache"))
	sb.WriteString("\n\n")

	field := func(label, value string) {
		sb.WriteString(s.Label(fmt.Sprintf("%-16s", label+":")))
		sb.WriteString(s.Value(value))
		sb.WriteString("\n")
	}

	field("Directory", st.Directory)
	field("Strategy", st.Strategy)
	if st.Enabled {
		field("Caching", s.OK("enabled"))
	} else {
		field("Caching", s.Warning("disabled"))
	}
	field("Records", fmt.Sprintf("%d (%s)", len(st.Entries), FormatBytes(st.TotalSize)))
	if st.LatestUpdate != "" {
		field("Dataset updated", st.LatestUpdate)
	}
	if st.LastRefresh != "" {
		field("Last refresh", st.LastRefresh)
	}

	if len(st.Entries) == 0 {
		sb.WriteString("\n")
		sb.WriteString(s.Muted("No cached queries."))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString("\n")
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		s.Header("QUERY"), s.Header("VERSION"), s.Header("SIZE"), s.Header("CACHED"), s.Header("STATUS"))
	for _, e := range st.Entries {
		version := e.Version
		if version == "" {
			version = "-"
		}
		cachedAt := "-"
		if !e.CachedAt.IsZero() {
			cachedAt = e.CachedAt.Local().Format(time.DateTime)
		}
		status := s.OK("ok")
		if e.Corrupt {
			status = s.Warning("corrupt")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, version, FormatBytes(e.Size), cachedAt, status)
	}
	_ = tw.Flush()
	return sb.String()
}

// FormatBytes formats a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
