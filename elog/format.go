package elog

import (
	"fmt"
	"net/url"
	"strings"
)

// FormatEntry renders one hit as a markdown block ready for prompt
// splicing. Formatting lives here rather than in the agent so every
// consumer sees entries the same way.
func FormatEntry(hit Hit) string {
	dateStr, timeStr := "N/A", "N/A"
	if !hit.Timestamp.IsZero() {
		dateStr = hit.Timestamp.Format("2006-01-02")
		timeStr = hit.Timestamp.Format("15:04:05")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### ELOG Entry #%d: %s\n\n", hit.ID, orNA(hit.Subject))
	fmt.Fprintf(&b, "**Date/Time:** %s at %s\n", dateStr, timeStr)
	fmt.Fprintf(&b, "**Author:** %s\n", orNA(hit.Author))
	fmt.Fprintf(&b, "**Category:** %s\n", orNA(hit.Category))
	fmt.Fprintf(&b, "**System:** %s | **Domain:** %s\n", orNA(hit.System), orNA(hit.Domain))
	fmt.Fprintf(&b, "**Effect:** %s\n", orNA(hit.Effect))
	fmt.Fprintf(&b, "**Link:** [%s/%d](%s)\n\n", linkHost(hit.URL), hit.ID, hit.URL)
	fmt.Fprintf(&b, "**Content:**\n%s\n", hit.BodyClean)

	if len(hit.Attachments) > 0 {
		fmt.Fprintf(&b, "\n**Attachments (%d file(s)):**\n", len(hit.Attachments))
		for _, att := range hit.Attachments {
			fmt.Fprintf(&b, "- [%s](%s)\n", att.Name, att.URL)
		}
	}

	return b.String()
}

func linkHost(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return rawURL
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}
