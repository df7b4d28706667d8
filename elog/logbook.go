// Package elog talks to an electronic-logbook server and layers search,
// reranking and thread navigation on top of it.
package elog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/internal/httpclient"
)

// entryDelimiter separates the attribute header from the body in the
// download representation of an entry.
const entryDelimiter = "========================================"

// Attachment is one file attached to an entry.
type Attachment struct {
	Name string
	URL  string
}

// Entry is one logbook record as returned by the download endpoint.
type Entry struct {
	ID          int
	Subject     string
	Author      string
	Category    string
	System      string
	Domain      string
	Section     string
	Effect      string
	Date        string    // raw server timestamp string
	Timestamp   time.Time // parsed; zero when unparsable
	Body        string    // raw, usually html
	Attributes  map[string]string
	Attachments []Attachment
	ParentID    int   // "In reply to" pointer, 0 when none
	ReplyIDs    []int // "Reply to" pointers
	URL         string
}

// Logbook is the HTTP client for one logbook. Server-side 5xx responses
// are retried once after 500 ms; everything else fails immediately.
type Logbook struct {
	baseURL    string
	httpClient *httpclient.Client
}

func NewLogbook(cfg config.ELOGConfig) *Logbook {
	cfg.SetDefaults()
	base := cfg.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Logbook{
		baseURL: base,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		),
	}
}

// EntryURL returns the browser URL of an entry.
func (l *Logbook) EntryURL(id int) string {
	return fmt.Sprintf("%s%d", l.baseURL, id)
}

// Search submits attribute filters and returns matching message ids,
// newest first. Empty filter values are dropped; the server would redirect
// such requests with surprising results otherwise.
func (l *Logbook) Search(ctx context.Context, filters map[string]string, n int) ([]int, error) {
	// n below 1 crashes the server, also from the web UI.
	if n < 1 {
		n = 1
	}

	params := url.Values{}
	params.Set("mode", "full")
	params.Set("reverse", "1")
	params.Set("npp", strconv.Itoa(n))
	for key, value := range filters {
		if value != "" {
			params.Set(key, value)
		}
	}

	body, err := l.get(ctx, l.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("logbook search failed: %w", err)
	}

	return ExtractMessageIDs(body), nil
}

// Read fetches one entry in download format and parses it.
func (l *Logbook) Read(ctx context.Context, id int) (Entry, error) {
	body, err := l.get(ctx, fmt.Sprintf("%s%d?cmd=download", l.baseURL, id))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read entry %d: %w", id, err)
	}

	entry, err := l.parseDownload(string(body))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to parse entry %d: %w", id, err)
	}
	entry.ID = id
	entry.URL = l.EntryURL(id)
	return entry, nil
}

func (l *Logbook) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// parseDownload splits the download representation into attributes and
// body. Header lines are "Key: value"; the "Attachment" line carries a
// comma-separated list of stored filenames.
func (l *Logbook) parseDownload(raw string) (Entry, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	delimiterIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == entryDelimiter {
			delimiterIdx = i
			break
		}
	}
	if delimiterIdx < 0 {
		return Entry{}, fmt.Errorf("delimiter not found in download response")
	}

	entry := Entry{
		Attributes: make(map[string]string),
		Body:       strings.Join(lines[delimiterIdx+1:], "\n"),
	}

	for _, line := range lines[:delimiterIdx] {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		if key == "Attachment" {
			for _, name := range strings.Split(value, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				entry.Attachments = append(entry.Attachments, Attachment{
					Name: storedFilename(name),
					URL:  l.baseURL + name,
				})
			}
			continue
		}
		entry.Attributes[key] = value
	}

	entry.Subject = entry.Attributes["Subject"]
	if entry.Subject == "" {
		entry.Subject = entry.Attributes["Title"]
	}
	entry.Author = entry.Attributes["Author"]
	entry.Category = entry.Attributes["Category"]
	entry.System = entry.Attributes["System"]
	entry.Domain = entry.Attributes["Domain"]
	entry.Section = entry.Attributes["Section"]
	entry.Effect = entry.Attributes["Effect"]
	entry.Date = entry.Attributes["Date"]
	entry.Timestamp = ParseTimestamp(entry.Date)

	if parent := entry.Attributes["In reply to"]; parent != "" {
		if id, err := strconv.Atoi(strings.TrimSpace(parent)); err == nil {
			entry.ParentID = id
		}
	}
	if replies := entry.Attributes["Reply to"]; replies != "" {
		for _, part := range strings.Split(replies, ",") {
			if id, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				entry.ReplyIDs = append(entry.ReplyIDs, id)
			}
		}
	}

	return entry, nil
}

// attachmentPrefix matches the YYMMDD_HHMMSS_ prefix the server prepends
// to stored attachment names.
var attachmentPrefix = regexp.MustCompile(`^\d{6}_\d{6}_`)

func storedFilename(name string) string {
	base := name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return attachmentPrefix.ReplaceAllString(base, "")
}

// timestampFormats are tried in order against server timestamps like
// "Wed, 17 Sep 2025 10:45:22 +0200" and the older dotted form.
var timestampFormats = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05",
	"02.01.2006 15:04:05",
}

// ParseTimestamp parses a server timestamp. The zero time marks an
// unparsable value.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// ParseDateBound parses a user-supplied since/until value. Accepted forms
// are YYYY-MM-DD, RFC 3339 and the server's dotted date. A date-only
// until bound is pushed to the end of its day.
func ParseDateBound(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	for _, format := range []string{"2006-01-02", "02.01.2006"} {
		if ts, err := time.Parse(format, s); err == nil {
			if endOfDay {
				ts = ts.Add(24*time.Hour - time.Second)
			}
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q, want YYYY-MM-DD", s)
}
