package elog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psi-gfa/opsassist/config"
)

const sampleDownload = `$@MID@$: 39084
Date: Wed, 17 Sep 2025 10:45:22 +0200
Author: M. Muster
Category: Problem
System: RF
Domain: Linac2
Subject: Klystron trip on S20CB02
In reply to: 39080
Reply to: 39090,39095
Attachment: 250917_104522_waveform.png,250917_104523_trace.dat
Encoding: HTML
========================================
<p>Klystron tripped twice during the morning shift.</p>
<p>Reset and conditioning ongoing.</p>`

// searchPage builds a minimal result page with one entry link per id.
func searchPage(ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for i, id := range ids {
		class := "list1"
		if i%2 == 1 {
			class = "list2"
		}
		fmt.Fprintf(&b, `<tr><td class=%q><a href="/SwissFEL+commissioning/%d">%d</a></td></tr>`, class, id, id)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func TestLogbook_Read(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cmd") != "download" {
			t.Errorf("expected cmd=download, got %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, sampleDownload)
	}))
	defer server.Close()

	logbook := NewLogbook(config.ELOGConfig{URL: server.URL})
	entry, err := logbook.Read(context.Background(), 39084)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if entry.ID != 39084 {
		t.Errorf("ID = %d, want 39084", entry.ID)
	}
	if entry.Subject != "Klystron trip on S20CB02" {
		t.Errorf("Subject = %q", entry.Subject)
	}
	if entry.Author != "M. Muster" || entry.Category != "Problem" || entry.System != "RF" || entry.Domain != "Linac2" {
		t.Errorf("attribute mismatch: %+v", entry)
	}
	if entry.ParentID != 39080 {
		t.Errorf("ParentID = %d, want 39080", entry.ParentID)
	}
	if len(entry.ReplyIDs) != 2 || entry.ReplyIDs[0] != 39090 || entry.ReplyIDs[1] != 39095 {
		t.Errorf("ReplyIDs = %v, want [39090 39095]", entry.ReplyIDs)
	}
	if !strings.Contains(entry.Body, "Klystron tripped twice") {
		t.Errorf("Body = %q", entry.Body)
	}

	want := time.Date(2025, 9, 17, 10, 45, 22, 0, time.FixedZone("", 2*3600))
	if !entry.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", entry.Timestamp, want)
	}

	if len(entry.Attachments) != 2 {
		t.Fatalf("Attachments = %d, want 2", len(entry.Attachments))
	}
	if entry.Attachments[0].Name != "waveform.png" {
		t.Errorf("attachment name = %q, want timestamp prefix stripped", entry.Attachments[0].Name)
	}
	if !strings.HasPrefix(entry.Attachments[0].URL, server.URL) {
		t.Errorf("attachment url = %q, want absolute", entry.Attachments[0].URL)
	}

	if entry.URL != fmt.Sprintf("%s/39084", server.URL) {
		t.Errorf("URL = %q", entry.URL)
	}
}

func TestLogbook_Read_NoDelimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not a download response</html>")
	}))
	defer server.Close()

	logbook := NewLogbook(config.ELOGConfig{URL: server.URL})
	if _, err := logbook.Read(context.Background(), 1); err == nil {
		t.Error("expected parse error without delimiter")
	}
}

func TestLogbook_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("mode") != "full" || q.Get("reverse") != "1" {
			t.Errorf("missing mode/reverse params: %q", r.URL.RawQuery)
		}
		if q.Get("npp") != "30" {
			t.Errorf("npp = %q, want 30", q.Get("npp"))
		}
		if q.Get("subtext") != "beam dump" {
			t.Errorf("subtext = %q", q.Get("subtext"))
		}
		if q.Get("Category") != "Problem" {
			t.Errorf("Category = %q", q.Get("Category"))
		}
		if _, present := q["System"]; present {
			t.Error("empty filter value must be dropped")
		}
		fmt.Fprint(w, searchPage(39084, 39001, 38950))
	}))
	defer server.Close()

	logbook := NewLogbook(config.ELOGConfig{URL: server.URL})
	ids, err := logbook.Search(context.Background(), map[string]string{
		"subtext":  "beam dump",
		"Category": "Problem",
		"System":   "",
	}, 30)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []int{39084, 39001, 38950}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestLogbook_RetriesServerErrorOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, searchPage(42))
	}))
	defer server.Close()

	logbook := NewLogbook(config.ELOGConfig{URL: server.URL})
	ids, err := logbook.Search(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != 42 {
		t.Errorf("ids = %v, want [42]", ids)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2 (one retry)", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		zero  bool
	}{
		{"server format", "Wed, 17 Sep 2025 10:45:22 +0200", false},
		{"without day name", "17 Sep 2025 10:45:22 +0200", false},
		{"dotted", "17.09.2025 10:45:22", false},
		{"garbage", "not a date", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.input)
			if got.IsZero() != tt.zero {
				t.Errorf("ParseTimestamp(%q) = %v, zero = %v", tt.input, got, tt.zero)
			}
		})
	}
}

func TestParseDateBound(t *testing.T) {
	since, err := ParseDateBound("2025-09-17", false)
	if err != nil {
		t.Fatalf("ParseDateBound() error = %v", err)
	}
	if since.Hour() != 0 {
		t.Errorf("since = %v, want start of day", since)
	}

	until, err := ParseDateBound("2025-09-17", true)
	if err != nil {
		t.Fatalf("ParseDateBound() error = %v", err)
	}
	if until.Hour() != 23 || until.Minute() != 59 || until.Second() != 59 {
		t.Errorf("until = %v, want end of day", until)
	}

	if _, err := ParseDateBound("17 September", false); err == nil {
		t.Error("expected error for unsupported date form")
	}
}
