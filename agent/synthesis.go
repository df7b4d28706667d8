package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Answer-context assembly: turn the execution log into the context block,
// the reference list and the image list fed to the final model call.
// Tool payloads are structured JSON; each known tool family gets its own
// extraction, everything else falls back to a generic shape scan.

const (
	maxWebResults   = 5
	maxRawToolChars = 5000
)

// Reference is one citable source extracted from a tool result.
type Reference struct {
	ID    string
	Title string
	URL   string
}

// InlineImage is one image worth embedding in the answer.
type InlineImage struct {
	SourceID string
	URL      string
	Caption  string
}

type answerContext struct {
	parts      []string
	references []Reference
	seenURLs   map[string]bool
	images     []InlineImage
	counters   map[string]int
}

// buildAnswerContext assembles the synthesis inputs from uploaded files and
// the successful invocations of the turn. References are deduplicated by
// URL, first occurrence wins.
func buildAnswerContext(files []File, invocations []Invocation) (contextText, referencesText, imagesText string) {
	ac := &answerContext{
		seenURLs: make(map[string]bool),
		counters: make(map[string]int),
	}

	if len(files) > 0 {
		ac.parts = append(ac.parts, "**UPLOADED FILES:**\n")
		for _, f := range files {
			switch {
			case f.Type == "image":
				ac.parts = append(ac.parts, fmt.Sprintf("[FILE] Image: %s\n[Image uploaded]", f.Name))
			case f.Text != "":
				ac.parts = append(ac.parts, fmt.Sprintf("[FILE] Document: %s\n%s", f.Name, f.Text))
			default:
				ac.parts = append(ac.parts, fmt.Sprintf("[FILE] Document: %s\n%s", f.Name, f.Preview))
			}
		}
		ac.parts = append(ac.parts, "\n**TOOL RESULTS:**\n")
	}

	for _, inv := range invocations {
		if inv.Err != nil || !inv.Result.Success {
			continue
		}

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(inv.Result.Content), &data); err != nil {
			ac.parts = append(ac.parts,
				fmt.Sprintf("[%s]\n%s", inv.ToolName, truncate(inv.Result.Content, maxRawToolChars)))
			continue
		}

		switch {
		case strings.Contains(inv.ToolName, "search_accelerator_knowledge"):
			ac.addWikiResults(data)
		case strings.Contains(strings.ToLower(inv.ToolName), "elog"):
			ac.addELOGEntries(inv.ToolName, data)
		default:
			ac.addGenericResults(inv.ToolName, data)
		}
	}

	var refLines []string
	for _, ref := range ac.references {
		refLines = append(refLines, fmt.Sprintf("- %s: %s - %s", ref.ID, ref.Title, ref.URL))
	}

	if len(ac.images) > 0 {
		var imgLines []string
		for _, img := range ac.images {
			imgLines = append(imgLines, fmt.Sprintf("- Image from %s: %s (Caption: %s)", img.SourceID, img.URL, img.Caption))
		}
		imagesText = "\n\n**Available Images:**\n" + strings.Join(imgLines, "\n")
	}

	return strings.Join(ac.parts, "\n\n---\n\n"), strings.Join(refLines, "\n"), imagesText
}

func (ac *answerContext) nextID(family string) string {
	ac.counters[family]++
	return fmt.Sprintf("%s-%d", family, ac.counters[family])
}

func (ac *answerContext) addReference(ref Reference) {
	if ref.URL == "" || ac.seenURLs[ref.URL] {
		return
	}
	ac.seenURLs[ref.URL] = true
	ac.references = append(ac.references, ref)
}

// addWikiResults handles the knowledge-graph search payload:
// {"results": [{title, url, content, formatted_context, figures...}]}.
func (ac *answerContext) addWikiResults(data map[string]interface{}) {
	for _, item := range asMapList(data["results"]) {
		sourceID := ac.nextID("AccWiki")
		title := stringField(item, "title", "Unknown")
		url := stringField(item, "url", "")

		ac.addReference(Reference{ID: sourceID, Title: title, URL: url})

		for _, fig := range asMapList(item["figures"]) {
			figURL := stringField(fig, "url", "")
			if figURL == "" {
				continue
			}
			caption := stringField(fig, "caption", "Figure from "+title)
			ac.images = append(ac.images, InlineImage{SourceID: sourceID, URL: figURL, Caption: caption})
		}

		if formatted := stringField(item, "formatted_context", ""); formatted != "" {
			ac.parts = append(ac.parts, fmt.Sprintf("[%s]\n%s", sourceID, formatted))
			continue
		}
		ac.parts = append(ac.parts, fmt.Sprintf("[%s] %s\nContent: %s\nURL: %s",
			sourceID, title, stringField(item, "content", ""), url))
	}
}

// addELOGEntries handles both search_elog ({"results": {"hits": [...]}})
// and get_elog_thread ({"result": {"thread": [...]}}).
func (ac *answerContext) addELOGEntries(toolName string, data map[string]interface{}) {
	var entries []map[string]interface{}
	if strings.Contains(toolName, "get_elog_thread") {
		if result, ok := data["result"].(map[string]interface{}); ok {
			entries = asMapList(result["thread"])
		}
	} else {
		if results, ok := data["results"].(map[string]interface{}); ok {
			entries = asMapList(results["hits"])
		}
	}
	if entries == nil {
		entries = asMapList(data["hits"])
	}

	for _, entry := range entries {
		sourceID := ac.nextID("ELOG")
		elogID := stringField(entry, "elog_id", "N/A")
		title := stringField(entry, "title", "N/A")
		url := stringField(entry, "url", "")

		ac.addReference(Reference{ID: sourceID, Title: fmt.Sprintf("ELOG #%s: %s", elogID, title), URL: url})

		for _, att := range asMapList(entry["attachments"]) {
			attURL := stringField(att, "url", "")
			if attURL == "" {
				continue
			}
			ac.images = append(ac.images, InlineImage{
				SourceID: sourceID,
				URL:      attURL,
				Caption:  "Attachment from ELOG #" + elogID,
			})
		}

		if formatted := stringField(entry, "formatted_context", ""); formatted != "" {
			ac.parts = append(ac.parts, fmt.Sprintf("[%s]\n%s", sourceID, formatted))
			continue
		}
		ac.parts = append(ac.parts, fmt.Sprintf("[%s] ELOG #%s: %s\nContent: %s\nURL: %s",
			sourceID, elogID, title, stringField(entry, "body_clean", ""), url))
	}
}

// addGenericResults scans the payload shapes used by web-search style
// tools and falls back to a raw JSON dump when nothing matches.
func (ac *answerContext) addGenericResults(toolName string, data map[string]interface{}) {
	var results []map[string]interface{}

	switch {
	case data["top_results"] != nil:
		results = asMapList(data["top_results"])
	case hasNested(data, "data", "results"):
		results = asMapList(data["data"].(map[string]interface{})["results"])
	case hasNested(data, "web", "results"):
		results = asMapList(data["web"].(map[string]interface{})["results"])
	case data["results"] != nil:
		results = asMapList(data["results"])
	case data["url"] != nil && data["title"] != nil:
		results = []map[string]interface{}{data}
	}

	if kb := stringField(data, "knowledge_base_formatted", ""); kb != "" {
		ac.parts = append(ac.parts, "[Knowledge Base]\n"+kb)
	}

	if len(results) == 0 {
		raw, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return
		}
		ac.parts = append(ac.parts, fmt.Sprintf("[%s]\n%s", toolName, truncate(string(raw), maxRawToolChars)))
		return
	}

	if len(results) > maxWebResults {
		results = results[:maxWebResults]
	}
	for _, item := range results {
		sourceID := ac.nextID("Web")
		title := stringField(item, "title", "Unknown")
		url := stringField(item, "url", "")

		ac.addReference(Reference{ID: sourceID, Title: title, URL: url})

		if formatted := stringField(item, "formatted_context", ""); formatted != "" {
			ac.parts = append(ac.parts, fmt.Sprintf("[%s]\n%s", sourceID, formatted))
			continue
		}
		content := stringField(item, "snippet", "")
		if content == "" {
			content = stringField(item, "content", "")
		}
		if content == "" {
			content = stringField(item, "description", "")
		}
		ac.parts = append(ac.parts, fmt.Sprintf("[%s] %s\nContent: %s\nURL: %s", sourceID, title, content, url))
	}
}

// ============================================================================
// PAYLOAD HELPERS
// ============================================================================

func asMapList(value interface{}) []map[string]interface{} {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	var maps []map[string]interface{}
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			maps = append(maps, m)
		}
	}
	return maps
}

// stringField reads a field as a string, rendering numbers too; ELOG ids
// arrive as JSON numbers.
func stringField(m map[string]interface{}, key, fallback string) string {
	switch v := m[key].(type) {
	case string:
		if v == "" {
			return fallback
		}
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fallback
	}
}

func hasNested(data map[string]interface{}, outer, inner string) bool {
	m, ok := data[outer].(map[string]interface{})
	if !ok {
		return false
	}
	return m[inner] != nil
}
