package agent

import (
	"strings"
	"testing"

	"github.com/psi-gfa/opsassist/tools"
)

func successInvocation(toolName, content string) Invocation {
	return Invocation{
		ToolName: toolName,
		Result:   tools.Result{Success: true, Content: content, ToolName: toolName},
	}
}

func TestBuildAnswerContext_ELOGAndWiki(t *testing.T) {
	elogPayload := `{"results": {"hits": [
		{"elog_id": 39084, "title": "Klystron trip", "url": "https://elog-gfa.psi.ch/SwissFEL+commissioning/39084",
		 "formatted_context": "### ELOG Entry #39084: Klystron trip",
		 "attachments": [{"name": "waveform.png", "url": "https://elog-gfa.psi.ch/SwissFEL+commissioning/250917_104522_waveform.png"}]},
		{"elog_id": 39085, "title": "Follow up", "url": "https://elog-gfa.psi.ch/SwissFEL+commissioning/39085",
		 "body_clean": "recovered after reset"}
	]}}`
	wikiPayload := `{"results": [
		{"title": "RF System Overview", "url": "https://accwiki.psi.ch/swissfel/rf",
		 "formatted_context": "SwissFEL RF overview",
		 "figures": [{"url": "https://accwiki.psi.ch/fig1.png", "caption": "Cavity layout"}]},
		{"title": "Duplicate", "url": "https://accwiki.psi.ch/swissfel/rf", "content": "same url again"}
	]}`

	contextText, referencesText, imagesText := buildAnswerContext(nil, []Invocation{
		successInvocation("search_elog", elogPayload),
		successInvocation("search_accelerator_knowledge", wikiPayload),
	})

	for _, want := range []string{
		"[ELOG-1]\n### ELOG Entry #39084: Klystron trip",
		"[ELOG-2] ELOG #39085: Follow up\nContent: recovered after reset",
		"[AccWiki-1]\nSwissFEL RF overview",
	} {
		if !strings.Contains(contextText, want) {
			t.Errorf("context missing %q in:\n%s", want, contextText)
		}
	}

	// References deduplicate by URL, first occurrence wins.
	if strings.Count(referencesText, "https://accwiki.psi.ch/swissfel/rf") != 1 {
		t.Errorf("duplicate URL not deduplicated:\n%s", referencesText)
	}
	if !strings.Contains(referencesText, "- ELOG-1: ELOG #39084: Klystron trip - https://elog-gfa.psi.ch/SwissFEL+commissioning/39084") {
		t.Errorf("missing elog reference:\n%s", referencesText)
	}

	for _, want := range []string{
		"250917_104522_waveform.png (Caption: Attachment from ELOG #39084)",
		"fig1.png (Caption: Cavity layout)",
	} {
		if !strings.Contains(imagesText, want) {
			t.Errorf("images missing %q in:\n%s", want, imagesText)
		}
	}
}

func TestBuildAnswerContext_ThreadPayload(t *testing.T) {
	payload := `{"result": {"thread": [
		{"elog_id": 10, "title": "root", "url": "https://elog-gfa.psi.ch/x/10", "formatted_context": "root entry"}
	]}}`

	contextText, referencesText, _ := buildAnswerContext(nil, []Invocation{
		successInvocation("get_elog_thread", payload),
	})

	if !strings.Contains(contextText, "[ELOG-1]\nroot entry") {
		t.Errorf("context = %q", contextText)
	}
	if !strings.Contains(referencesText, "ELOG #10: root") {
		t.Errorf("references = %q", referencesText)
	}
}

func TestBuildAnswerContext_GenericAndFailures(t *testing.T) {
	webPayload := `{"web": {"results": [
		{"title": "Weather Bern", "url": "https://meteo.example/bern", "snippet": "sunny, 22C"}
	]}}`

	contextText, referencesText, imagesText := buildAnswerContext(nil, []Invocation{
		successInvocation("web_search", webPayload),
		{ToolName: "search_elog", Result: tools.Result{Success: false, Error: "timeout"}},
		successInvocation("odd_tool", "not json at all"),
	})

	if !strings.Contains(contextText, "[Web-1] Weather Bern\nContent: sunny, 22C") {
		t.Errorf("web result missing in:\n%s", contextText)
	}
	// Failed invocations contribute nothing; non-JSON payloads pass through raw.
	if strings.Contains(contextText, "timeout") {
		t.Error("failed invocation leaked into context")
	}
	if !strings.Contains(contextText, "[odd_tool]\nnot json at all") {
		t.Errorf("raw payload missing in:\n%s", contextText)
	}
	if !strings.Contains(referencesText, "- Web-1: Weather Bern - https://meteo.example/bern") {
		t.Errorf("references = %q", referencesText)
	}
	if imagesText != "" {
		t.Errorf("imagesText = %q, want empty", imagesText)
	}
}

func TestBuildAnswerContext_Files(t *testing.T) {
	files := []File{
		{Name: "plot.png", Type: "image"},
		{Name: "notes.txt", Type: "document", Text: "full text here"},
	}

	contextText, _, _ := buildAnswerContext(files, []Invocation{
		successInvocation("odd_tool", "raw"),
	})

	if !strings.Contains(contextText, "**UPLOADED FILES:**") {
		t.Error("missing uploaded files header")
	}
	if !strings.Contains(contextText, "[FILE] Document: notes.txt\nfull text here") {
		t.Errorf("missing document text in:\n%s", contextText)
	}
	if strings.Index(contextText, "**UPLOADED FILES:**") > strings.Index(contextText, "[odd_tool]") {
		t.Error("files must precede tool results")
	}
}
