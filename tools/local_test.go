package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/elog"
	"github.com/psi-gfa/opsassist/kgraph"
	"github.com/psi-gfa/opsassist/rerank"
)

type stubTool struct {
	info    ToolInfo
	respond func(args map[string]interface{}) (string, error)
}

func (s *stubTool) Info() ToolInfo { return s.info }

func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if s.respond != nil {
		return s.respond(args)
	}
	return "ok", nil
}

func TestLocalSource_RegisterAndList(t *testing.T) {
	source := NewLocalSource("builtin")

	if err := source.Register(&stubTool{info: ToolInfo{Name: "alpha"}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := source.Register(&stubTool{info: ToolInfo{Name: "alpha"}}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := source.Register(&stubTool{info: ToolInfo{}}); err == nil {
		t.Error("expected empty tool name to fail")
	}

	infos := source.List()
	if len(infos) != 1 {
		t.Fatalf("List() returned %d tools, want 1", len(infos))
	}
	if infos[0].ServerName != "builtin" {
		t.Errorf("ServerName = %q, want builtin", infos[0].ServerName)
	}
}

func TestLocalSource_Call(t *testing.T) {
	source := NewLocalSource("builtin")
	if err := source.Register(&stubTool{
		info: ToolInfo{Name: "echo"},
		respond: func(args map[string]interface{}) (string, error) {
			return fmt.Sprintf("got %v", args["x"]), nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := source.Call(context.Background(), "echo", map[string]interface{}{"x": "y"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !result.Success || result.Content != "got y" {
		t.Errorf("result = %+v", result)
	}
	if result.RequestID == "" {
		t.Error("expected a request id")
	}

	if _, err := source.Call(context.Background(), "missing", nil); err == nil {
		t.Error("expected unknown tool to fail")
	}
}

func TestLocalSource_CallToolError(t *testing.T) {
	source := NewLocalSource("builtin")
	if err := source.Register(&stubTool{
		info: ToolInfo{Name: "broken"},
		respond: func(map[string]interface{}) (string, error) {
			return "", fmt.Errorf("backend down")
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := source.Call(context.Background(), "broken", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Success || result.Error != "backend down" {
		t.Errorf("result = %+v", result)
	}
}

// passRanker keeps the incoming order.
type passRanker struct{}

func (passRanker) Rank(ctx context.Context, query string, docs []rerank.Document, k int) []rerank.Ranked {
	var ranked []rerank.Ranked
	for i := range docs {
		if len(ranked) == k {
			break
		}
		ranked = append(ranked, rerank.Ranked{Index: i, Score: 1})
	}
	return ranked
}

func newELOGFixture(t *testing.T) *elog.Service {
	t.Helper()
	download := `Date: Wed, 17 Sep 2025 10:45:22 +0200
Author: Op
Category: Problem
System: RF
Domain: Linac2
Subject: Klystron trip
========================================
Modulator tripped twice, reset helped.`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cmd") == "download" {
			fmt.Fprint(w, download)
			return
		}
		fmt.Fprint(w, `<html><body><table><tr><td class="list1"><a href="/SwissFEL+commissioning/39084">39084</a></td></tr></table></body></html>`)
	}))
	t.Cleanup(server.Close)

	return elog.NewService(elog.NewLogbook(config.ELOGConfig{URL: server.URL}), passRanker{})
}

func TestELOGSearchTool_Execute(t *testing.T) {
	tool := NewELOGSearchTool(newELOGFixture(t))

	content, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":       "klystron",
		"max_results": float64(5),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var payload struct {
		OK         bool `json:"ok"`
		TotalFound int  `json:"total_found"`
		Results    struct {
			Hits []struct {
				ELOGID           int    `json:"elog_id"`
				Title            string `json:"title"`
				URL              string `json:"url"`
				FormattedContext string `json:"formatted_context"`
			} `json:"hits"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		t.Fatalf("payload not JSON: %v\n%s", err, content)
	}
	if !payload.OK || payload.TotalFound != 1 || len(payload.Results.Hits) != 1 {
		t.Fatalf("payload = %s", content)
	}
	hit := payload.Results.Hits[0]
	if hit.ELOGID != 39084 || hit.Title != "Klystron trip" {
		t.Errorf("hit = %+v", hit)
	}
	if !strings.Contains(hit.FormattedContext, "### ELOG Entry #39084") {
		t.Errorf("formatted context = %q", hit.FormattedContext)
	}
}

func TestELOGSearchTool_SchemaRejectsBadEnum(t *testing.T) {
	info := NewELOGSearchTool(nil).Info()
	validator := NewValidator()

	if err := validator.ValidateArgs(info, map[string]interface{}{"category": "Problem"}); err != nil {
		t.Errorf("valid category rejected: %v", err)
	}
	if err := validator.ValidateArgs(info, map[string]interface{}{"category": "NotACategory"}); err == nil {
		t.Error("expected invalid category to be rejected")
	}
}

func TestELOGThreadTool_Execute(t *testing.T) {
	tool := NewELOGThreadTool(newELOGFixture(t))

	if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("expected missing elog_id to fail")
	}

	content, err := tool.Execute(context.Background(), map[string]interface{}{
		"elog_id": float64(39084),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var payload struct {
		Result struct {
			RootID   int                      `json:"root_id"`
			Thread   []map[string]interface{} `json:"thread"`
			Rendered string                   `json:"rendered"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		t.Fatalf("payload not JSON: %v\n%s", err, content)
	}
	if payload.Result.RootID != 39084 || len(payload.Result.Thread) != 1 {
		t.Errorf("payload = %s", content)
	}
	if payload.Result.Rendered == "" {
		t.Error("expected rendered thread text")
	}
}

func TestKnowledgeSearchTool_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/search") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(kgraph.SearchResponse{
			Query:     r.URL.Query().Get("query"),
			Retriever: "hybrid",
			Results: []kgraph.Result{{
				ArticleID: "a1",
				Title:     "RF System Overview",
				Content:   "Cavity basics.",
				URL:       "https://accwiki.psi.ch/swissfel/rf",
				Score:     0.92,
				Figures:   []kgraph.Figure{{URL: "https://accwiki.psi.ch/fig1.png", Caption: "Cavity layout"}},
			}},
		})
	}))
	t.Cleanup(server.Close)

	tool := NewKnowledgeSearchTool(kgraph.NewClient(config.GraphConfig{URL: server.URL}))

	if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("expected missing query to fail")
	}

	content, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":       "rf system",
		"accelerator": "swissfel",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var payload struct {
		OK      bool `json:"ok"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Figures []struct {
				URL string `json:"url"`
			} `json:"figures"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		t.Fatalf("payload not JSON: %v\n%s", err, content)
	}
	if !payload.OK || len(payload.Results) != 1 {
		t.Fatalf("payload = %s", content)
	}
	if payload.Results[0].Title != "RF System Overview" || len(payload.Results[0].Figures) != 1 {
		t.Errorf("result = %+v", payload.Results[0])
	}
}
