package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/psi-gfa/opsassist/elog"
)

// ELOGSearchTool exposes logbook retrieval as the builtin search_elog
// tool. The JSON payload mirrors the envelope remote tool servers
// return, so the synthesis step handles both the same way.
type ELOGSearchTool struct {
	service *elog.Service
}

func NewELOGSearchTool(service *elog.Service) *ELOGSearchTool {
	return &ELOGSearchTool{service: service}
}

func (t *ELOGSearchTool) Info() ToolInfo {
	return ToolInfo{
		Name: "search_elog",
		Description: "Search the accelerator electronic logbook (ELOG) for operational entries: " +
			"faults, interventions, shift notes and machine status reports.",
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "Search text. Use .* around terms for regex attribute search.", Required: false},
			{Name: "since", Type: "string", Description: "Earliest entry date, YYYY-MM-DD."},
			{Name: "until", Type: "string", Description: "Latest entry date, YYYY-MM-DD."},
			{Name: "category", Type: "string", Description: "Entry category filter.", Enum: elog.Categories},
			{Name: "system", Type: "string", Description: "Machine system filter.", Enum: elog.Systems},
			{Name: "domain", Type: "string", Description: "Machine domain filter.", Enum: elog.Domains},
			{Name: "max_results", Type: "integer", Description: "Maximum number of hits to return.", Default: 10},
		},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]interface{}{"type": "string"},
				"since":       map[string]interface{}{"type": "string"},
				"until":       map[string]interface{}{"type": "string"},
				"category":    map[string]interface{}{"type": "string", "enum": toAnySlice(elog.Categories)},
				"system":      map[string]interface{}{"type": "string", "enum": toAnySlice(elog.Systems)},
				"domain":      map[string]interface{}{"type": "string", "enum": toAnySlice(elog.Domains)},
				"max_results": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 50},
			},
		},
	}
}

func (t *ELOGSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	req := elog.SearchRequest{
		Query:      stringArg(args, "query"),
		Since:      stringArg(args, "since"),
		Until:      stringArg(args, "until"),
		Category:   stringArg(args, "category"),
		System:     stringArg(args, "system"),
		Domain:     stringArg(args, "domain"),
		MaxResults: intArg(args, "max_results", 0),
	}

	result, err := t.service.Search(ctx, req)
	if err != nil {
		return "", fmt.Errorf("elog search failed: %w", err)
	}

	payload := map[string]interface{}{
		"ok":          true,
		"total_found": result.TotalFound,
		"results": map[string]interface{}{
			"hits": hitsToJSON(result.Hits),
		},
		"aggregations": map[string]interface{}{
			"by_category": result.ByCategory,
			"by_system":   result.BySystem,
			"by_domain":   result.ByDomain,
		},
	}
	return marshalPayload(payload)
}

// ELOGThreadTool exposes reply-thread navigation as get_elog_thread.
type ELOGThreadTool struct {
	service *elog.Service
}

func NewELOGThreadTool(service *elog.Service) *ELOGThreadTool {
	return &ELOGThreadTool{service: service}
}

func (t *ELOGThreadTool) Info() ToolInfo {
	return ToolInfo{
		Name: "get_elog_thread",
		Description: "Fetch the full reply thread around one ELOG entry: " +
			"the parent chain up to the root and all replies below it.",
		Parameters: []ToolParameter{
			{Name: "elog_id", Type: "integer", Description: "Numeric id of the entry.", Required: true},
			{Name: "include_replies", Type: "boolean", Description: "Follow reply pointers downward.", Default: true},
			{Name: "include_parents", Type: "boolean", Description: "Follow parent pointers to the root.", Default: true},
		},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"elog_id":         map[string]interface{}{"type": "integer"},
				"include_replies": map[string]interface{}{"type": "boolean"},
				"include_parents": map[string]interface{}{"type": "boolean"},
			},
			"required": []interface{}{"elog_id"},
		},
	}
}

func (t *ELOGThreadTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id := intArg(args, "elog_id", 0)
	if id <= 0 {
		return "", fmt.Errorf("elog_id must be a positive integer")
	}

	graph, err := t.service.Thread(ctx, id,
		boolArg(args, "include_replies", true),
		boolArg(args, "include_parents", true))
	if err != nil {
		return "", fmt.Errorf("elog thread lookup failed: %w", err)
	}

	edges := make([]map[string]interface{}, 0, len(graph.Edges))
	for _, edge := range graph.Edges {
		edges = append(edges, map[string]interface{}{
			"parent": edge.Parent,
			"child":  edge.Child,
		})
	}

	payload := map[string]interface{}{
		"ok": true,
		"result": map[string]interface{}{
			"root_id":  graph.RootID,
			"thread":   hitsToJSON(graph.Entries),
			"edges":    edges,
			"rendered": graph.Render(),
		},
	}
	return marshalPayload(payload)
}

func hitsToJSON(hits []elog.Hit) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		attachments := make([]map[string]interface{}, 0, len(hit.Attachments))
		for _, att := range hit.Attachments {
			attachments = append(attachments, map[string]interface{}{
				"name": att.Name,
				"url":  att.URL,
			})
		}
		entry := map[string]interface{}{
			"elog_id":           hit.ID,
			"title":             hit.Subject,
			"author":            hit.Author,
			"date":              hit.Date,
			"category":          hit.Category,
			"system":            hit.System,
			"domain":            hit.Domain,
			"url":               hit.URL,
			"score":             hit.Score,
			"body_clean":        hit.BodyClean,
			"formatted_context": hit.FormattedContext,
		}
		if len(attachments) > 0 {
			entry["attachments"] = attachments
		}
		out = append(out, entry)
	}
	return out
}

func marshalPayload(payload map[string]interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool payload: %w", err)
	}
	return string(data), nil
}

func toAnySlice(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg accepts both float64 (JSON decode) and int (direct callers).
func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func boolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
