package tools

import (
	"context"
	"fmt"

	"github.com/psi-gfa/opsassist/kgraph"
)

var acceleratorOptions = append(append([]string{}, kgraph.Accelerators...), "all")

// KnowledgeSearchTool exposes the knowledge graph as the builtin
// search_accelerator_knowledge tool.
type KnowledgeSearchTool struct {
	client *kgraph.Client
}

func NewKnowledgeSearchTool(client *kgraph.Client) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{client: client}
}

func (t *KnowledgeSearchTool) Info() ToolInfo {
	return ToolInfo{
		Name: "search_accelerator_knowledge",
		Description: "Semantic search over the accelerator wiki knowledge graph: " +
			"machine physics, subsystem documentation and operating procedures.",
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "Search text.", Required: true},
			{Name: "accelerator", Type: "string", Description: "Facility to search.", Default: "all", Enum: acceleratorOptions},
			{Name: "retriever", Type: "string", Description: "Retrieval mode.", Default: "hybrid", Enum: kgraph.Retrievers},
			{Name: "limit", Type: "integer", Description: "Maximum number of results.", Default: 5},
		},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]interface{}{"type": "string"},
				"accelerator": map[string]interface{}{"type": "string", "enum": toAnySlice(acceleratorOptions)},
				"retriever":   map[string]interface{}{"type": "string", "enum": toAnySlice(kgraph.Retrievers)},
				"limit":       map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 20},
			},
			"required": []interface{}{"query"},
		},
	}
}

// RelatedArticlesTool exposes relationship traversal out of one wiki
// article as get_related_articles.
type RelatedArticlesTool struct {
	client *kgraph.Client
}

func NewRelatedArticlesTool(client *kgraph.Client) *RelatedArticlesTool {
	return &RelatedArticlesTool{client: client}
}

func (t *RelatedArticlesTool) Info() ToolInfo {
	return ToolInfo{
		Name: "get_related_articles",
		Description: "Traverse the knowledge graph outward from one wiki article " +
			"and return related articles with their relationship and distance.",
		Parameters: []ToolParameter{
			{Name: "article_id", Type: "string", Description: "Id of the starting article.", Required: true},
			{Name: "max_depth", Type: "integer", Description: "Traversal depth limit.", Default: 2},
		},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"article_id": map[string]interface{}{"type": "string"},
				"max_depth":  map[string]interface{}{"type": "integer", "minimum": 1, "maximum": kgraph.MaxDepth},
			},
			"required": []interface{}{"article_id"},
		},
	}
}

func (t *RelatedArticlesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	articleID := stringArg(args, "article_id")
	if articleID == "" {
		return "", fmt.Errorf("article_id must not be empty")
	}

	response, err := t.client.Related(ctx, articleID, intArg(args, "max_depth", 0))
	if err != nil {
		return "", fmt.Errorf("knowledge traversal failed: %w", err)
	}

	related := make([]map[string]interface{}, 0, len(response.Related))
	for _, item := range response.Related {
		related = append(related, map[string]interface{}{
			"article_id":   item.ArticleID,
			"title":        item.Title,
			"url":          item.URL,
			"relationship": item.Relationship,
			"depth":        item.Depth,
			"score":        item.Score,
		})
	}

	payload := map[string]interface{}{
		"ok":         true,
		"article_id": response.ArticleID,
		"max_depth":  response.MaxDepth,
		"results":    related,
	}
	return marshalPayload(payload)
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	response, err := t.client.Search(ctx, query,
		stringArg(args, "accelerator"),
		stringArg(args, "retriever"),
		intArg(args, "limit", 0))
	if err != nil {
		return "", fmt.Errorf("knowledge search failed: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(response.Results))
	for _, r := range response.Results {
		figures := make([]map[string]interface{}, 0, len(r.Figures))
		for _, fig := range r.Figures {
			figures = append(figures, map[string]interface{}{
				"url":     fig.URL,
				"caption": fig.Caption,
			})
		}
		item := map[string]interface{}{
			"article_id":    r.ArticleID,
			"title":         r.Title,
			"section_title": r.SectionTitle,
			"content":       r.Content,
			"url":           r.URL,
			"accelerator":   r.Accelerator,
			"context_path":  r.ContextPath,
			"score":         r.Score,
		}
		if len(figures) > 0 {
			item["figures"] = figures
		}
		results = append(results, item)
	}

	payload := map[string]interface{}{
		"ok":          true,
		"query":       response.Query,
		"accelerator": response.Accelerator,
		"retriever":   response.Retriever,
		"results":     results,
	}
	return marshalPayload(payload)
}
