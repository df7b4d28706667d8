package elog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Edge is one parent-to-child reply link.
type Edge struct {
	Parent int
	Child  int
}

// ThreadGraph is the conversation around one entry, chronologically
// ordered.
type ThreadGraph struct {
	RootID  int
	Entries []Hit
	Edges   []Edge
}

// Thread assembles the reply thread of an entry: the parent chain up to
// the root and the reply graph breadth-first downward. Cycles in the
// pointers should be impossible but are guarded against.
func (s *Service) Thread(ctx context.Context, id int, includeReplies, includeParents bool) (*ThreadGraph, error) {
	root, err := s.readHit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %d: %w", id, err)
	}

	entries := map[int]Hit{id: root}
	visited := map[int]bool{id: true}

	if includeParents {
		parentID := root.ParentID
		for parentID != 0 && !visited[parentID] {
			visited[parentID] = true
			parent, err := s.readHit(ctx, parentID)
			if err != nil {
				slog.Warn("failed to traverse parent chain", "id", parentID, "error", err)
				break
			}
			entries[parentID] = parent
			parentID = parent.ParentID
		}
	}

	if includeReplies {
		queue := []int{id}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, replyID := range entries[current].ReplyIDs {
				if visited[replyID] {
					continue
				}
				visited[replyID] = true
				reply, err := s.readHit(ctx, replyID)
				if err != nil {
					slog.Warn("failed to read reply", "id", replyID, "error", err)
					continue
				}
				entries[replyID] = reply
				queue = append(queue, replyID)
			}
		}
	}

	graph := &ThreadGraph{}
	for _, hit := range entries {
		graph.Entries = append(graph.Entries, hit)
	}
	// Chronological order; siblings end up timestamp ascending.
	sort.SliceStable(graph.Entries, func(i, j int) bool {
		if !graph.Entries[i].Timestamp.Equal(graph.Entries[j].Timestamp) {
			return graph.Entries[i].Timestamp.Before(graph.Entries[j].Timestamp)
		}
		return graph.Entries[i].ID < graph.Entries[j].ID
	})

	for _, hit := range graph.Entries {
		if hit.ParentID != 0 {
			if _, ok := entries[hit.ParentID]; ok {
				graph.Edges = append(graph.Edges, Edge{Parent: hit.ParentID, Child: hit.ID})
			}
		}
	}
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].Parent != graph.Edges[j].Parent {
			return graph.Edges[i].Parent < graph.Edges[j].Parent
		}
		return graph.Edges[i].Child < graph.Edges[j].Child
	})

	if len(graph.Entries) > 0 {
		graph.RootID = graph.Entries[0].ID
		for _, hit := range graph.Entries {
			if hit.ParentID == 0 {
				graph.RootID = hit.ID
				break
			}
		}
	}

	return graph, nil
}

func (s *Service) readHit(ctx context.Context, id int) (Hit, error) {
	entry, err := s.logbook.Read(ctx, id)
	if err != nil {
		return Hit{}, err
	}
	hit := Hit{
		Entry:     entry,
		BodyClean: truncateWords(StripHTML(entry.Body), maxBodyWords),
	}
	hit.FormattedContext = FormatEntry(hit)
	return hit, nil
}

// Render writes the thread as an indented chronological outline.
func (g *ThreadGraph) Render() string {
	depth := make(map[int]int)
	parentOf := make(map[int]int)
	for _, edge := range g.Edges {
		parentOf[edge.Child] = edge.Parent
	}
	var depthOf func(id int) int
	depthOf = func(id int) int {
		if d, ok := depth[id]; ok {
			return d
		}
		parent, ok := parentOf[id]
		if !ok {
			depth[id] = 0
			return 0
		}
		depth[id] = -1 // cycle guard
		d := depthOf(parent)
		if d < 0 {
			d = 0
		}
		depth[id] = d + 1
		return depth[id]
	}

	var b strings.Builder
	for _, hit := range g.Entries {
		indent := strings.Repeat("  ", depthOf(hit.ID))
		when := "N/A"
		if !hit.Timestamp.IsZero() {
			when = hit.Timestamp.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%s- [%s] #%d %s (%s)\n", indent, when, hit.ID, orNA(hit.Subject), orNA(hit.Author))
	}
	return b.String()
}
