package elog

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ExtractMessageIDs pulls entry ids out of a search result page. Each
// result row carries the entry link in a td of class list1 or list2; the
// id is the last path segment of the href.
func ExtractMessageIDs(page []byte) []int {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return nil
	}

	var ids []int
	seen := make(map[int]bool)

	var walk func(n *html.Node, inListCell bool)
	walk = func(n *html.Node, inListCell bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "td":
				class := attrValue(n, "class")
				inListCell = class == "list1" || class == "list2"
			case "a":
				if inListCell {
					if id, ok := idFromHref(attrValue(n, "href")); ok && !seen[id] {
						seen[id] = true
						ids = append(ids, id)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inListCell)
		}
	}
	walk(doc, false)

	return ids
}

func idFromHref(href string) (int, bool) {
	if href == "" {
		return 0, false
	}
	if idx := strings.IndexAny(href, "?#"); idx >= 0 {
		href = href[:idx]
	}
	href = strings.TrimSuffix(href, "/")
	if idx := strings.LastIndex(href, "/"); idx >= 0 {
		href = href[idx+1:]
	}
	id, err := strconv.Atoi(href)
	return id, err == nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

var (
	multiSpace    = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// blockElements start a new line in the stripped text, preserving the
// structure that br, p and table rows carry in the html body.
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true,
	"table": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "ul": true, "ol": true, "pre": true,
}

// StripHTML reduces an html body to plain text: tags removed, entities
// decoded, block boundaries kept as newlines, whitespace normalized.
func StripHTML(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}

	var text strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// Non-breaking spaces survive entity decoding; fold them in.
			text.WriteString(strings.ReplaceAll(n.Data, "\u00a0", " "))
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if blockElements[n.Data] {
				text.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode {
			if blockElements[n.Data] {
				text.WriteString("\n")
			} else if n.Data == "td" || n.Data == "th" {
				text.WriteString(" ")
			}
		}
	}
	walk(doc)

	lines := strings.Split(text.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpace.ReplaceAllString(line, " "))
	}
	clean := strings.Join(lines, "\n")
	clean = multiNewlines.ReplaceAllString(clean, "\n\n")

	return strings.TrimSpace(clean)
}

// truncateWords caps a cleaned body at n words, appending an ellipsis
// when text was dropped.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}
