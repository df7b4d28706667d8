package agent

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/psi-gfa/opsassist/llms"
	"github.com/psi-gfa/opsassist/tools"
)

// Context builders are pure string producers. They are built once per turn
// and threaded through the state machine so every prompt sees the same
// view of the session.

const (
	historyMessageChars = 200
	previewChars        = 100
	enumPreview         = 5
)

// SystemContext describes the assistant and the current date and time.
func SystemContext(now time.Time) string {
	return fmt.Sprintf(`You are the PSI assistant at the Paul Scherrer Institute, a renowned research institute in Switzerland.

**Current Date and Time:** %s
**Current Date (for calculations):** %s

**Your Role:**
- Provide concise, accurate, and scientific answers
- Ground your responses in factual information
- Use proper technical terminology
- Cite sources when using external information
`,
		now.Format("Monday, January 02, 2006 at 15:04:05"),
		now.Format("2006-01-02"))
}

// ConversationContext renders the last maxMessages history entries, each
// truncated to 200 characters. Empty history yields an empty string.
func ConversationContext(history []llms.Message, maxMessages int) string {
	if len(history) == 0 || maxMessages <= 0 {
		return ""
	}
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}

	var lines []string
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(msg.Role), truncate(msg.Content, historyMessageChars)))
	}

	return fmt.Sprintf("\n**Recent Conversation:**\n%s\n", strings.Join(lines, "\n"))
}

// FilesSummary lists uploaded files with short previews, for the decision
// steps where full content is not needed.
func FilesSummary(files []File) string {
	if len(files) == 0 {
		return ""
	}

	var lines []string
	for _, f := range files {
		if f.Type == "image" {
			lines = append(lines, fmt.Sprintf("- Image: %s", f.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("- Document: %s - %s", f.Name, truncate(f.Preview, previewChars)))
	}

	return fmt.Sprintf("\n**Uploaded Files:**\n%s\n", strings.Join(lines, "\n"))
}

// FilesFull renders uploaded files with their complete extracted text, for
// answer generation. The caller is responsible for the token budget.
func FilesFull(files []File) string {
	if len(files) == 0 {
		return ""
	}

	var parts []string
	for _, f := range files {
		switch {
		case f.Type == "image":
			parts = append(parts, fmt.Sprintf("**Image: %s**\n[Image uploaded]", f.Name))
		case f.Text != "":
			parts = append(parts, fmt.Sprintf("**Document: %s**\n%s", f.Name, f.Text))
		case f.Preview != "":
			parts = append(parts, fmt.Sprintf("**Document: %s**\n%s", f.Name, f.Preview))
		default:
			parts = append(parts, fmt.Sprintf("**Document: %s**\n[No preview available]", f.Name))
		}
	}

	return fmt.Sprintf("\n**Uploaded Files:**\n%s\n\n", strings.Join(parts, "\n"))
}

// ToolsSummary renders one line per registered tool.
func ToolsSummary(registry *tools.Registry) string {
	var lines []string
	for _, tool := range registry.List() {
		lines = append(lines, fmt.Sprintf("- %s: %s", tool.Name, truncate(tool.Description, previewChars)))
	}
	return strings.Join(lines, "\n")
}

// ToolsDetailed renders every tool with its full parameter list: type,
// the first few enum options and the required marker. The registry sorts
// tools and parameters by name, so repeated calls on an unchanged registry
// produce identical output.
func ToolsDetailed(registry *tools.Registry) string {
	var descriptions []string
	for _, tool := range registry.List() {
		var b strings.Builder
		fmt.Fprintf(&b, "**%s**\n", tool.Name)
		fmt.Fprintf(&b, "  Description: %s\n", tool.Description)

		if len(tool.Parameters) > 0 {
			b.WriteString("  Parameters:\n")
			for _, param := range tool.Parameters {
				paramType := param.Type
				if paramType == "" {
					paramType = "any"
				}
				fmt.Fprintf(&b, "    - %s (%s)", param.Name, paramType)
				if len(param.Enum) > 0 {
					options := param.Enum
					if len(options) > enumPreview {
						options = options[:enumPreview]
					}
					fmt.Fprintf(&b, " [options: %s]", strings.Join(options, ", "))
				}
				if param.Required {
					b.WriteString(" [REQUIRED]")
				}
				b.WriteString("\n")
			}
		}
		descriptions = append(descriptions, b.String())
	}
	return strings.Join(descriptions, "\n")
}

// RefinementContext renders the hint carried from a failed attempt into
// the next tool selection. Only the suggestion gates the output: a pass
// whose selections were all rejected still failed, and its hint must
// reach the next selection. The attempt number is display only.
func RefinementContext(attempt int, suggestion string) string {
	if suggestion == "" {
		return ""
	}
	return fmt.Sprintf(`
**Previous Attempt #%d Failed**
Refinement suggestion: %s
Try a different approach or different tool arguments.
`, attempt, suggestion)
}

// truncate cuts at a byte budget without splitting a multi-byte rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
