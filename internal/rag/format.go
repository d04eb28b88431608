package rag

import (
	"fmt"
	"strings"
)

// NoContextSentinel is what the model sees when retrieval found nothing in
// the user's documents.
const NoContextSentinel = "No relevant information was found in your documents."

// ContextBlock renders the retrieved context as the text block that goes
// into the model prompt. Document passages are labeled with their source
// document name; web results carry their title and URL so the model can
// cite them. The sentinel goes out only when there is nothing at all:
// neither document passages nor web results.
func (c *Context) ContextBlock() string {
	var builder strings.Builder

	if len(c.Passages) == 0 && len(c.WebResults) == 0 {
		builder.WriteString(NoContextSentinel)
	}

	for i, passage := range c.Passages {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		name := passage.DocumentName
		if name == "" {
			name = "Untitled document"
		}
		fmt.Fprintf(&builder, "[%s]\n%s", name, passage.Text)
	}

	if len(c.WebResults) > 0 {
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString("Web search results:")
		for _, result := range c.WebResults {
			title := result.Title
			if title == "" {
				title = result.URL
			}
			fmt.Fprintf(&builder, "\n\n[%s](%s)\n%s", title, result.URL, result.Content)
		}
	}

	if c.WebSearchFailed {
		builder.WriteString("\n\nNote: web search was requested but failed; only document context is available.")
	}

	return builder.String()
}
