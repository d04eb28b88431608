package indexer

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.Table),
)

// NormalizeMarkdown strips markdown syntax from content and returns plain
// text suitable for chunking. Block boundaries become newlines so the
// splitter can still find paragraph breaks. Non-markdown plain text passes
// through essentially unchanged.
func NormalizeMarkdown(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	reader := text.NewReader(content)
	doc := markdownParser.Parser().Parse(reader)

	var builder strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.Blockquote:
			if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
				builder.WriteString("\n\n")
			}
		case *ast.Text:
			builder.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				builder.WriteString("\n")
			}
		case *ast.String:
			builder.Write(node.Value)
		case *ast.CodeBlock:
			writeBlockLines(&builder, node.Lines(), content)
		case *ast.FencedCodeBlock:
			writeBlockLines(&builder, node.Lines(), content)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(builder.String())
}

func writeBlockLines(builder *strings.Builder, lines *text.Segments, content []byte) {
	if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
		builder.WriteString("\n")
	}
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		builder.Write(line.Value(content))
	}
}

// ExtractTitle returns the first level-1 heading, or the first level-2
// heading when there is no level-1, or the fallback with each word
// capitalized when the content carries no headings at all.
func ExtractTitle(content []byte, fallback string) string {
	if len(content) > 0 {
		reader := text.NewReader(content)
		doc := markdownParser.Parser().Parse(reader)

		var firstH1, firstH2 string
		_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if heading, ok := n.(*ast.Heading); ok {
				headingText := headingPlainText(heading, content)
				if heading.Level == 1 && firstH1 == "" {
					firstH1 = headingText
					return ast.WalkStop, nil
				}
				if heading.Level == 2 && firstH2 == "" {
					firstH2 = headingText
				}
			}
			return ast.WalkContinue, nil
		})

		if firstH1 != "" {
			return firstH1
		}
		if firstH2 != "" {
			return firstH2
		}
	}

	words := strings.Fields(fallback)
	for i, word := range words {
		runes := []rune(word)
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
			words[i] = string(runes)
		}
	}
	return strings.Join(words, " ")
}

func headingPlainText(n ast.Node, content []byte) string {
	var builder strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			builder.Write(v.Segment.Value(content))
		case *ast.String:
			builder.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(builder.String())
}
