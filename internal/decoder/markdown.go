package decoder

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// decodeMarkdown parses Markdown and extracts its plain text, dropping
// markup. The first top-level heading becomes the document title.
func decodeMarkdown(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrDecoding)
	}

	md := goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))
	doc := md.Parser().Parse(text.NewReader(data))

	title := ""
	tree, err := toc.Inspect(doc, data, toc.MinDepth(1), toc.MaxDepth(1), toc.Compact(true))
	if err == nil && len(tree.Items) > 0 {
		title = string(tree.Items[0].Title)
	}

	var buf strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(data))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.FencedCodeBlock:
			writeBlockBreak(&buf)
			writeLines(&buf, data, t.Lines())
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			writeBlockBreak(&buf)
			writeLines(&buf, data, t.Lines())
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading:
			writeBlockBreak(&buf)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk markdown: %v", ErrDecoding, err)
	}

	out := normalize(buf.String())
	if out == "" {
		return nil, ErrEmptyDocument
	}
	return &Result{Text: out, Title: title}, nil
}

func writeBlockBreak(buf *strings.Builder) {
	if buf.Len() > 0 {
		buf.WriteString("\n\n")
	}
}

func writeLines(buf *strings.Builder, data []byte, lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		buf.Write(lines.At(i).Value(data))
	}
}
