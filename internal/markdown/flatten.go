// Package markdown flattens model-generated markdown into plain text.
// Chat clients render messages verbatim, so markdown syntax would reach
// the user as literal asterisks and backticks.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Flatten renders markdown source as plain text: formatting is dropped,
// block structure becomes line breaks, list items get a leading dash,
// and code blocks keep their literal content.
func Flatten(source string) string {
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		// Block boundary becomes a line break, except right after a
		// list bullet whose content is about to follow.
		if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument &&
			buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("- ")) {
			buf.WriteByte('\n')
		}

		switch n.Kind() {
		case ast.KindText:
			t := n.(*ast.Text)
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case ast.KindString:
			buf.Write(n.(*ast.String).Value)
		case ast.KindAutoLink:
			buf.Write(n.(*ast.AutoLink).URL(src))
			return ast.WalkSkipChildren, nil
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			writeLines(&buf, src, n)
			return ast.WalkSkipChildren, nil
		case ast.KindListItem:
			buf.WriteString("- ")
		}
		return ast.WalkContinue, nil
	})

	return collapse(buf.String())
}

func writeLines(buf *bytes.Buffer, src []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
}

// collapse trims trailing whitespace per line and squeezes blank-line
// runs down to one.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
