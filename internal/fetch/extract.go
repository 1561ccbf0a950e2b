package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ignoredElements never contribute visible text.
var ignoredElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Template: true,
}

// extractHTML parses raw HTML and returns the page title and its
// visible text, paragraphs separated by blank lines.
func extractHTML(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", ""
	}

	var sb strings.Builder
	walk(doc, &sb, &title)
	return strings.TrimSpace(title), collapseBlankLines(sb.String())
}

func walk(n *html.Node, sb *strings.Builder, title *string) {
	switch n.Type {
	case html.ElementNode:
		if ignoredElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Title && *title == "" {
			*title = textContent(n)
			return
		}
		if blockLevel(n.DataAtom) && sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			sb.WriteString(t)
			sb.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, title)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li || n.DataAtom == atom.Tr) {
		sb.WriteByte('\n')
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Aside,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table, atom.Hr:
		return true
	}
	return false
}

// collapseBlankLines trims trailing spaces and squeezes runs of blank
// lines down to one.
func collapseBlankLines(s string) string {
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
