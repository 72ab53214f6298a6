// Package htmltext renders HTML mail bodies as readable plain text.
// Emphasis and links are kept in a light markdown form; images are dropped.
package htmltext

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Convert renders htmlStr as plain text. When the markup cannot be parsed
// the input is returned unchanged.
func Convert(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}
	c := &converter{}
	c.visit(doc)
	return normalize(string(c.buf))
}

type converter struct {
	buf   []byte
	pre   int
	lists []listState
	quote int
}

type listState struct {
	ordered bool
	n       int
}

func (c *converter) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		c.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		c.element(n)
		return
	}
	c.children(n)
}

func (c *converter) children(n *html.Node) {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.visit(ch)
	}
}

func (c *converter) element(n *html.Node) {
	switch strings.ToLower(n.Data) {
	case "head", "style", "script", "title", "meta", "link", "img":
		return
	case "br":
		c.newline()
	case "p", "div", "section", "article", "header", "footer", "table":
		c.block(2)
		c.children(n)
		c.block(2)
	case "tr":
		c.block(1)
		c.children(n)
		c.block(1)
	case "td", "th":
		if !c.atLineStart() {
			c.write(" | ")
		}
		c.children(n)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		c.block(2)
		c.write(strings.Repeat("#", level) + " ")
		c.children(n)
		c.block(2)
	case "hr":
		c.block(2)
		c.write("* * *")
		c.block(2)
	case "b", "strong":
		c.wrap(n, "**")
	case "i", "em":
		c.wrap(n, "_")
	case "a":
		c.link(n)
	case "ul", "ol":
		c.lists = append(c.lists, listState{ordered: n.Data == "ol"})
		c.block(1)
		c.children(n)
		c.lists = c.lists[:len(c.lists)-1]
		c.block(1)
	case "li":
		c.item(n)
	case "blockquote":
		c.block(2)
		c.quote++
		c.children(n)
		c.quote--
		c.block(2)
	case "pre":
		c.block(2)
		c.pre++
		c.children(n)
		c.pre--
		c.block(2)
	default:
		c.children(n)
	}
}

func (c *converter) item(n *html.Node) {
	c.block(1)
	depth := len(c.lists)
	marker := "* "
	if depth > 0 && c.lists[depth-1].ordered {
		c.lists[depth-1].n++
		marker = itoa(c.lists[depth-1].n) + ". "
	}
	if depth > 1 {
		c.write(strings.Repeat("  ", depth-1))
	}
	c.write(marker)
	c.children(n)
	c.block(1)
}

func (c *converter) wrap(n *html.Node, mark string) {
	start := len(c.buf)
	c.write(mark)
	inner := len(c.buf)
	c.children(n)
	if len(bytes.TrimSpace(c.buf[inner:])) == 0 {
		c.buf = c.buf[:start]
		return
	}
	c.write(mark)
}

func (c *converter) link(n *html.Node) {
	href := ""
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "href") {
			href = strings.TrimSpace(a.Val)
			break
		}
	}
	start := len(c.buf)
	c.write("[")
	inner := len(c.buf)
	c.children(n)
	label := strings.TrimSpace(string(c.buf[inner:]))
	switch {
	case label == "":
		c.buf = c.buf[:start]
	case href == "" || strings.HasPrefix(href, "#") || href == label:
		c.buf = append(c.buf[:start], label...)
	default:
		c.write("](" + href + ")")
	}
}

func (c *converter) text(s string) {
	if c.pre > 0 {
		c.write(s)
		return
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		if s != "" && !c.atLineStart() && !c.endsWithSpace() {
			c.buf = append(c.buf, ' ')
		}
		return
	}
	if isSpace(s[0]) && !c.atLineStart() && !c.endsWithSpace() {
		c.buf = append(c.buf, ' ')
	}
	c.write(strings.Join(words, " "))
	if isSpace(s[len(s)-1]) {
		c.buf = append(c.buf, ' ')
	}
}

func (c *converter) write(s string) {
	if c.quote > 0 && c.atLineStart() {
		c.buf = append(c.buf, strings.Repeat("> ", c.quote)...)
	}
	c.buf = append(c.buf, s...)
}

func (c *converter) newline() {
	c.buf = bytes.TrimRight(c.buf, " ")
	c.buf = append(c.buf, '\n')
}

// block ensures the output ends with at least n line breaks.
func (c *converter) block(n int) {
	c.buf = bytes.TrimRight(c.buf, " ")
	if len(c.buf) == 0 {
		return
	}
	have := 0
	for i := len(c.buf) - 1; i >= 0 && c.buf[i] == '\n'; i-- {
		have++
	}
	for ; have < n; have++ {
		c.buf = append(c.buf, '\n')
	}
}

func (c *converter) atLineStart() bool {
	return len(c.buf) == 0 || c.buf[len(c.buf)-1] == '\n'
}

func (c *converter) endsWithSpace() bool {
	return len(c.buf) > 0 && c.buf[len(c.buf)-1] == ' '
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
