package highlight

import (
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	attrID      = "data-hl-id"
	attrColor   = "data-color"
	attrFormats = "data-formats"

	markSelector = "mark[" + attrID + "]"
)

var ErrTextNotFound = errors.New("text not found in content")

// Mark is what a highlight looks like on a surface.
type Mark struct {
	Key        string
	ColorIndex int
	Formats    []string
}

// Surface is rendered content a highlight can be applied to.
type Surface interface {
	HasMark(key string) bool
	// Wrap marks the first occurrence of text that is not already marked.
	Wrap(text string, mark Mark) error
	ClearMarks() int
}

// HTMLSurface applies highlights to an HTML fragment. A match may span
// several text nodes; each covered piece gets its own mark element with
// the same key.
type HTMLSurface struct {
	doc  *goquery.Document
	root *goquery.Selection
}

func NewHTMLSurface(fragment string) (*HTMLSurface, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	return &HTMLSurface{doc: doc, root: doc.Find("body")}, nil
}

// HTML renders the fragment back, without the html/body wrapper.
func (s *HTMLSurface) HTML() (string, error) {
	return s.root.Html()
}

func (s *HTMLSurface) HasMark(key string) bool {
	found := false
	s.root.Find(markSelector).EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if id, _ := m.Attr(attrID); id == key {
			found = true
			return false
		}
		return true
	})
	return found
}

func (s *HTMLSurface) ClearMarks() int {
	marks := s.root.Find(markSelector)
	n := marks.Length()
	marks.Each(func(_ int, m *goquery.Selection) {
		if m.Contents().Length() == 0 {
			m.Remove()
			return
		}
		m.Contents().Unwrap()
	})
	return n
}

type segment struct {
	node   *html.Node
	start  int
	marked bool
}

func (s *HTMLSurface) segments() ([]segment, string) {
	var segs []segment
	var b strings.Builder
	var walk func(n *html.Node, marked bool)
	walk = func(n *html.Node, marked bool) {
		switch {
		case n.Type == html.TextNode:
			if n.Data != "" {
				segs = append(segs, segment{node: n, start: b.Len(), marked: marked})
				b.WriteString(n.Data)
			}
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Mark && hasAttr(n, attrID):
			marked = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, marked)
		}
	}
	for _, n := range s.root.Nodes {
		walk(n, false)
	}
	return segs, b.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func (s *HTMLSurface) Wrap(text string, mark Mark) error {
	if text == "" {
		return ErrTextNotFound
	}
	segs, content := s.segments()

	for from := 0; from <= len(content)-len(text); {
		idx := strings.Index(content[from:], text)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(text)
		covered := overlapping(segs, start, end)
		if !anyMarked(covered) {
			for _, seg := range covered {
				wrapSegment(seg, start, end, mark)
			}
			return nil
		}
		from = start + 1
	}
	return ErrTextNotFound
}

func overlapping(segs []segment, start, end int) []segment {
	var out []segment
	for _, seg := range segs {
		segEnd := seg.start + len(seg.node.Data)
		if segEnd > start && seg.start < end {
			out = append(out, seg)
		}
	}
	return out
}

func anyMarked(segs []segment) bool {
	for _, seg := range segs {
		if seg.marked {
			return true
		}
	}
	return false
}

// wrapSegment splits a text node into before, marked and after parts.
func wrapSegment(seg segment, start, end int, mark Mark) {
	n := seg.node
	from := max(start-seg.start, 0)
	to := min(end-seg.start, len(n.Data))
	before, middle, after := n.Data[:from], n.Data[from:to], n.Data[to:]

	parent := n.Parent
	if before != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: before}, n)
	}
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     "mark",
		DataAtom: atom.Mark,
		Attr: []html.Attribute{
			{Key: attrID, Val: mark.Key},
			{Key: attrColor, Val: strconv.Itoa(mark.ColorIndex)},
			{Key: attrFormats, Val: strings.Join(mark.Formats, ",")},
			{Key: "class", Val: "hl hl-color-" + strconv.Itoa(mark.ColorIndex)},
		},
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: middle})
	parent.InsertBefore(el, n)
	if after != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, n)
	}
	parent.RemoveChild(n)
}
