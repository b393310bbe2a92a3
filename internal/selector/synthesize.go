// Package selector turns a DOM element into a replayable CSS selector.
//
// The generated selector is deterministic for a given document state and
// resolves to exactly the input element when queried against that same
// state. Nothing here validates selectors after generation; callers are
// expected to re-probe before relying on one (pages change).
package selector

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Generate builds a CSS selector for el, in priority order:
//
//  1. #id when the element carries a non-empty id attribute.
//  2. The full compound class selector (.c1.c2...) when it matches
//     exactly one element in the document.
//  3. A structural descendant path (tag > tag:nth-child(k) > ...) from
//     the body down to the element. An id on any ancestor anchors the
//     path and stops the upward walk early.
//
// el must be an element node attached to a parsed document.
func Generate(el *html.Node) (string, error) {
	if el == nil || el.Type != html.ElementNode {
		return "", fmt.Errorf("selector: not an element node")
	}

	if id := attr(el, "id"); id != "" {
		return "#" + EscapeIdent(id), nil
	}

	if sel := compoundClassSelector(el); sel != "" {
		if countMatches(documentOf(el), sel) == 1 {
			return sel, nil
		}
	}

	if sel := structuralPath(el); sel != "" {
		return sel, nil
	}
	// el is the body or above: the upward walk produced no segments.
	// Emit the bare tag so the selector resolves to the whole page
	// instead of coming out empty.
	return strings.ToLower(el.Data), nil
}

// compoundClassSelector returns ".c1.c2..." for all classes of el, or ""
// when the element has no classes.
func compoundClassSelector(el *html.Node) string {
	classes := strings.Fields(attr(el, "class"))
	if len(classes) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(EscapeIdent(c))
	}
	return b.String()
}

// structuralPath walks upward from el to (but excluding) the body,
// emitting one segment per level. An ancestor id short-circuits the walk:
// ids are assumed unique enough to anchor the rest of the path.
func structuralPath(el *html.Node) string {
	var segments []string

	for n := el; n != nil && n.Type == html.ElementNode && !isTopContainer(n); n = n.Parent {
		if id := attr(n, "id"); id != "" {
			segments = append(segments, "#"+EscapeIdent(id))
			break
		}

		seg := strings.ToLower(n.Data)
		if pos, hasPeers := sameTagPosition(n); hasPeers {
			seg += fmt.Sprintf(":nth-child(%d)", pos)
		}
		segments = append(segments, seg)
	}

	// Segments were collected leaf-first.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, " > ")
}

// sameTagPosition returns the 1-based position of n among sibling
// elements sharing its tag name, and whether any such sibling exists.
func sameTagPosition(n *html.Node) (int, bool) {
	if n.Parent == nil {
		return 1, false
	}
	pos := 0
	peers := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		peers++
		if c == n {
			pos = peers
		}
	}
	return pos, peers > 1
}

// isTopContainer reports whether n is the document's top-level content
// container (body or above). Paths never include it.
func isTopContainer(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return true
	}
	switch strings.ToLower(n.Data) {
	case "body", "html", "head":
		return true
	}
	return false
}

// Resolve returns all elements in doc matching sel, nil on a parse error.
func Resolve(doc *html.Node, sel string) []*html.Node {
	compiled, err := cascadia.Parse(sel)
	if err != nil {
		return nil
	}
	return cascadia.QueryAll(doc, compiled)
}

func countMatches(doc *html.Node, sel string) int {
	return len(Resolve(doc, sel))
}

func documentOf(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
