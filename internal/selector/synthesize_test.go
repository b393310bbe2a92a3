package selector

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return doc
}

// findMarked returns the first element carrying a data-pick attribute.
func findMarked(t *testing.T, doc *html.Node) *html.Node {
	t.Helper()
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && attr(n, "data-pick") != "" {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if found == nil {
		t.Fatal("no element marked with data-pick")
	}
	return found
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "id wins over everything",
			body: `<div class="a b"><span id="target" class="c" data-pick="1"></span></div>`,
			want: "#target",
		},
		{
			name: "unique compound class",
			body: `<div class="card"><p class="title main" data-pick="1"></p><p class="title"></p></div>`,
			want: ".title.main",
		},
		{
			name: "ambiguous class falls back to path",
			body: `<div><p class="row" data-pick="1"></p><p class="row"></p></div>`,
			want: "div > p:nth-child(1)",
		},
		{
			name: "no class no id",
			body: `<section><article><span data-pick="1"></span></article></section>`,
			want: "section > article > span",
		},
		{
			name: "nth-child only with same-tag siblings",
			body: `<ul><li></li><li data-pick="1"></li><li></li></ul>`,
			want: "ul > li:nth-child(2)",
		},
		{
			name: "ancestor id anchors the path",
			body: `<div id="app"><main><p data-pick="1"></p><p></p></main></div>`,
			want: "#app > main > p:nth-child(1)",
		},
		{
			name: "id with special characters is escaped",
			body: `<div id="a:b" data-pick="1"></div>`,
			want: `#a\:b`,
		},
		{
			name: "class with leading digit is escaped",
			body: `<div class="2col" data-pick="1"></div>`,
			want: `.\32 col`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, tt.body)
			el := findMarked(t, doc)

			got, err := Generate(el)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Generate = %q, want %q", got, tt.want)
			}
		})
	}
}

// The round-trip property: whatever path Generate takes, the selector
// must resolve to exactly the input element on the same document state.
func TestGenerateRoundTrip(t *testing.T) {
	bodies := []string{
		`<div id="only" data-pick="1"></div>`,
		`<div class="x"><span class="unique-class" data-pick="1"></span></div>`,
		`<table><tbody><tr><td></td><td data-pick="1"></td><td></td></tr></tbody></table>`,
		`<div><div><div><a data-pick="1"></a></div></div></div>`,
		`<ul><li></li><li><b data-pick="1"></b></li></ul>`,
		`<div id="wrap"><p></p><p data-pick="1"></p></div>`,
	}

	for _, body := range bodies {
		doc := parse(t, body)
		el := findMarked(t, doc)

		sel, err := Generate(el)
		if err != nil {
			t.Fatalf("Generate(%q) failed: %v", body, err)
		}

		matches := Resolve(doc, sel)
		if len(matches) != 1 {
			t.Errorf("selector %q resolved %d elements, want 1 (body %q)", sel, len(matches), body)
			continue
		}
		if matches[0] != el {
			t.Errorf("selector %q resolved a different element (body %q)", sel, body)
		}
	}
}

// Clicking the page body itself must yield a resolvable whole-page
// selector, never an empty string.
func TestGenerateBodyYieldsBareTag(t *testing.T) {
	doc := parse(t, `<div></div>`)

	var body *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if body == nil {
		t.Fatal("body node not found")
	}

	sel, err := Generate(body)
	if err != nil {
		t.Fatalf("Generate(body) failed: %v", err)
	}
	if sel != "body" {
		t.Errorf("Generate(body) = %q, want %q", sel, "body")
	}
	if matches := Resolve(doc, sel); len(matches) != 1 || matches[0] != body {
		t.Errorf("selector %q did not resolve back to the body", sel)
	}
}

func TestGenerateRejectsNonElements(t *testing.T) {
	if _, err := Generate(nil); err == nil {
		t.Error("expected error for nil node")
	}

	doc := parse(t, `<p>text</p>`)
	// Grab the text node inside the paragraph.
	var text *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Data == "text" {
			text = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if text == nil {
		t.Fatal("text node not found")
	}
	if _, err := Generate(text); err == nil {
		t.Error("expected error for text node")
	}
}

func TestEscapeIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with-dash_ok", "with-dash_ok"},
		{"a:b", `a\:b`},
		{"a.b", `a\.b`},
		{"2col", `\32 col`},
		{"-", `\-`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeIdent(tt.in); got != tt.want {
			t.Errorf("EscapeIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
