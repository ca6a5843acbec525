// Package pagetest provides an in-memory automation.Page built from HTML
// fixtures, and a virtual clock.
//
// Fixture conventions:
//   - data-rect="x,y,w,h" sets an element's bounding box
//   - data-hidden marks an element as having no layout
//   - <iframe data-frame="name"> embeds the frame registered under name
package pagetest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

// Point is a recorded OS-level pointer click
type Point struct{ X, Y float64 }

// Write is a recorded value write
type Write struct {
	Ref    string
	Name   string
	Value  string
	Events automation.FillEvents
}

type frame struct {
	url        string
	accessible bool
	dom        *goquery.Document
}

// Page is a fake automation.Page
type Page struct {
	mu      sync.Mutex
	url     string
	top     *goquery.Document
	frames  map[string]*frame
	storage map[string]string
	seq     int

	Navigations []string
	Pointer     []Point
	Keys        []string
	Clicked     []string
	Dispatched  []string
	Focused     []string
	Scrolled    []string
	Writes      []Write
	Captures    []*automation.Rect

	// OnClick runs after a native click, with the page unlocked
	OnClick func(p *Page, el automation.Element)
	// OnNavigate runs after a navigation, with the page unlocked
	OnNavigate func(p *Page, url string)
}

// New builds a page at url from an HTML fixture
func New(url, html string) *Page {
	p := &Page{
		frames:  make(map[string]*frame),
		storage: make(map[string]string),
	}
	p.Load(url, html)
	return p
}

// Load replaces the top document, as a navigation would
func (p *Page) Load(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.top = mustParse(html)
}

// AddFrame registers an embedded document referenced by data-frame="name"
func (p *Page) AddFrame(name, url, html string, accessible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[name] = &frame{url: url, accessible: accessible, dom: mustParse(html)}
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("pagetest: bad fixture: %v", err))
	}
	return doc
}

// Item returns a storage value, for assertions
func (p *Page) Item(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.storage[key]
	return v, ok
}

// Find returns the snapshot of the first element matching selector in the top document
func (p *Page) Find(selector string) (automation.Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.top.Find(selector).First()
	if s.Length() == 0 {
		return automation.Element{}, false
	}
	return p.snapshot("0", s), true
}

// ValueOf returns the current value attribute of the first match in any document
func (p *Page) ValueOf(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.walk(automation.MaxFrameDepth) {
		if d.dom == nil {
			continue
		}
		if s := d.dom.Find(selector).First(); s.Length() > 0 {
			v, _ := s.Attr("value")
			return v
		}
	}
	return ""
}

// SetValueOf overwrites a value as a third-party script would
func (p *Page) SetValueOf(selector, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.walk(automation.MaxFrameDepth) {
		if d.dom == nil {
			continue
		}
		if s := d.dom.Find(selector).First(); s.Length() > 0 {
			s.SetAttr("value", value)
			return
		}
	}
}

type docRef struct {
	key        string
	depth      int
	url        string
	accessible bool
	dom        *goquery.Document
}

// walk lists reachable documents, top first, down to depth frame levels
func (p *Page) walk(depth int) []docRef {
	out := []docRef{{key: "0", depth: 0, url: p.url, accessible: true, dom: p.top}}
	var visit func(parent docRef)
	visit = func(parent docRef) {
		if parent.depth >= depth || parent.dom == nil {
			return
		}
		parent.dom.Find("iframe[data-frame], frame[data-frame]").Each(func(_ int, s *goquery.Selection) {
			name, _ := s.Attr("data-frame")
			f, ok := p.frames[name]
			if !ok {
				return
			}
			d := docRef{key: name, depth: parent.depth + 1, url: f.url, accessible: f.accessible}
			if f.accessible {
				d.dom = f.dom
			}
			out = append(out, d)
			visit(d)
		})
	}
	visit(out[0])
	return out
}

func (p *Page) lookup(ref string) (string, *goquery.Selection, bool) {
	for _, d := range p.walk(automation.MaxFrameDepth) {
		if d.dom == nil {
			continue
		}
		s := d.dom.Find(fmt.Sprintf(`[data-ref=%q]`, ref))
		if s.Length() > 0 {
			return d.key, s.First(), true
		}
	}
	return "", nil, false
}

func (p *Page) ref(s *goquery.Selection) string {
	if r, ok := s.Attr("data-ref"); ok {
		return r
	}
	p.seq++
	r := "e" + strconv.Itoa(p.seq)
	s.SetAttr("data-ref", r)
	return r
}

func (p *Page) snapshot(doc string, s *goquery.Selection) automation.Element {
	tag := strings.ToUpper(goquery.NodeName(s))
	attr := func(name string) string {
		v, _ := s.Attr(name)
		return v
	}
	el := automation.Element{
		Ref:         p.ref(s),
		Doc:         doc,
		Tag:         tag,
		Value:       attr("value"),
		Type:        strings.ToLower(attr("type")),
		Name:        attr("name"),
		ID:          attr("id"),
		Class:       attr("class"),
		Placeholder: attr("placeholder"),
		Alt:         attr("alt"),
		Src:         attr("src"),
		Href:        attr("href"),
		Children:    s.Children().Length(),
		Rect:        parseRect(attr("data-rect")),
	}
	if tag != "INPUT" && tag != "TEXTAREA" && tag != "SELECT" {
		el.Text = innerText(s)
	}
	if tag == "INPUT" && el.Type == "" {
		el.Type = "text"
	}
	el.MaxLength, _ = strconv.Atoi(attr("maxlength"))
	_, el.Checked = s.Attr("checked")
	_, el.Disabled = s.Attr("disabled")
	el.Visible = s.Closest("[data-hidden]").Length() == 0
	return el
}

func parseRect(raw string) automation.Rect {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return automation.Rect{}
	}
	var v [4]float64
	for i, part := range parts {
		v[i], _ = strconv.ParseFloat(strings.TrimSpace(part), 64)
	}
	return automation.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
}

var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "tr": true, "br": true, "section": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "ul": true, "form": true,
	"label": true, "td": true,
}

// innerText approximates the browser's innerText: text nodes joined, block
// elements on their own lines, whitespace collapsed.
func innerText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch name {
			case "#text":
				b.WriteString(c.Text())
			case "script", "style", "#comment":
			default:
				if _, hidden := c.Attr("data-hidden"); hidden {
					return
				}
				if blockTags[name] {
					b.WriteString("\n")
				}
				walk(c)
				if blockTags[name] {
					b.WriteString("\n")
				}
			}
		})
	}
	walk(s)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
