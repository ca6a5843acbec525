package pagetest

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

var _ automation.Page = (*Page)(nil)

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Text(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return innerText(p.top.Find("body")), nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return goquery.OuterHtml(p.top.Selection)
}

func (p *Page) Documents(_ context.Context, depth int) ([]automation.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []automation.Document
	for _, d := range p.walk(depth) {
		doc := automation.Document{Key: d.key, Depth: d.depth, URL: d.url, Accessible: d.accessible}
		if d.dom != nil {
			doc.Text = innerText(d.dom.Find("body"))
		}
		out = append(out, doc)
	}
	return out, nil
}

func (p *Page) Query(_ context.Context, q automation.Query) ([]automation.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []automation.Element
	for _, d := range p.walk(q.Depth) {
		if d.dom == nil || (q.Doc != "" && q.Doc != d.key) {
			continue
		}
		d.dom.Find(q.Selector).Each(func(_ int, s *goquery.Selection) {
			out = append(out, p.snapshot(d.key, s))
		})
	}
	return out, nil
}

func (p *Page) Ancestors(_ context.Context, ref string, n int) ([]automation.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, s, ok := p.lookup(ref)
	if !ok {
		return nil, automation.ErrNotFound
	}
	var out []automation.Element
	for s.Length() > 0 && len(out) < n {
		name := goquery.NodeName(s)
		if name == "body" || name == "html" || name == "#document" {
			break
		}
		out = append(out, p.snapshot(doc, s))
		s = s.Parent()
	}
	return out, nil
}

func (p *Page) Rect(_ context.Context, ref string) (automation.Rect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, s, ok := p.lookup(ref)
	if !ok {
		return automation.Rect{}, automation.ErrNotFound
	}
	v, _ := s.Attr("data-rect")
	return parseRect(v), nil
}

func (p *Page) LabelledInput(_ context.Context, doc, label string) (automation.Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.walk(automation.MaxFrameDepth) {
		if d.dom == nil || (doc != "" && doc != d.key) {
			continue
		}
		var match *goquery.Selection
		d.dom.Find("label").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if strings.Contains(strings.ToLower(innerText(l)), strings.ToLower(label)) {
				match = l
				return false
			}
			return true
		})
		if match == nil {
			continue
		}
		if id, ok := match.Attr("for"); ok && id != "" {
			if el := d.dom.Find("#" + id); el.Length() > 0 {
				return p.snapshot(d.key, el.First()), true, nil
			}
		}
		for parent := match.Parent(); parent.Length() > 0 && goquery.NodeName(parent) != "body"; parent = parent.Parent() {
			if inp := parent.Find("input, textarea").First(); inp.Length() > 0 {
				return p.snapshot(d.key, inp), true, nil
			}
			if inp := parent.Next().Find("input, textarea").First(); inp.Length() > 0 {
				return p.snapshot(d.key, inp), true, nil
			}
		}
	}
	return automation.Element{}, false, nil
}

func (p *Page) FollowingInputs(_ context.Context, ref string) (automation.Siblings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, s, ok := p.lookup(ref)
	if !ok {
		return automation.Siblings{}, automation.ErrNotFound
	}
	var out automation.Siblings
	s.NextAll().Each(func(_ int, sib *goquery.Selection) {
		if goquery.NodeName(sib) == "input" {
			out.Next = append(out.Next, p.snapshot(doc, sib))
			return
		}
		if inp := sib.Find("input").First(); inp.Length() > 0 {
			out.Next = append(out.Next, p.snapshot(doc, inp))
		}
	})
	if inp := s.Parent().Next().Find("input").First(); inp.Length() > 0 {
		el := p.snapshot(doc, inp)
		out.ParentNext = &el
	}
	return out, nil
}

func (p *Page) AdjacentText(_ context.Context, ref string) (automation.Adjacent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, s, ok := p.lookup(ref)
	if !ok {
		return automation.Adjacent{}, automation.ErrNotFound
	}
	return automation.Adjacent{
		Prev:       innerText(s.Prev()),
		Next:       innerText(s.Next()),
		ParentPrev: innerText(s.Parent().Prev()),
	}, nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	p.url = url
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) ScrollIntoView(_ context.Context, ref string) error {
	return p.record(ref, &p.Scrolled)
}

func (p *Page) DispatchMouse(_ context.Context, ref string, _, _ float64) error {
	return p.record(ref, &p.Dispatched)
}

func (p *Page) Focus(_ context.Context, ref string) error {
	return p.record(ref, &p.Focused)
}

func (p *Page) record(ref string, into *[]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, _, ok := p.lookup(ref); !ok {
		return automation.ErrNotFound
	}
	*into = append(*into, ref)
	return nil
}

func (p *Page) NativeClick(_ context.Context, ref string) error {
	p.mu.Lock()
	doc, s, ok := p.lookup(ref)
	if !ok {
		p.mu.Unlock()
		return automation.ErrNotFound
	}
	p.Clicked = append(p.Clicked, ref)
	if t, _ := s.Attr("type"); t == "radio" || t == "checkbox" {
		s.SetAttr("checked", "checked")
	}
	el := p.snapshot(doc, s)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, el)
	}
	return nil
}

func (p *Page) SetValue(_ context.Context, ref, value string, ev automation.FillEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, s, ok := p.lookup(ref)
	if !ok {
		return automation.ErrNotFound
	}
	s.SetAttr("value", value)
	name, _ := s.Attr("name")
	p.Writes = append(p.Writes, Write{Ref: ref, Name: name, Value: value, Events: ev})
	return nil
}

func (p *Page) PointerClick(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pointer = append(p.Pointer, Point{X: x, Y: y})
	return nil
}

func (p *Page) KeyPress(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Keys = append(p.Keys, key)
	return nil
}

func (p *Page) GetItem(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.storage[key]
	return v, ok, nil
}

func (p *Page) SetItem(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage[key] = value
	return nil
}

func (p *Page) RemoveItem(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.storage, key)
	return nil
}

func (p *Page) Capture(_ context.Context, clip *automation.Rect) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Captures = append(p.Captures, clip)
	return []byte("\x89PNG-fake"), nil
}

// WritesTo returns the values written to elements named name, in order
func (p *Page) WritesTo(name string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, w := range p.Writes {
		if w.Name == name {
			out = append(out, w.Value)
		}
	}
	return out
}

// ClickedCount returns how many native clicks hit elements matching selector
func (p *Page) ClickedCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ref := range p.Clicked {
		if _, s, ok := p.lookup(ref); ok && s.Is(selector) {
			n++
		}
	}
	return n
}
