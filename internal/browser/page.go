package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

// ErrClosed is returned by a Page whose tab has gone away
var ErrClosed = errors.New("browser closed")

// Page implements automation.Page over one chromedp tab. Every call runs the
// walker in the top document; refs stay valid until the document unloads.
type Page struct {
	tab context.Context
}

var _ automation.Page = (*Page)(nil)

// NewPage wraps a chromedp tab context
func NewPage(tab context.Context) *Page {
	return &Page{tab: tab}
}

// run executes actions against the tab, cancelled by ctx
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.tab.Err() != nil {
		return ErrClosed
	}
	c := chromedp.FromContext(p.tab)
	if c == nil || c.Target == nil {
		return ErrClosed
	}
	exec := cdp.WithExecutor(ctx, c.Target)
	for _, a := range actions {
		if err := a.Do(exec); err != nil {
			return err
		}
	}
	return nil
}

type envelope struct {
	V   json.RawMessage `json:"v"`
	Err string          `json:"err"`
}

// call invokes hc.<op>(args...) and decodes its result into out
func (p *Page) call(ctx context.Context, op string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	argv, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode %s args: %w", op, err)
	}
	expr := fmt.Sprintf(`(function(){%s
try { return {v: hc[%q].apply(null, %s)}; }
catch (e) { return {err: (e && e.hc) ? e.hc : String(e)}; }
})()`, walkerJS, op, argv)

	var env envelope
	if err := p.run(ctx, chromedp.Evaluate(expr, &env)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch env.Err {
	case "":
	case "notfound":
		return automation.ErrNotFound
	case "inaccessible":
		return automation.ErrInaccessible
	default:
		return fmt.Errorf("%s: %s", op, env.Err)
	}
	if out == nil || len(env.V) == 0 || string(env.V) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.V, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", op, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var s string
	err := p.call(ctx, "url", &s)
	return s, err
}

func (p *Page) Text(ctx context.Context) (string, error) {
	var s string
	err := p.call(ctx, "text", &s)
	return s, err
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var s string
	err := p.call(ctx, "html", &s)
	return s, err
}

func (p *Page) Documents(ctx context.Context, depth int) ([]automation.Document, error) {
	var docs []automation.Document
	err := p.call(ctx, "documents", &docs, clampDepth(depth))
	return docs, err
}

func (p *Page) Query(ctx context.Context, q automation.Query) ([]automation.Element, error) {
	var els []automation.Element
	err := p.call(ctx, "query", &els, q.Selector, clampDepth(q.Depth), q.Doc)
	return els, err
}

func (p *Page) Ancestors(ctx context.Context, ref string, n int) ([]automation.Element, error) {
	var els []automation.Element
	err := p.call(ctx, "ancestors", &els, ref, n)
	return els, err
}

func (p *Page) Rect(ctx context.Context, ref string) (automation.Rect, error) {
	var r automation.Rect
	err := p.call(ctx, "rect", &r, ref)
	return r, err
}

func (p *Page) LabelledInput(ctx context.Context, doc, label string) (automation.Element, bool, error) {
	var el *automation.Element
	if err := p.call(ctx, "labelled", &el, doc, label); err != nil {
		return automation.Element{}, false, err
	}
	if el == nil {
		return automation.Element{}, false, nil
	}
	return *el, true, nil
}

func (p *Page) FollowingInputs(ctx context.Context, ref string) (automation.Siblings, error) {
	var s automation.Siblings
	err := p.call(ctx, "following", &s, ref)
	return s, err
}

func (p *Page) AdjacentText(ctx context.Context, ref string) (automation.Adjacent, error) {
	var a automation.Adjacent
	err := p.call(ctx, "adjacent", &a, ref)
	return a, err
}

// Navigate schedules a top-level navigation and returns without waiting for
// the load; the next document reports itself through OnDocumentReady
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.call(ctx, "navigate", nil, url)
}

func (p *Page) ScrollIntoView(ctx context.Context, ref string) error {
	return p.call(ctx, "scroll", nil, ref)
}

func (p *Page) DispatchMouse(ctx context.Context, ref string, x, y float64) error {
	return p.call(ctx, "dispatch", nil, ref, x, y)
}

func (p *Page) NativeClick(ctx context.Context, ref string) error {
	return p.call(ctx, "click", nil, ref)
}

func (p *Page) Focus(ctx context.Context, ref string) error {
	return p.call(ctx, "focus", nil, ref)
}

func (p *Page) SetValue(ctx context.Context, ref, value string, ev automation.FillEvents) error {
	return p.call(ctx, "setValue", nil, ref, value, uint16(ev))
}

// PointerClick injects a trusted left click at viewport coordinates
func (p *Page) PointerClick(ctx context.Context, x, y float64) error {
	return p.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	)
}

var keyNames = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
}

// KeyPress injects a trusted key press to the focused element
func (p *Page) KeyPress(ctx context.Context, key string) error {
	if k, ok := keyNames[key]; ok {
		key = k
	}
	return p.run(ctx, chromedp.KeyEvent(key))
}

func (p *Page) GetItem(ctx context.Context, key string) (string, bool, error) {
	var res struct {
		Value string `json:"value"`
		OK    bool   `json:"ok"`
	}
	if err := p.call(ctx, "getItem", &res, key); err != nil {
		return "", false, err
	}
	return res.Value, res.OK, nil
}

func (p *Page) SetItem(ctx context.Context, key, value string) error {
	return p.call(ctx, "setItem", nil, key, value)
}

func (p *Page) RemoveItem(ctx context.Context, key string) error {
	return p.call(ctx, "removeItem", nil, key)
}

// Capture screenshots the viewport region clip, or the whole viewport
func (p *Page) Capture(ctx context.Context, clip *automation.Rect) ([]byte, error) {
	shot := cdppage.CaptureScreenshot().WithFormat(cdppage.CaptureScreenshotFormatPng)
	if clip != nil {
		// clips are in document coordinates
		var scroll struct{ X, Y float64 }
		if err := p.call(ctx, "scrollOffset", &scroll); err != nil {
			return nil, err
		}
		shot = shot.WithClip(&cdppage.Viewport{
			X:      clip.X + scroll.X,
			Y:      clip.Y + scroll.Y,
			Width:  clip.Width,
			Height: clip.Height,
			Scale:  1,
		})
	}

	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = shot.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func clampDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > automation.MaxFrameDepth {
		return automation.MaxFrameDepth
	}
	return depth
}
