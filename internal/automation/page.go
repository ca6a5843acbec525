// Package automation holds the building blocks shared by every in-session
// engine: an abstract page capability, element snapshots, the actionable
// predicate, the cooperative scheduler and the resilient activation primitive.
package automation

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when an element ref no longer resolves
	ErrNotFound = errors.New("element not found")
	// ErrInaccessible is returned for documents the walker cannot enter
	ErrInaccessible = errors.New("document inaccessible")
)

// MaxFrameDepth bounds every walk into embedded frames
const MaxFrameDepth = 3

// Rect is an element's bounding box in viewport coordinates
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the midpoint of r
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty reports whether r has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Element is a point-in-time snapshot of one DOM element
type Element struct {
	Ref         string `json:"ref"`
	Doc         string `json:"doc"`
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Class       string `json:"class"`
	Placeholder string `json:"placeholder"`
	Alt         string `json:"alt"`
	Src         string `json:"src"`
	Href        string `json:"href"`
	MaxLength   int    `json:"maxLength"`
	Checked     bool   `json:"checked"`
	Disabled    bool   `json:"disabled"`
	Visible     bool   `json:"visible"`
	Children    int    `json:"children"`
	Rect        Rect   `json:"rect"`
}

// Label is the text a user would read on the element: its inner text, else
// its value, alt or src attribute.
func (e Element) Label() string {
	for _, s := range []string{e.Text, e.Value, e.Alt, e.Src} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}

// Is reports whether the element's tag is one of tags (case-insensitive)
func (e Element) Is(tags ...string) bool {
	for _, t := range tags {
		if strings.EqualFold(e.Tag, t) {
			return true
		}
	}
	return false
}

// Document describes one document reachable from the top page
type Document struct {
	Key        string `json:"key"` // "0" for the top document, "0.1" for its first frame, ...
	Depth      int    `json:"depth"`
	URL        string `json:"url"`
	Accessible bool   `json:"accessible"`
	Text       string `json:"text"`
}

// Query selects elements by CSS selector across documents
type Query struct {
	Selector string
	// Depth is how many frame levels to descend; 0 means the top document only
	Depth int
	// Doc restricts the query to one document key when set
	Doc string
}

// Siblings are the inputs that follow an element, used to skip prefix boxes
type Siblings struct {
	Next       []Element `json:"next"`
	ParentNext *Element  `json:"parentNext"`
}

// Adjacent holds the inner text around an element, used where markup puts a
// field's caption beside it instead of in a label
type Adjacent struct {
	Prev       string `json:"prev"`
	Next       string `json:"next"`
	ParentPrev string `json:"parentPrev"`
}

// Reader inspects the current document tree
type Reader interface {
	URL(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Documents(ctx context.Context, depth int) ([]Document, error)
	Query(ctx context.Context, q Query) ([]Element, error)
	// Ancestors returns the element followed by up to n-1 ancestors, stopping below BODY
	Ancestors(ctx context.Context, ref string, n int) ([]Element, error)
	Rect(ctx context.Context, ref string) (Rect, error)
	LabelledInput(ctx context.Context, doc, label string) (Element, bool, error)
	FollowingInputs(ctx context.Context, ref string) (Siblings, error)
	AdjacentText(ctx context.Context, ref string) (Adjacent, error)
}

// Actor performs DOM-level actions on elements
type Actor interface {
	Navigate(ctx context.Context, url string) error
	ScrollIntoView(ctx context.Context, ref string) error
	DispatchMouse(ctx context.Context, ref string, x, y float64) error
	NativeClick(ctx context.Context, ref string) error
	// Focus makes the element focusable when needed and focuses it
	Focus(ctx context.Context, ref string) error
	SetValue(ctx context.Context, ref, value string, ev FillEvents) error
}

// Input injects trusted OS-level pointer and keyboard events
type Input interface {
	PointerClick(ctx context.Context, x, y float64) error
	KeyPress(ctx context.Context, key string) error
}

// Storage is the session-scoped key/value store that survives reloads
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Capturer takes PNG screenshots; a nil clip captures the viewport
type Capturer interface {
	Capture(ctx context.Context, clip *Rect) ([]byte, error)
}

// Page is everything an engine may do inside one session
type Page interface {
	Reader
	Actor
	Input
	Storage
	Capturer
}

// Parent returns the immediate parent of ref
func Parent(ctx context.Context, r Reader, ref string) (Element, bool, error) {
	chain, err := r.Ancestors(ctx, ref, 2)
	if err != nil {
		return Element{}, false, err
	}
	if len(chain) < 2 {
		return Element{}, false, nil
	}
	return chain[1], true, nil
}
