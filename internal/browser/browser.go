// Package browser launches isolated Chrome contexts, one per session, and
// exposes each as an automation.Page. Two backends exist: a local Chrome
// process per partition and a browserless container per session.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

// ErrLoadTimeout is returned when a navigation does not finish in time. The
// browser stays usable.
var ErrLoadTimeout = errors.New("page load timed out")

// DefaultUserAgent is a desktop Chrome 124 UA; the storefront serves its
// mobile site to unknown agents
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Bounds is a layout rectangle in host window pixels
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchOptions describes one isolated context
type LaunchOptions struct {
	// ContextKey is the partition key the context is isolated under
	ContextKey  string
	UserDataDir string
	Proxy       string
	UserAgent   string
	Bounds      Bounds
	LoadTimeout time.Duration
}

// EventKind classifies a browser-originated problem report
type EventKind string

const (
	EventConsoleError EventKind = "console-error"
	EventException    EventKind = "exception"
	EventLoadFailed   EventKind = "load-failed"
	EventCrashed      EventKind = "crashed"
)

// Event is a problem report keyed by context id. The browser layer never
// knows which account owns a context.
type Event struct {
	ContextID string
	Kind      EventKind
	Message   string
}

// Browser is one live isolated context
type Browser interface {
	ContextID() string
	// Navigate loads url, failing with ErrLoadTimeout after the load timeout
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	GoBack(ctx context.Context) error
	SetBounds(ctx context.Context, b Bounds) error
	SetVisible(ctx context.Context, visible bool) error
	// URL is the last committed top-level URL
	URL() string
	Page() automation.Page
	// OnDocumentReady registers fn to run after every top-level load
	OnDocumentReady(fn func())
	OnEvent(fn func(Event))
	// ConnectURL is the DevTools websocket for relaying, empty when local
	ConnectURL() string
	Close() error
}

// Launcher creates browsers
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
	Close() error
}
