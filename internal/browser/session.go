package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

const (
	defaultLoadTimeout = 25 * time.Second
	eventQueueSize     = 64
)

// tab is a Browser over one chromedp tab. Both backends produce one; they
// differ only in the allocator and in what closing releases.
type tab struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	page        *Page
	userAgent   string
	loadTimeout time.Duration
	connectURL  string
	release     func() error
	logger      *zap.Logger

	evq chan Event

	mu      sync.Mutex
	url     string
	ready   []func()
	events  []func(Event)
	closed  bool
	visible bool
}

var _ Browser = (*tab)(nil)

// openTab starts a tab on allocCtx, installs interception and listeners and
// applies the initial bounds. release runs once on Close.
func openTab(allocCtx context.Context, opts LaunchOptions, release func() error, logger *zap.Logger) (*tab, error) {
	ctx, cancel := chromedp.NewContext(allocCtx)

	t := &tab{
		id:          opts.ContextKey,
		ctx:         ctx,
		cancel:      cancel,
		page:        NewPage(ctx),
		userAgent:   opts.UserAgent,
		loadTimeout: opts.LoadTimeout,
		release:     release,
		logger:      logger.With(zap.String("context_id", opts.ContextKey)),
		evq:         make(chan Event, eventQueueSize),
		visible:     true,
	}
	if t.userAgent == "" {
		t.userAgent = DefaultUserAgent
	}
	if t.loadTimeout <= 0 {
		t.loadTimeout = defaultLoadTimeout
	}
	go t.deliver()

	// First Run starts the browser for this context
	if err := chromedp.Run(ctx); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	chromedp.ListenTarget(ctx, t.listen)

	err := chromedp.Run(ctx,
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
			{URLPattern: "*", ResourceType: network.ResourceTypeDocument, RequestStage: fetch.RequestStageResponse},
		}),
		inspector.Enable(),
		runtime.Enable(),
		cdppage.Enable(),
		emulation.SetUserAgentOverride(t.userAgent),
	)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to prepare browser: %w", err)
	}

	if opts.Bounds.Width > 0 && opts.Bounds.Height > 0 {
		if err := t.SetBounds(ctx, opts.Bounds); err != nil {
			t.logger.Debug("initial bounds not applied", zap.Error(err))
		}
	}
	return t, nil
}

func (t *tab) listen(ev interface{}) {
	switch e := ev.(type) {
	case *fetch.EventRequestPaused:
		go t.intercept(e)

	case *cdppage.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			t.mu.Lock()
			t.url = e.Frame.URL + e.Frame.URLFragment
			t.mu.Unlock()
		}

	case *cdppage.EventLoadEventFired:
		t.mu.Lock()
		fns := append([]func(){}, t.ready...)
		t.mu.Unlock()
		for _, fn := range fns {
			go fn()
		}

	case *runtime.EventConsoleAPICalled:
		if e.Type != runtime.APITypeError {
			return
		}
		var parts []string
		for _, arg := range e.Args {
			switch {
			case arg.Description != "":
				parts = append(parts, arg.Description)
			case len(arg.Value) > 0:
				parts = append(parts, string(arg.Value))
			}
		}
		t.emit(EventConsoleError, strings.Join(parts, " "))

	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		msg := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			msg = e.ExceptionDetails.Exception.Description
		}
		t.emit(EventException, msg)

	case *inspector.EventTargetCrashed:
		t.emit(EventCrashed, "render process crashed")
	}
}

// intercept rewrites request headers and strips framing headers from
// document responses
func (t *tab) intercept(ev *fetch.EventRequestPaused) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if ev.ResponseStatusCode == 0 && ev.ResponseErrorReason == "" {
		headers := RewriteRequestHeaders(requestHeaders(ev.Request.Headers), t.userAgent)
		err = t.page.run(ctx, fetch.ContinueRequest(ev.RequestID).WithHeaders(entries(headers)))
	} else {
		headers := responseHeaders(ev.ResponseHeaders)
		if ev.ResponseErrorReason != "" || !NeedsStrip(headers) {
			err = t.page.run(ctx, fetch.ContinueRequest(ev.RequestID))
		} else {
			err = t.page.run(ctx, fetch.ContinueResponse(ev.RequestID).
				WithResponseCode(ev.ResponseStatusCode).
				WithResponseHeaders(entries(StripResponseHeaders(headers))))
		}
	}
	if err != nil && !errors.Is(err, ErrClosed) {
		t.logger.Debug("interception continue failed", zap.String("url", ev.Request.URL), zap.Error(err))
	}
}

func requestHeaders(h network.Headers) []Header {
	out := make([]Header, 0, len(h))
	for name, v := range h {
		out = append(out, Header{Name: name, Value: fmt.Sprint(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func responseHeaders(in []*fetch.HeaderEntry) []Header {
	out := make([]Header, 0, len(in))
	for _, h := range in {
		out = append(out, Header{Name: h.Name, Value: h.Value})
	}
	return out
}

func entries(in []Header) []*fetch.HeaderEntry {
	out := make([]*fetch.HeaderEntry, 0, len(in))
	for _, h := range in {
		out = append(out, &fetch.HeaderEntry{Name: h.Name, Value: h.Value})
	}
	return out
}

// emit queues an event for deliver. It never blocks: listeners run on the
// goroutine that also carries this tab's command responses.
func (t *tab) emit(kind EventKind, msg string) {
	evt := Event{ContextID: t.id, Kind: kind, Message: msg}
	select {
	case t.evq <- evt:
	default:
		t.logger.Debug("event dropped", zap.String("kind", string(kind)), zap.String("message", msg))
	}
}

func (t *tab) deliver() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case evt := <-t.evq:
			t.mu.Lock()
			fns := append([]func(Event){}, t.events...)
			t.mu.Unlock()
			for _, fn := range fns {
				fn(evt)
			}
		}
	}
}

func (t *tab) ContextID() string { return t.id }

func (t *tab) Page() automation.Page { return t.page }

func (t *tab) ConnectURL() string { return t.connectURL }

func (t *tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Navigate loads url and waits for the load event
func (t *tab) Navigate(ctx context.Context, url string) error {
	return t.load(ctx, url, chromedp.Navigate(url))
}

func (t *tab) Reload(ctx context.Context) error {
	return t.load(ctx, t.URL(), chromedp.Reload())
}

func (t *tab) GoBack(ctx context.Context) error {
	return t.load(ctx, t.URL(), chromedp.NavigateBack())
}

func (t *tab) load(ctx context.Context, url string, action chromedp.Action) error {
	lctx, cancel := context.WithTimeout(ctx, t.loadTimeout)
	defer cancel()

	err := t.page.run(lctx, action)
	if err == nil {
		return nil
	}
	if errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		t.emit(EventLoadFailed, fmt.Sprintf("timeout after %s loading %s", t.loadTimeout, url))
		return fmt.Errorf("%w: %s", ErrLoadTimeout, url)
	}
	t.emit(EventLoadFailed, fmt.Sprintf("%s: %v", url, err))
	return fmt.Errorf("failed to load %s: %w", url, err)
}

// SetBounds resizes the viewport, and the window when one exists
func (t *tab) SetBounds(ctx context.Context, b Bounds) error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid bounds %dx%d", b.Width, b.Height)
	}
	if err := t.window(ctx, &cdpbrowser.Bounds{
		Left:        int64(b.X),
		Top:         int64(b.Y),
		Width:       int64(b.Width),
		Height:      int64(b.Height),
		WindowState: cdpbrowser.WindowStateNormal,
	}); err != nil {
		t.logger.Debug("window bounds not applied", zap.Error(err))
	}
	return t.page.run(ctx, emulation.SetDeviceMetricsOverride(int64(b.Width), int64(b.Height), 1, false))
}

// SetVisible minimizes or restores the window. Headless and remote
// browsers have no window and ignore it.
func (t *tab) SetVisible(ctx context.Context, visible bool) error {
	t.mu.Lock()
	t.visible = visible
	t.mu.Unlock()

	state := cdpbrowser.WindowStateNormal
	if !visible {
		state = cdpbrowser.WindowStateMinimized
	}
	if err := t.window(ctx, &cdpbrowser.Bounds{WindowState: state}); err != nil {
		t.logger.Debug("window state not applied", zap.Error(err))
	}
	return nil
}

func (t *tab) window(ctx context.Context, b *cdpbrowser.Bounds) error {
	return t.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return cdpbrowser.SetWindowBounds(id, b).Do(ctx)
	}))
}

func (t *tab) OnDocumentReady(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = append(t.ready, fn)
}

func (t *tab) OnEvent(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, fn)
}

// Close destroys the tab and whatever process or container backs it
func (t *tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.ready = nil
	t.events = nil
	t.mu.Unlock()

	t.cancel()
	if t.release != nil {
		return t.release()
	}
	return nil
}
