package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/browser"
	"github.com/shehryarbajwa/hypercart/internal/metrics"
	"github.com/shehryarbajwa/hypercart/internal/partition"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

var (
	// ErrNotFound is returned for operations on unknown session ids
	ErrNotFound = errors.New("session not found")
	// ErrLimitReached is returned when max_sessions sessions are open
	ErrLimitReached = errors.New("session limit reached")
)

// Layout constants for attached sessions, in host window pixels
const (
	SidebarWidth     = 288
	TitlebarHeight   = 48
	BackgroundWidth  = 1366
	BackgroundHeight = 768
)

// Runner is the automation engine bound to one session
type Runner interface {
	Run(command models.Command, data json.RawMessage) error
	DocumentReady()
	Stop()
}

// RunnerFactory builds the runner for a new session
type RunnerFactory func(sessionID string, p automation.Page) Runner

// Partitions resolves a session id to its profile directory
type Partitions interface {
	Dir(id string) (string, error)
}

// Broadcaster receives session-list snapshots and log lines
type Broadcaster interface {
	Sessions(list []models.SessionInfo)
	Log(sessionID, msg string)
}

// Options configures a Manager
type Options struct {
	Launcher    browser.Launcher
	Partitions  Partitions
	Broadcaster Broadcaster
	NewRunner   RunnerFactory
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	// MaxSessions caps open sessions; 0 means unlimited
	MaxSessions int
	HostWidth   int
	HostHeight  int
	LoadTimeout time.Duration
}

// Session is one account's isolated browsing context
type Session struct {
	ID        string
	URL       string
	Proxy     string
	Active    bool
	ContextID string

	browser browser.Browser
	runner  Runner
}

// Info is the externally visible state of s
func (s *Session) Info() models.SessionInfo {
	var url string
	if s.browser != nil {
		url = s.browser.URL()
	}
	if url == "" {
		url = s.URL
	}
	return models.SessionInfo{ID: s.ID, URL: url, Active: s.Active}
}

// Manager owns every session. Operations are serialized; at most one
// session is active at a time.
//
// ops serializes orchestrator operations and is held across browser calls.
// mu guards session state only and is never held across a browser call,
// since browsers report events on the goroutine that answers their
// commands.
type Manager struct {
	ops      sync.Mutex
	mu       sync.Mutex
	sessions map[string]*Session
	contexts map[string]string // context id -> session id

	launcher   browser.Launcher
	partitions Partitions
	bus        Broadcaster
	newRunner  RunnerFactory
	slots      *semaphore.Weighted
	metrics    *metrics.Metrics
	logger     *zap.Logger

	hostWidth   int
	hostHeight  int
	loadTimeout time.Duration
}

// NewManager creates a session manager
func NewManager(opts Options) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		contexts:    make(map[string]string),
		launcher:    opts.Launcher,
		partitions:  opts.Partitions,
		bus:         opts.Broadcaster,
		newRunner:   opts.NewRunner,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		hostWidth:   opts.HostWidth,
		hostHeight:  opts.HostHeight,
		loadTimeout: opts.LoadTimeout,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if opts.MaxSessions > 0 {
		m.slots = semaphore.NewWeighted(int64(opts.MaxSessions))
	}
	if m.hostWidth <= 0 {
		m.hostWidth = 1600
	}
	if m.hostHeight <= 0 {
		m.hostHeight = 900
	}
	return m
}

// CreateSession opens a session for req.ID, or re-shows (or backgrounds) the
// live one. A new session navigates to req.URL before returning; a load
// failure is logged and the session stays open.
func (m *Manager) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*Session, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("id is required")
	}

	m.ops.Lock()
	m.mu.Lock()
	s, ok := m.sessions[req.ID]
	m.mu.Unlock()
	if ok {
		var err error
		if req.Background {
			err = m.detach(ctx, s)
		} else {
			err = m.attach(ctx, s)
		}
		m.broadcast()
		m.ops.Unlock()
		return s, err
	}

	s, err := m.launch(ctx, req)
	if err != nil {
		m.ops.Unlock()
		return nil, err
	}
	m.broadcast()
	m.ops.Unlock()

	if req.URL != "" {
		if err := s.browser.Navigate(ctx, req.URL); err != nil {
			m.logger.Warn("❌ Failed to load URL", zap.String("session_id", s.ID), zap.String("url", req.URL), zap.Error(err))
			m.log(s.ID, fmt.Sprintf("Failed to load %s: %v", req.URL, err))
		}
	}
	return s, nil
}

// launch starts a browser for req and registers the session. Caller holds ops.
func (m *Manager) launch(ctx context.Context, req models.CreateSessionRequest) (*Session, error) {
	if m.slots != nil && !m.slots.TryAcquire(1) {
		return nil, ErrLimitReached
	}

	dir, err := m.partitions.Dir(req.ID)
	if err != nil {
		m.releaseSlot()
		return nil, fmt.Errorf("failed to prepare partition: %w", err)
	}

	// Every launch gets a fresh context id so handles from a closed
	// session never resolve to a new one
	contextID := fmt.Sprintf("%s/%s", partition.Key(req.ID), uuid.New().String()[:8])
	m.mu.Lock()
	bounds := m.backgroundBounds()
	if !req.Background {
		bounds = m.foregroundBounds()
	}
	m.mu.Unlock()

	b, err := m.launcher.Launch(ctx, browser.LaunchOptions{
		ContextKey:  contextID,
		UserDataDir: dir,
		Proxy:       req.Proxy,
		Bounds:      bounds,
		LoadTimeout: m.loadTimeout,
	})
	if err != nil {
		m.releaseSlot()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := &Session{
		ID:        req.ID,
		URL:       req.URL,
		Proxy:     req.Proxy,
		ContextID: b.ContextID(),
		browser:   b,
	}
	if m.newRunner != nil {
		s.runner = m.newRunner(s.ID, b.Page())
	}

	b.OnEvent(m.onBrowserEvent)
	b.OnDocumentReady(func() {
		m.broadcast()
		if s.runner != nil {
			s.runner.DocumentReady()
		}
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.contexts[s.ContextID] = s.ID
	m.metrics.SetLiveSessions(len(m.sessions))
	m.mu.Unlock()
	m.logger.Info("✓ Session created",
		zap.String("session_id", s.ID),
		zap.String("context_id", s.ContextID),
		zap.Bool("background", req.Background))

	if req.Background {
		if err := b.SetVisible(ctx, false); err != nil {
			m.logger.Debug("hide failed", zap.String("session_id", s.ID), zap.Error(err))
		}
		return s, nil
	}
	if err := m.attach(ctx, s); err != nil {
		m.logger.Debug("show failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return s, nil
}

// onBrowserEvent attributes a context's problem report to its account
func (m *Manager) onBrowserEvent(e browser.Event) {
	id, ok := m.GetAccountIDByContextID(e.ContextID)
	if !ok {
		return
	}
	switch e.Kind {
	case browser.EventLoadFailed, browser.EventCrashed:
		m.metrics.IncLoadFailure(string(e.Kind))
		m.logger.Warn("❌ Browser failure", zap.String("session_id", id), zap.String("kind", string(e.Kind)), zap.String("message", e.Message))
		m.log(id, fmt.Sprintf("Browser %s: %s", e.Kind, e.Message))
	default:
		m.logger.Debug("page error", zap.String("session_id", id), zap.String("kind", string(e.Kind)), zap.String("message", e.Message))
	}
}

// ShowSession attaches id and detaches every other session
func (m *Manager) ShowSession(ctx context.Context, id string) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	s, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	err := m.attach(ctx, s)
	m.broadcast()
	return err
}

// attach marks s active and every other session inactive, then lays out the
// browsers. Caller holds ops.
func (m *Manager) attach(ctx context.Context, s *Session) error {
	m.mu.Lock()
	var others []*Session
	for _, other := range m.sessions {
		if other != s && other.Active {
			other.Active = false
			others = append(others, other)
		}
	}
	s.Active = true
	fg, bg := m.foregroundBounds(), m.backgroundBounds()
	m.mu.Unlock()

	for _, other := range others {
		if err := hide(ctx, other.browser, bg); err != nil {
			m.logger.Debug("detach failed", zap.String("session_id", other.ID), zap.Error(err))
		}
	}
	if err := s.browser.SetVisible(ctx, true); err != nil {
		return err
	}
	return s.browser.SetBounds(ctx, fg)
}

// detach marks s inactive and moves its browser offscreen. Caller holds ops.
func (m *Manager) detach(ctx context.Context, s *Session) error {
	m.mu.Lock()
	s.Active = false
	bg := m.backgroundBounds()
	m.mu.Unlock()
	return hide(ctx, s.browser, bg)
}

func hide(ctx context.Context, b browser.Browser, bounds browser.Bounds) error {
	if err := b.SetVisible(ctx, false); err != nil {
		return err
	}
	return b.SetBounds(ctx, bounds)
}

// HideAllSessions detaches every session
func (m *Manager) HideAllSessions(ctx context.Context) {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.Active = false
		all = append(all, s)
	}
	bg := m.backgroundBounds()
	m.mu.Unlock()

	for _, s := range all {
		if err := hide(ctx, s.browser, bg); err != nil {
			m.logger.Debug("detach failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	m.broadcast()
}

// CloseSession destroys id's context. Unknown ids are a no-op.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, id)
	delete(m.contexts, s.ContextID)
	m.metrics.SetLiveSessions(len(m.sessions))
	m.mu.Unlock()
	m.broadcast()

	if s.runner != nil {
		s.runner.Stop()
	}
	err := s.browser.Close()
	m.releaseSlot()
	if err != nil {
		m.logger.Warn("⚠️ Failed to close browser", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("failed to close session %s: %w", id, err)
	}
	m.logger.Info("🔌 Session closed", zap.String("session_id", id))
	return nil
}

// CloseAll closes every session concurrently
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error { return m.CloseSession(id) })
	}
	return g.Wait()
}

// GetAccountIDByContextID maps a browsing context back to its session id
func (m *Manager) GetAccountIDByContextID(contextID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.contexts[contextID]
	return id, ok
}

// Get returns a live session
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Runner returns id's automation runner
func (m *Manager) Runner(id string) (Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.runner == nil {
		return nil, false
	}
	return s.runner, true
}

// ConnectURL returns the DevTools endpoint of id's browser, if remote
func (m *Manager) ConnectURL(id string) (string, error) {
	s, ok := m.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	return s.browser.ConnectURL(), nil
}

// List returns every session sorted by id
func (m *Manager) List() []models.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() []models.SessionInfo {
	out := make([]models.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resize records the host window size and re-lays out the active session
func (m *Manager) Resize(ctx context.Context, width, height int) error {
	if width <= SidebarWidth || height <= TitlebarHeight {
		return fmt.Errorf("host size %dx%d too small", width, height)
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	m.hostWidth, m.hostHeight = width, height
	var active []*Session
	for _, s := range m.sessions {
		if s.Active {
			active = append(active, s)
		}
	}
	fg := m.foregroundBounds()
	m.mu.Unlock()

	for _, s := range active {
		if err := s.browser.SetBounds(ctx, fg); err != nil {
			m.logger.Debug("resize failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	m.broadcast()
	return nil
}

// Reload reloads id's page. Load failures are logged, not returned.
func (m *Manager) Reload(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.browser.Reload(ctx); err != nil {
		m.logger.Warn("❌ Reload failed", zap.String("session_id", id), zap.Error(err))
		m.log(id, fmt.Sprintf("Reload failed: %v", err))
	}
	return nil
}

// GoBack navigates id's page back one entry
func (m *Manager) GoBack(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.browser.GoBack(ctx); err != nil {
		m.logger.Warn("❌ Back navigation failed", zap.String("session_id", id), zap.Error(err))
		m.log(id, fmt.Sprintf("Back navigation failed: %v", err))
	}
	return nil
}

// Bounds returns the layout an attached session currently gets
func (m *Manager) Bounds() browser.Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.foregroundBounds()
}

func (m *Manager) foregroundBounds() browser.Bounds {
	return browser.Bounds{
		X:      SidebarWidth,
		Y:      TitlebarHeight,
		Width:  m.hostWidth - SidebarWidth,
		Height: m.hostHeight - TitlebarHeight,
	}
}

func (m *Manager) backgroundBounds() browser.Bounds {
	return browser.Bounds{Width: BackgroundWidth, Height: BackgroundHeight}
}

func (m *Manager) broadcast() {
	if m.bus != nil {
		m.bus.Sessions(m.List())
	}
}

func (m *Manager) log(id, msg string) {
	if m.bus != nil {
		m.bus.Log(id, msg)
	}
}

func (m *Manager) releaseSlot() {
	if m.slots != nil {
		m.slots.Release(1)
	}
}
