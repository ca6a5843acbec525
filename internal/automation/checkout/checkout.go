// Package checkout drives a cart through the storefront's checkout pages by
// polling for recognizable phases and acting on the highest-priority one.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// EntryURL is the checkout route forced when "place order" stops responding
const EntryURL = "https://www.flipkart.com/checkout/init?view=FLIPKART&loginFlow=false"

const (
	// MaxTicks is the loop's iteration ceiling
	MaxTicks = 30
	// PlaceOrderRetries is how many place-order rounds run before forcing navigation
	PlaceOrderRetries = 5

	actionPause = 4 * time.Second
	forcedPause = 6 * time.Second
	idlePause   = time.Second
	clickGap    = 200 * time.Millisecond
)

const paymentHeader = "Credit / Debit / ATM Card"

// CardSource hands out unused cards, marking them used
type CardSource interface {
	FetchOneUnused(ctx context.Context, amount string) (*models.Card, error)
}

// Progress is per-job state that stops one tick repeating another's side effects
type Progress struct {
	PlaceOrderAttempts int
	PaymentDetected    bool
	PaymentExpanded    bool
	CardFetching       bool
	PaymentFilled      bool
}

// Machine is the checkout state machine for one session
type Machine struct {
	page      automation.Page
	clock     automation.Clock
	cards     CardSource
	reporter  automation.Reporter
	activator *automation.Activator
	logger    *zap.Logger

	mu       sync.Mutex
	progress Progress
}

// New returns a machine with fresh progress
func New(p automation.Page, clock automation.Clock, cards CardSource, reporter automation.Reporter, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		page:      p,
		clock:     clock,
		cards:     cards,
		reporter:  reporter,
		activator: automation.NewActivator(p, clock, logger),
		logger:    logger,
	}
}

// Progress returns a copy of the current progress
func (m *Machine) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Start is the camp-checkout entry point. Off the cart and checkout pages it
// parks a pending marker and navigates to the cart; the next document load
// resumes through Resume.
func (m *Machine) Start(ctx context.Context) error {
	btn, found, err := automation.FindFirst(ctx, m.page, automation.Query{Selector: "button, span, div"},
		automation.AnyOf(automation.Contains("PLACE ORDER"), automation.Contains("DELIVER HERE"), automation.Contains("CONTINUE")))
	if err != nil {
		return err
	}
	if found {
		m.logger.Debug("checkout control visible", zap.String("label", btn.Label()))
		return m.Run(ctx)
	}

	url, away, err := automation.Elsewhere(ctx, m.page, "viewcart", "checkout")
	if err != nil {
		return err
	}
	if away {
		m.reporter.Log("[Auto] Navigating to Cart...")
		if err := m.page.SetItem(ctx, automation.KeyPendingCommand, automation.PendingCheckout); err != nil {
			return err
		}
		return m.page.Navigate(ctx, automation.BaseURL(url)+"/viewcart")
	}
	return m.Run(ctx)
}

// Resume continues a checkout parked by Start
func (m *Machine) Resume(ctx context.Context) error {
	if err := m.page.RemoveItem(ctx, automation.KeyPendingCommand); err != nil {
		return err
	}
	if err := m.clock.Sleep(ctx, 3*time.Second); err != nil {
		return err
	}
	m.reporter.Log("[Auto] Resuming Checkout (Reloaded)...")
	return m.Run(ctx)
}

// Run polls until MaxTicks ticks have run or ctx ends
func (m *Machine) Run(ctx context.Context) error {
	m.reporter.Log("[Auto] Checkout Loop Started")
	return automation.Loop(ctx, m.clock, MaxTicks, m.Tick)
}

// Tick evaluates the phase detectors in priority order and acts on the first
// match. It never stops the loop on its own.
func (m *Machine) Tick(ctx context.Context) (time.Duration, bool) {
	m.notePaymentPage(ctx)

	controls := automation.Query{Selector: "button, span, div"}

	if el, ok, _ := automation.FindFirst(ctx, m.page, controls, automation.Contains("ACCEPT & CONTINUE")); ok {
		m.reporter.Log("[Auto] > Accept & Continue")
		m.activator.Activate(ctx, el)
		return actionPause, false
	}

	if el, ok, _ := automation.FindFirst(ctx, m.page, automation.Query{Selector: "button"}, automation.Equals("CONTINUE")); ok {
		m.reporter.Log("[Auto] > Continue")
		m.activator.Activate(ctx, el)
		return actionPause, false
	}

	if els, _ := automation.FindAll(ctx, m.page, controls, automation.Contains("PLACE ORDER")); len(els) > 0 {
		return m.placeOrder(ctx, els), false
	}

	if el, ok, _ := automation.FindFirst(ctx, m.page, controls, automation.Contains("DELIVER HERE")); ok {
		m.reporter.Log("[Auto] > Deliver Here")
		m.activator.Activate(ctx, el)
		return actionPause, false
	}

	m.payment(ctx)
	return idlePause, false
}

func (m *Machine) notePaymentPage(ctx context.Context) {
	text, err := m.page.Text(ctx)
	if err != nil || !strings.Contains(text, "Complete Payment") {
		return
	}
	m.mu.Lock()
	first := !m.progress.PaymentDetected && !m.progress.PaymentFilled
	m.progress.PaymentDetected = true
	m.mu.Unlock()
	if first {
		m.reporter.Log("[Auto] Payment Page Detected...")
	}
}

func (m *Machine) placeOrder(ctx context.Context, els []automation.Element) time.Duration {
	m.mu.Lock()
	m.progress.PlaceOrderAttempts++
	attempt := m.progress.PlaceOrderAttempts
	m.mu.Unlock()

	m.reporter.Log(fmt.Sprintf("[Auto] > Place Order (Attempt %d) - Found %d btns", attempt, len(els)))

	if attempt > PlaceOrderRetries {
		m.reporter.Log("[Auto] Button unresponsive. Forcing Navigation...")
		if url, away, err := automation.Elsewhere(ctx, m.page, "checkout/init"); err == nil && away {
			m.logger.Info("forcing checkout navigation", zap.String("from", url), zap.Int("attempt", attempt))
			if err := m.page.Navigate(ctx, EntryURL); err != nil {
				m.logger.Warn("forced navigation failed", zap.Error(err))
			}
		}
		return forcedPause
	}

	for _, el := range els {
		m.activator.Activate(ctx, el)
		if m.clock.Sleep(ctx, clickGap) != nil {
			break
		}
	}
	return actionPause
}

// payment handles the card section. It returns early on every unmet
// precondition; the next tick retries.
func (m *Machine) payment(ctx context.Context) {
	m.mu.Lock()
	filled := m.progress.PaymentFilled
	m.mu.Unlock()
	if filled {
		return
	}

	header, ok := m.paymentHeader(ctx)
	if !ok {
		return
	}
	target, ok := m.expandTarget(ctx, header)
	if !ok {
		return
	}

	m.mu.Lock()
	expand := !m.progress.PaymentExpanded
	m.progress.PaymentExpanded = true
	m.mu.Unlock()
	if expand {
		if err := m.page.NativeClick(ctx, target.Ref); err != nil {
			m.logger.Debug("payment expand click failed", zap.Error(err))
		}
		if m.clock.Sleep(ctx, 2*time.Second) != nil {
			return
		}
	}

	inputs, err := m.page.Query(ctx, automation.Query{Selector: `input[name="cardNumber"]`})
	if err != nil || len(inputs) == 0 || !inputs[0].Visible || inputs[0].Value != "" {
		return
	}
	cardInput := inputs[0]

	m.mu.Lock()
	if m.progress.CardFetching {
		m.mu.Unlock()
		return
	}
	m.progress.CardFetching = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.progress.CardFetching = false
		m.mu.Unlock()
	}()

	m.reporter.Log("[Auto] > Payment Page Detected. Fetching VCC...")
	card, err := m.cards.FetchOneUnused(ctx, "")
	if err != nil {
		m.logger.Warn("card fetch failed", zap.Error(err))
		return
	}
	if card == nil {
		m.reporter.Log("[Auto] > No Unused VCC available!")
		return
	}

	m.reporter.Log("[Auto] > Filling Card " + card.Last4())
	m.fill(ctx, cardInput, card.Number)
	if m.clock.Sleep(ctx, 500*time.Millisecond) != nil {
		return
	}

	all, err := m.page.Query(ctx, automation.Query{Selector: "input"})
	if err != nil {
		return
	}
	month, year, cvv := byPlaceholder(all, "MM"), byPlaceholder(all, "YY"), byPlaceholder(all, "CVV")
	if mm, yy, ok := strings.Cut(card.Expiry, "/"); ok {
		if month != nil {
			m.fill(ctx, *month, mm)
		}
		if year != nil {
			m.fill(ctx, *year, yy)
		}
	}
	if cvv != nil {
		m.fill(ctx, *cvv, card.CVV)
	}

	m.reporter.Log("[Auto] > Card Details Filled.")
	m.mu.Lock()
	m.progress.PaymentFilled = true
	m.mu.Unlock()

	if m.clock.Sleep(ctx, 1500*time.Millisecond) != nil {
		return
	}
	if pay, ok, _ := automation.FindFirst(ctx, m.page, automation.Query{Selector: "button"}, automation.Contains("PAY")); ok {
		m.reporter.Log("[Auto] Clicking Pay...")
		m.activator.Activate(ctx, pay)
	}
}

func (m *Machine) paymentHeader(ctx context.Context) (automation.Element, bool) {
	els, err := m.page.Query(ctx, automation.Query{Selector: "div, span, label"})
	if err != nil {
		return automation.Element{}, false
	}
	for _, el := range els {
		if strings.Contains(el.Text, paymentHeader) {
			return el, true
		}
	}
	return automation.Element{}, false
}

// expandTarget is the header's closest label, else its parent
func (m *Machine) expandTarget(ctx context.Context, header automation.Element) (automation.Element, bool) {
	chain, err := m.page.Ancestors(ctx, header.Ref, 32)
	if err != nil {
		return automation.Element{}, false
	}
	for _, el := range chain {
		if el.Is("LABEL") {
			return el, true
		}
	}
	if len(chain) > 1 {
		return chain[1], true
	}
	return automation.Element{}, false
}

func (m *Machine) fill(ctx context.Context, el automation.Element, value string) {
	if _, err := automation.Fill(ctx, m.page, el, value, automation.BasicEvents); err != nil {
		m.logger.Debug("fill failed", zap.String("name", el.Name), zap.Error(err))
	}
}

func byPlaceholder(els []automation.Element, fragment string) *automation.Element {
	for i := range els {
		if els[i].Placeholder != "" && strings.Contains(els[i].Placeholder, fragment) {
			return &els[i]
		}
	}
	return nil
}
