// Package cart implements the empty-cart and add-to-cart commands
package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

const (
	// MaxRemovals bounds the empty-cart rounds
	MaxRemovals = 15
	// AddAttempts bounds the add-to-cart rounds
	AddAttempts = 3

	goToCartPolls = 12
	pollInterval  = 250 * time.Millisecond
	maxButtonSize = 100
)

// confirm dialogs of the cart page
const (
	confirmScope    = "div._3dsJAO"
	confirmFallback = "div._3dsJAO._24d-qY.FhkMJZ"
)

// Cart runs cart commands inside one session
type Cart struct {
	page      automation.Page
	clock     automation.Clock
	reporter  automation.Reporter
	activator *automation.Activator
	logger    *zap.Logger
}

// New returns a Cart bound to p
func New(p automation.Page, clock automation.Clock, reporter automation.Reporter, logger *zap.Logger) *Cart {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cart{
		page:      p,
		clock:     clock,
		reporter:  reporter,
		activator: automation.NewActivator(p, clock, logger),
		logger:    logger,
	}
}

// Empty removes cart items one at a time, confirming each removal dialog
func (c *Cart) Empty(ctx context.Context) error {
	url, away, err := automation.Elsewhere(ctx, c.page, "viewcart")
	if err != nil {
		return err
	}
	if away {
		if err := c.page.Navigate(ctx, automation.BaseURL(url)+"/viewcart"); err != nil {
			return err
		}
	}
	if err := c.clock.Sleep(ctx, 2*time.Second); err != nil {
		return err
	}

	removed := 0
	for i := 0; i < MaxRemovals; i++ {
		btn, ok, err := automation.FindFirst(ctx, c.page, automation.Query{Selector: "div, span, button"}, automation.Equals("remove"))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		c.activator.Activate(ctx, btn)
		if err := c.clock.Sleep(ctx, time.Second); err != nil {
			return err
		}

		confirm, ok := c.confirmControl(ctx, btn.Ref)
		if !ok {
			continue
		}
		c.activator.Activate(ctx, confirm)
		if err := c.clock.Sleep(ctx, 2*time.Second); err != nil {
			return err
		}
		removed++
	}

	if removed > 0 {
		c.reporter.Log(fmt.Sprintf("[Auto] Emptied %d items", removed))
	}
	return nil
}

// confirmControl finds the dialog's own "remove", distinct from the one
// that opened it
func (c *Cart) confirmControl(ctx context.Context, opener string) (automation.Element, bool) {
	scoped := strings.Join([]string{confirmScope, confirmScope + " div", confirmScope + " button", confirmScope + " span"}, ", ")
	els, err := c.page.Query(ctx, automation.Query{Selector: scoped})
	if err == nil {
		match := automation.Equals("remove")
		for _, el := range els {
			if el.Ref != opener && match(el.Label()) {
				return el, true
			}
		}
	}
	el, ok, err := automation.First(ctx, c.page, "", confirmFallback)
	if err != nil {
		return automation.Element{}, false
	}
	return el, ok
}

// Add puts the product at data.URL in the cart and opens the cart page
func (c *Cart) Add(ctx context.Context, data models.AddToCartData) error {
	if data.URL != "" {
		_, away, err := automation.Elsewhere(ctx, c.page, data.URL)
		if err != nil {
			return err
		}
		if away {
			if err := c.page.Navigate(ctx, data.URL); err != nil {
				return err
			}
		}
	}
	if err := c.clock.Sleep(ctx, 3*time.Second); err != nil {
		return err
	}

	success := false
	for attempt := 0; attempt < AddAttempts && !success; attempt++ {
		if c.goToCartVisible(ctx, "button, div, span, ul li") {
			success = true
			break
		}

		candidates, err := c.addButtons(ctx)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			continue
		}

		c.reporter.Log("[Auto] Adding to Cart...")
		c.activator.Activate(ctx, candidates[0])
		for k := 0; k < goToCartPolls; k++ {
			if err := c.clock.Sleep(ctx, pollInterval); err != nil {
				return err
			}
			if c.goToCartVisible(ctx, "button, div, span") {
				success = true
				break
			}
		}
		if success {
			break
		}

		if skip, ok, _ := automation.FindFirst(ctx, c.page, automation.Query{Selector: "button, div, span, ul li"},
			automation.AnyOf(automation.Equals("SKIP"), automation.Equals("CONTINUE"), automation.Equals("SAVE & CONTINUE"))); ok {
			c.activator.Activate(ctx, skip)
		}
	}

	url, err := c.page.URL(ctx)
	if err != nil {
		return err
	}
	if success {
		c.reporter.Log("[Auto] Successfully Added.")
	} else if text, err := c.page.Text(ctx); err == nil && !strings.Contains(text, "GO TO CART") {
		c.reporter.Log("[Auto] Retry/Check needed.")
	}
	return c.page.Navigate(ctx, automation.BaseURL(url)+"/viewcart")
}

func (c *Cart) goToCartVisible(ctx context.Context, selector string) bool {
	_, ok, err := automation.FindFirst(ctx, c.page, automation.Query{Selector: selector}, automation.Contains("GO TO CART"))
	return err == nil && ok
}

// addButtons returns the plausible add-to-cart controls, topmost first.
// Tall matches are containers rather than buttons.
func (c *Cart) addButtons(ctx context.Context) ([]automation.Element, error) {
	els, err := automation.FindAll(ctx, c.page, automation.Query{Selector: "button, div, span, ul li"}, automation.Contains("ADD TO CART"))
	if err != nil {
		return nil, err
	}
	var out []automation.Element
	for _, el := range els {
		if el.Is("BUTTON") || strings.Contains(el.Class, "_2KpZ6l") || (el.Is("LI") && el.Children < 3) {
			out = append(out, el)
		}
	}
	automation.SortByTop(out)
	kept := out[:0]
	for _, el := range out {
		if el.Rect.Height < maxButtonSize {
			kept = append(kept, el)
		}
	}
	return kept, nil
}
