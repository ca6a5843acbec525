// Package profile implements the update-profile-auto command: a login fill
// when the account is signed out, else a new "Home" address.
package profile

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// Updater fills the storefront's account pages
type Updater struct {
	page      automation.Page
	clock     automation.Clock
	reporter  automation.Reporter
	activator *automation.Activator
	logger    *zap.Logger
}

// New returns an Updater bound to p
func New(p automation.Page, clock automation.Clock, reporter automation.Reporter, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		page:      p,
		clock:     clock,
		reporter:  reporter,
		activator: automation.NewActivator(p, clock, logger),
		logger:    logger,
	}
}

// Run applies data to whichever page is showing
func (u *Updater) Run(ctx context.Context, data models.ProfileData) error {
	url, err := u.page.URL(ctx)
	if err != nil {
		return err
	}
	onAddress := strings.Contains(url, "address")

	pw, err := u.page.Query(ctx, automation.Query{Selector: `input[type="password"]`})
	if err != nil {
		return err
	}
	if len(pw) > 0 && data.Password != "" && !onAddress {
		return u.login(ctx, pw[0], data)
	}
	if onAddress {
		return u.address(ctx, data)
	}
	u.logger.Debug("no profile form on page", zap.String("url", url))
	return nil
}

// Resume reruns a command parked behind a login
func (u *Updater) Resume(ctx context.Context) error {
	var data models.ProfileData
	if err := automation.LoadJSON(ctx, u.page, automation.KeyProfileData, &data); err != nil {
		return err
	}
	if err := u.page.RemoveItem(ctx, automation.KeyPendingCommand); err != nil {
		return err
	}
	if err := u.clock.Sleep(ctx, time.Second); err != nil {
		return err
	}
	return u.Run(ctx, data)
}

func (u *Updater) login(ctx context.Context, pw automation.Element, data models.ProfileData) error {
	users, err := u.page.Query(ctx, automation.Query{Selector: `input[type="text"], input[type="email"]`})
	if err != nil {
		return err
	}
	if len(users) > 0 && data.Email != "" {
		u.write(ctx, users[0], data.Email, automation.EvInput)
	}
	u.write(ctx, pw, data.Password, automation.EvInput)

	buttons, err := u.page.Query(ctx, automation.Query{Selector: "button"})
	if err != nil {
		return err
	}
	for _, b := range buttons {
		if !strings.Contains(b.Text, "Login") {
			continue
		}
		u.reporter.Log("[Auto] Login needed. logging in...")
		if err := u.page.SetItem(ctx, automation.KeyPendingCommand, automation.PendingProfile); err != nil {
			return err
		}
		if err := automation.SaveJSON(ctx, u.page, automation.KeyProfileData, data); err != nil {
			return err
		}
		u.activator.Activate(ctx, b)
		return nil
	}
	return nil
}

type addressField struct {
	identifiers []string
	value       string
	textarea    bool
}

func (u *Updater) address(ctx context.Context, data models.ProfileData) error {
	if add, ok, err := automation.FindFirst(ctx, u.page, automation.Query{Selector: "div, button"},
		automation.Equals("ADD A NEW ADDRESS")); err == nil && ok {
		u.activator.Activate(ctx, add)
		if err := u.clock.Sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}

	fields := []addressField{
		{identifiers: []string{"name"}, value: data.Name},
		{identifiers: []string{"mobile", "phone"}, value: data.Mobile},
		{identifiers: []string{"pincode"}, value: data.Pincode},
		{identifiers: []string{"locality"}, value: data.City},
		{identifiers: []string{"address", "area", "street"}, value: data.Address, textarea: true},
		{identifiers: []string{"city", "district", "town"}, value: data.City},
		{identifiers: []string{"state"}, value: data.State},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := u.fill(ctx, f); err != nil {
			return err
		}
	}

	if home, ok := u.homeRadio(ctx); ok {
		u.activator.Activate(ctx, home)
	}
	if err := u.clock.Sleep(ctx, time.Second); err != nil {
		return err
	}

	if save, ok, err := automation.FindFirst(ctx, u.page, automation.Query{Selector: "button"}, automation.Equals("SAVE")); err == nil && ok {
		u.activator.Activate(ctx, save)
	}
	u.reporter.Log("[Auto] Address details submitted.")
	return nil
}

// fill writes the first input whose name, placeholder or adjacent caption
// mentions one of the identifiers
func (u *Updater) fill(ctx context.Context, f addressField) error {
	sel := "input"
	if f.textarea {
		sel = "textarea"
	}
	els, err := u.page.Query(ctx, automation.Query{Selector: sel})
	if err != nil {
		return err
	}
	for _, el := range els {
		caption := ""
		if adj, err := u.page.AdjacentText(ctx, el.Ref); err == nil {
			caption = adj.Prev + adj.ParentPrev
		}
		if mentions(f.identifiers, el.Name, el.Placeholder, caption) {
			u.write(ctx, el, f.value, automation.EvInput|automation.EvChange)
			return nil
		}
	}
	return nil
}

func mentions(identifiers []string, haystacks ...string) bool {
	for _, h := range haystacks {
		h = strings.ToLower(h)
		for _, id := range identifiers {
			if strings.Contains(h, id) {
				return true
			}
		}
	}
	return false
}

func (u *Updater) homeRadio(ctx context.Context) (automation.Element, bool) {
	radios, err := u.page.Query(ctx, automation.Query{Selector: `input[type="radio"]`})
	if err != nil {
		return automation.Element{}, false
	}
	for _, r := range radios {
		parentText := ""
		if parent, ok, err := automation.Parent(ctx, u.page, r.Ref); err == nil && ok {
			parentText = parent.Text
		}
		adj, _ := u.page.AdjacentText(ctx, r.Ref)
		if mentions([]string{"home"}, parentText, adj.Next) {
			return r, true
		}
	}
	return automation.Element{}, false
}

func (u *Updater) write(ctx context.Context, el automation.Element, value string, ev automation.FillEvents) {
	if _, err := automation.Fill(ctx, u.page, el, value, ev); err != nil {
		u.logger.Debug("fill failed", zap.String("name", el.Name), zap.Error(err))
	}
}
