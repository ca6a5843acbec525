package netsafe

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

var (
	cardNumberRe = regexp.MustCompile(`\b\d{4}\s*\d{4}\s*\d{4}\s*\d{4}\b`)
	cvvRe        = regexp.MustCompile(`(?i)(?:CVV2|CVV|C\s*V\s*V)(?:[^0-9]{0,20})(\d{3})`)
	expiryRe     = regexp.MustCompile(`(?i)(?:Expiry|Exp|Valid)(?:[^0-9]{0,20})(\d{2}/\d{2})`)
)

// ParseCard extracts the card shown in text. ok is false unless a 16-digit
// number appears next to a CVV label.
func ParseCard(text string) (models.Card, bool) {
	num := cardNumberRe.FindString(text)
	if num == "" || !(strings.Contains(text, "CVV") || strings.Contains(text, "C V V")) {
		return models.Card{}, false
	}
	card := models.Card{Number: strings.Join(strings.Fields(num), ""), CVV: "???", Expiry: "??/??"}
	if m := cvvRe.FindStringSubmatch(text); m != nil {
		card.CVV = m[1]
	}
	if m := expiryRe.FindStringSubmatch(text); m != nil {
		card.Expiry = m[1]
	}
	return card, true
}

// capture saves a newly displayed card and moves on to the next one. It
// reports whether the job is done.
func (j *Job) capture(ctx context.Context, generated, total int) bool {
	text, err := j.page.Text(ctx)
	if err != nil {
		return false
	}
	card, ok := ParseCard(text)
	if !ok || j.saved[card.Number] {
		return false
	}
	j.saved[card.Number] = true
	card.Amount = j.cfg.Amount

	j.reporter.Log(fmt.Sprintf("[Netsafe] Card Generated! (%d/%d)", generated+1, total))
	if j.Copy != nil {
		if err := j.Copy(card.Number + "|" + card.Expiry + "|" + card.CVV); err != nil {
			j.logger.Debug("clipboard unavailable", zap.Error(err))
		}
	}

	region := j.cardRegion(ctx, card.Number)
	if err := j.sink.SaveCard(ctx, &card, region); err != nil {
		j.logger.Error("failed to save card", zap.String("last4", card.Last4()), zap.Error(err))
	}

	generated++
	if err := automation.SaveInt(ctx, j.page, automation.KeyGeneratedCount, generated); err != nil {
		j.logger.Warn("failed to persist generated count", zap.Error(err))
	}
	j.reporter.Progress(generated, total, "Card Generated")

	if generated >= total {
		j.reporter.Log("[Netsafe] All Cards Generated. Job Done.")
		j.finish(ctx, generated, total)
		return true
	}

	j.reporter.Log("[Netsafe] Waiting before next card...")
	if j.clock.Sleep(ctx, nextCardDelay) != nil {
		return false
	}
	if back, ok, err := automation.FindFirst(ctx, j.page,
		automation.Query{Selector: "a, button, input", Depth: automation.MaxFrameDepth}, isNextCard); err == nil && ok {
		j.reporter.Log("[Netsafe] Found Back button, clicking...")
		j.activator.Activate(ctx, back)
		return false
	}
	j.reporter.Log("[Netsafe] Back button not found, forcing reload...")
	if err := j.page.Navigate(ctx, EntryURL); err != nil {
		j.logger.Warn("reload to entry failed", zap.Error(err))
	}
	return false
}

// isNextCard matches back and generate-another controls, excluding the
// portal's IVR password, login and profile links
func isNextCard(label string) bool {
	t := strings.ToLower(label)
	if strings.Contains(t, "log") || strings.Contains(t, "profile") {
		return false
	}
	return strings.Contains(t, "back") || strings.Contains(t, "create another") ||
		(strings.Contains(t, "generate") && !strings.Contains(t, "ivr"))
}

// Card visual bounds
const (
	minCardWidth  = 250
	maxCardWidth  = 800
	minCardAspect = 1.3
	maxCardAspect = 2.0
	cardAncestors = 8
)

// cardRegion finds the on-screen card around number: an ancestor with card
// proportions, else a padded box around the number itself
func (j *Job) cardRegion(ctx context.Context, number string) *models.Region {
	els, err := j.page.Query(ctx, automation.Query{Selector: "body *"})
	if err != nil {
		return nil
	}
	target, ok := textHolder(els, number)
	if !ok {
		return nil
	}
	chain, err := j.page.Ancestors(ctx, target.Ref, cardAncestors)
	if err != nil {
		return nil
	}
	if r, ok := CardShaped(chain); ok {
		return &models.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	r := target.Rect
	return &models.Region{X: max(0, r.X-40), Y: max(0, r.Y-80), Width: 400, Height: 250}
}

// textHolder prefers a leaf element whose text contains number
func textHolder(els []automation.Element, number string) (automation.Element, bool) {
	contains := func(el automation.Element) bool {
		return strings.Contains(strings.Join(strings.Fields(el.Text), ""), number)
	}
	for _, el := range els {
		if el.Children == 0 && contains(el) {
			return el, true
		}
	}
	for _, el := range els {
		if contains(el) {
			return el, true
		}
	}
	return automation.Element{}, false
}

// CardShaped returns the first rect in chain with card proportions
func CardShaped(chain []automation.Element) (automation.Rect, bool) {
	for _, el := range chain {
		r := el.Rect
		if r.Height <= 0 {
			continue
		}
		aspect := r.Width / r.Height
		if r.Width > minCardWidth && r.Width < maxCardWidth && aspect > minCardAspect && aspect < maxCardAspect {
			return r, true
		}
	}
	return automation.Rect{}, false
}

