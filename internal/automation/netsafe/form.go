package netsafe

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

const formMarker = "Beneficiary Name"

var (
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[@#$%]`)
)

type field struct {
	selectors []string
	label     string
	value     string
	password  bool
	mobile    bool
}

func (j *Job) fields() []field {
	or := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	c := j.cfg
	cardPassword := or(c.CardPassword, c.Password)
	return []field{
		{selectors: []string{`input[name="txtCardholderName"]`}, label: "Cardholder", value: c.CardholderName},
		{selectors: []string{`input[name="txtBeneficiaryName"]`}, label: "Beneficiary Name", value: c.BeneficiaryName},
		{selectors: []string{`input[name="txtBeneficiaryEmail"]`}, label: "Beneficiary Email", value: c.Email},
		{selectors: []string{`input[name="txtReenterEmail"]`}, label: "Confirm Beneficiary Email", value: or(c.ConfirmEmail, c.Email)},
		{selectors: []string{`input[name="txtBeneficiaryMobile"]`, `input[name="txtMobileNo"]`}, label: "Beneficiary Mobile", value: c.Mobile, mobile: true},
		{selectors: []string{`input[name="txtReenterBeneficiaryMobile"]`, `input[name="txtReenterMobileNo"]`}, label: "Confirm Beneficiary Mobile", value: or(c.ConfirmMobile, c.Mobile), mobile: true},
		{selectors: []string{`input[name="txtMessage"]`, `textarea[name="txtMessage"]`}, label: "Message", value: or(c.Message, "Gift")},
		{selectors: []string{`input[name="txtPassword"]`}, label: "Password", value: cardPassword, password: true},
		{selectors: []string{`input[name="txtReenterPassword"]`}, label: "Confirm Password", value: cardPassword, password: true},
	}
}

// formDoc returns the key of the first reachable document showing the
// beneficiary form
func (j *Job) formDoc(ctx context.Context) (string, bool) {
	docs, err := j.page.Documents(ctx, automation.MaxFrameDepth)
	if err != nil {
		return "", false
	}
	for _, d := range docs {
		if d.Accessible && strings.Contains(d.Text, formMarker) {
			return d.Key, true
		}
	}
	return "", false
}

// beneficiary fills the form and keeps overwriting it every refillInterval
// until it is sent or leaves the page. The portal's autofill repopulates
// fields asynchronously, so a single fill does not hold.
func (j *Job) beneficiary(ctx context.Context, generated, total int) {
	if j.formSubmitted {
		return
	}
	doc, ok := j.formDoc(ctx)
	if !ok {
		return
	}
	if !j.formLogged {
		j.formLogged = true
		j.reporter.Log("[Netsafe] Beneficiary Form Detected. Filling...")
	}
	j.reporter.Progress(generated, total, "Filling Form...")

	j.refill(ctx, doc)
	j.reporter.Log("[Netsafe] Form Filled. Submitting in 3s...")
	for waited := time.Duration(0); ; {
		if j.clock.Sleep(ctx, refillInterval) != nil {
			return
		}
		waited += refillInterval
		if doc, ok = j.formDoc(ctx); !ok {
			return
		}
		j.refill(ctx, doc)
		if waited < submitDelay {
			continue
		}
		send, ok := j.sendControl(ctx, doc)
		if !ok {
			continue
		}
		j.formSubmitted = true
		j.reporter.Log("[Netsafe] Clicking Send...")
		j.activator.Activate(ctx, send)
		return
	}
}

// refill runs one overwrite pass over every form field
func (j *Job) refill(ctx context.Context, doc string) {
	for _, f := range j.fields() {
		if f.value == "" {
			continue
		}
		el, ok := j.locate(ctx, doc, f)
		if !ok {
			continue
		}
		if f.mobile {
			el = j.skipPrefixBox(ctx, el)
		} else if !f.password && !strings.Contains(f.label, "Email") && Suspicious(el.Value) {
			if err := j.page.SetValue(ctx, el.Ref, "", automation.FormEvents); err != nil {
				j.logger.Debug("clear failed", zap.String("field", f.label), zap.Error(err))
				continue
			}
			el.Value = ""
		}
		j.write(ctx, el, f.value, automation.FormEvents)
	}
}

func (j *Job) locate(ctx context.Context, doc string, f field) (automation.Element, bool) {
	for _, sel := range f.selectors {
		els, err := j.page.Query(ctx, automation.Query{Selector: sel, Doc: doc, Depth: automation.MaxFrameDepth})
		if err == nil && len(els) > 0 {
			return els[0], true
		}
	}
	el, ok, err := j.page.LabelledInput(ctx, doc, f.label)
	if err != nil {
		return automation.Element{}, false
	}
	return el, ok
}

// skipPrefixBox moves a mobile fill off a narrow country-code box onto the
// number input that follows it
func (j *Job) skipPrefixBox(ctx context.Context, el automation.Element) automation.Element {
	maxLen := el.MaxLength
	if maxLen <= 0 {
		maxLen = 100
	}
	w := el.Rect.Width
	if !(w > 0 && w < 60) && maxLen >= 10 {
		return el
	}
	sib, err := j.page.FollowingInputs(ctx, el.Ref)
	if err != nil {
		return el
	}
	for _, next := range sib.Next {
		if next.Rect.Width > 60 {
			return next
		}
	}
	if sib.ParentNext != nil {
		return *sib.ParentNext
	}
	return el
}

// Suspicious reports values that look like a stale password left by autofill
func Suspicious(v string) bool {
	return len(v) > 5 && digitRe.MatchString(v) && symbolRe.MatchString(v)
}

func isSend(label string) bool {
	t := strings.ToLower(strings.TrimSpace(label))
	return strings.Contains(t, "send") || strings.Contains(t, "submit") || t == "go"
}

func (j *Job) sendControl(ctx context.Context, doc string) (automation.Element, bool) {
	if el, ok, err := automation.First(ctx, j.page, doc,
		`input[type="image"][alt="Send"]`, `input[src*="send.gif"]`, `input[src*="submit.gif"]`); err == nil && ok {
		return el, true
	}
	el, ok, err := automation.FindFirst(ctx, j.page,
		automation.Query{Selector: `a, button, input[type="button"], input[type="submit"], img`, Doc: doc, Depth: automation.MaxFrameDepth}, isSend)
	if err != nil {
		return automation.Element{}, false
	}
	return el, ok
}
