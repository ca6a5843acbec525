// Package netsafe generates virtual cards on the bank's NetSafe portal. A job
// survives the portal's full-page reloads through a pending marker, its
// config and a generated-count counter kept in session storage.
package netsafe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// EntryURL is the portal's card generation entry page
const EntryURL = "https://netsafe.hdfc.bank.in/ACSWeb/enrolljsp/HDFCValidate.jsp"

const (
	tickInterval   = 1500 * time.Millisecond
	goCooldown     = 5 * time.Second
	refillInterval = 300 * time.Millisecond
	submitDelay    = 3 * time.Second
	nextCardDelay  = 3 * time.Second
)

// Reporter receives log lines and job progress
type Reporter interface {
	Log(msg string)
	Progress(generated, total int, status string)
}

// CardSink persists a captured card and snapshots region when set
type CardSink interface {
	SaveCard(ctx context.Context, card *models.Card, region *models.Region) error
}

// Start parks the job in session storage and opens the portal; the loop runs
// from Resume once the entry page has loaded
func Start(ctx context.Context, p automation.Page, cfg models.NetsafeConfig, reporter Reporter) error {
	if err := p.SetItem(ctx, automation.KeyPendingCommand, automation.PendingNetsafe); err != nil {
		return err
	}
	if err := automation.SaveJSON(ctx, p, automation.KeyNetsafeConfig, cfg); err != nil {
		return err
	}
	if err := p.RemoveItem(ctx, automation.KeyGeneratedCount); err != nil {
		return err
	}
	reporter.Log("[Auto] Navigating to HDFC Netsafe...")
	return p.Navigate(ctx, EntryURL)
}

// Job is one document's run of the generation loop. Flags reset with every
// new Job, the persisted count does not.
type Job struct {
	page      automation.Page
	clock     automation.Clock
	cfg       models.NetsafeConfig
	reporter  Reporter
	sink      CardSink
	activator *automation.Activator
	logger    *zap.Logger

	// Copy puts the delimited card text on the host clipboard
	Copy func(text string) error

	loggedLogin   bool
	loginFilled   bool
	goClickedAt   time.Time
	formLogged    bool
	formSubmitted bool
	saved         map[string]bool
}

// NewJob builds a job for the current document
func NewJob(p automation.Page, clock automation.Clock, cfg models.NetsafeConfig, reporter Reporter, sink CardSink, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		page:      p,
		clock:     clock,
		cfg:       cfg,
		reporter:  reporter,
		sink:      sink,
		activator: automation.NewActivator(p, clock, logger),
		logger:    logger,
		Copy:      clipboard.WriteAll,
		saved:     make(map[string]bool),
	}
}

// Resume loads the parked config and builds a job for it
func Resume(ctx context.Context, p automation.Page, clock automation.Clock, reporter Reporter, sink CardSink, logger *zap.Logger) (*Job, error) {
	var cfg models.NetsafeConfig
	if err := automation.LoadJSON(ctx, p, automation.KeyNetsafeConfig, &cfg); err != nil {
		return nil, err
	}
	return NewJob(p, clock, cfg, reporter, sink, logger), nil
}

// Run ticks until the target count is reached or ctx ends
func (j *Job) Run(ctx context.Context) error {
	return automation.Loop(ctx, j.clock, 0, j.Tick)
}

// Tick runs one pass over every step of the portal flow
func (j *Job) Tick(ctx context.Context) (time.Duration, bool) {
	total := j.cfg.Target()
	generated, err := automation.LoadInt(ctx, j.page, automation.KeyGeneratedCount)
	if err != nil {
		j.logger.Warn("failed to read generated count", zap.Error(err))
		return tickInterval, false
	}
	if generated >= total {
		j.reporter.Log(fmt.Sprintf("[Netsafe] Job Complete: %d/%d cards generated.", generated, total))
		j.finish(ctx, generated, total)
		return 0, true
	}
	j.reporter.Progress(generated, total, "Scanning...")

	j.login(ctx, generated, total)
	j.selectAccount(ctx)
	j.amount(ctx, generated, total)
	j.agree(ctx)
	j.beneficiary(ctx, generated, total)
	if done := j.capture(ctx, generated, total); done {
		return 0, true
	}
	return tickInterval, false
}

func (j *Job) finish(ctx context.Context, generated, total int) {
	j.reporter.Progress(generated, total, "Completed")
	for _, key := range []string{automation.KeyPendingCommand, automation.KeyGeneratedCount, automation.KeyNetsafeConfig} {
		if err := j.page.RemoveItem(ctx, key); err != nil {
			j.logger.Warn("failed to clear job state", zap.String("key", key), zap.Error(err))
		}
	}
}

var loginTypes = map[string]bool{"text": true, "password": true, "number": true, "email": true, "tel": true}

// login fills the two topmost text-like inputs; field names vary between
// portal variants so position is the only stable signal
func (j *Job) login(ctx context.Context, generated, total int) {
	pw, err := automation.FindAll(ctx, j.page, automation.Query{Selector: `input[type="password"]`}, automation.AnyText)
	if err != nil || len(pw) == 0 {
		return
	}
	j.reporter.Progress(generated, total, "Login Detected")
	if !j.loggedLogin {
		j.loggedLogin = true
		j.reporter.Log("[Netsafe] Login Page Detected")
	}
	if j.cfg.Username == "" || j.cfg.Password == "" || j.loginFilled {
		return
	}

	all, err := j.page.Query(ctx, automation.Query{Selector: "input"})
	if err != nil {
		return
	}
	var inputs []automation.Element
	for _, in := range all {
		if loginTypes[in.Type] && in.Visible {
			inputs = append(inputs, in)
		}
	}
	if len(inputs) < 2 {
		return
	}
	automation.SortByTop(inputs)

	j.write(ctx, inputs[0], j.cfg.Username, automation.FullEvents)
	if j.clock.Sleep(ctx, 200*time.Millisecond) != nil {
		return
	}
	j.write(ctx, inputs[1], j.cfg.Password, automation.FullEvents)
	j.loginFilled = true
	j.reporter.Log("[Netsafe] Credentials Filled. Please Solve Captcha & Login manually.")
}

func (j *Job) selectAccount(ctx context.Context) {
	radios, err := automation.FindAll(ctx, j.page,
		automation.Query{Selector: `input[type="radio"]`, Depth: automation.MaxFrameDepth}, automation.AnyText)
	if err != nil || len(radios) == 0 || radios[0].Checked {
		return
	}
	j.reporter.Log("[Netsafe] Selecting Card Account (Radio Button)...")
	j.activator.Activate(ctx, radios[0])
	_ = j.clock.Sleep(ctx, time.Second)
}

const goSelector = `button, input[type="button"], input[type="submit"], input[type="image"], a, div[role="button"]`

func isGo(label string) bool {
	t := strings.ToLower(strings.TrimSpace(label))
	return t == "go" || strings.Contains(t, "go.gif") || strings.Contains(t, "go.jpg") || t == "submit"
}

func (j *Job) amount(ctx context.Context, generated, total int) {
	goBtn, hasGo, err := automation.FindFirst(ctx, j.page,
		automation.Query{Selector: goSelector, Depth: automation.MaxFrameDepth}, isGo)
	if err != nil {
		return
	}

	var (
		field automation.Element
		found bool
	)
	if hasGo {
		local, err := j.page.Query(ctx, automation.Query{Selector: amountSelector, Doc: goBtn.Doc, Depth: automation.MaxFrameDepth})
		if err == nil {
			field, found = NearestLeftOf(goBtn, local)
		}
	}
	if !found {
		all, err := j.page.Query(ctx, automation.Query{Selector: amountSelector, Depth: automation.MaxFrameDepth})
		if err == nil {
			field, found = AmountByName(all)
		}
	}
	if !found {
		return
	}

	if field.Value != j.cfg.Amount {
		j.reporter.Progress(generated, total, "Filling Amount...")
		j.write(ctx, field, j.cfg.Amount, automation.FullEvents)
		field.Value = j.cfg.Amount
		j.reporter.Log("[Netsafe] Amount Entered via Proximity/ID.")
		if j.clock.Sleep(ctx, 500*time.Millisecond) != nil {
			return
		}
	}

	now := j.clock.Now()
	if hasGo && field.Value != "" && (j.goClickedAt.IsZero() || now.Sub(j.goClickedAt) >= goCooldown) {
		j.reporter.Log(`[Netsafe] Clicking "Go"...`)
		j.goClickedAt = now
		j.activator.Activate(ctx, goBtn)
	}
}

func (j *Job) agree(ctx context.Context) {
	btn, ok, err := automation.FindFirst(ctx, j.page,
		automation.Query{Selector: `a, button, input[type="button"], input[type="submit"]`, Depth: automation.MaxFrameDepth},
		automation.AnyOf(automation.Equals("AGREE"), automation.Equals("ACCEPT")))
	if err != nil || !ok {
		return
	}
	j.reporter.Log(`[Netsafe] "Agree" button found. Clicking...`)
	j.activator.Activate(ctx, btn)
	_ = j.clock.Sleep(ctx, time.Second)
}

func (j *Job) write(ctx context.Context, el automation.Element, value string, ev automation.FillEvents) {
	if _, err := automation.Fill(ctx, j.page, el, value, ev); err != nil {
		j.logger.Debug("fill failed", zap.String("name", el.Name), zap.Error(err))
	}
}
