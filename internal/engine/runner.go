// Package engine binds the automation engines to one session: it owns the
// session's single job slot and resumes parked commands after page loads.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/cart"
	"github.com/shehryarbajwa/hypercart/internal/automation/checkout"
	"github.com/shehryarbajwa/hypercart/internal/automation/crawler"
	"github.com/shehryarbajwa/hypercart/internal/automation/netsafe"
	"github.com/shehryarbajwa/hypercart/internal/automation/profile"
	"github.com/shehryarbajwa/hypercart/internal/metrics"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

const (
	// ResumeDelay is how long after a load a parked command is picked up
	ResumeDelay = time.Second
	// CrawlDelay follows ResumeDelay before a crawl step runs
	CrawlDelay = 3 * time.Second
)

var (
	// ErrUnknownCommand is returned for commands no engine handles
	ErrUnknownCommand = errors.New("unknown command")
	// ErrStopped is returned by Run once the runner has been stopped
	ErrStopped = errors.New("runner stopped")
)

// Emitter receives everything an engine reports
type Emitter interface {
	Log(msg string)
	Progress(generated, total int, status string)
	Orders(orders []models.ScrapedOrder)
	SyncComplete()
}

// OrderStore persists scraped orders for an account
type OrderStore interface {
	UpsertOrders(ctx context.Context, accountID string, orders []models.ScrapedOrder) (int, error)
}

// CardStore hands out and stores generated cards
type CardStore interface {
	FetchOneUnused(ctx context.Context, amount string) (*models.Card, error)
	Save(ctx context.Context, card *models.Card, region *models.Region, png []byte) error
}

// Deps are the collaborators shared by every Runner
type Deps struct {
	Orders  OrderStore
	Cards   CardStore
	Metrics *metrics.Metrics
	Clock   automation.Clock
	Logger  *zap.Logger
}

// Runner drives the engines of one session. At most one job runs at a time:
// starting a job cancels the previous one.
type Runner struct {
	accountID string
	page      automation.Page
	emitter   Emitter
	deps      Deps
	logger    *zap.Logger

	parent context.Context
	stop   context.CancelFunc

	mu          sync.Mutex
	jobCancel   context.CancelFunc
	jobName     string
	jobSeq      int
	probeCancel context.CancelFunc
	wg          sync.WaitGroup
}

// NewRunner creates the runner for accountID's page
func NewRunner(accountID string, p automation.Page, emitter Emitter, deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = automation.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		accountID: accountID,
		page:      p,
		emitter:   emitter,
		deps:      deps,
		logger:    deps.Logger.With(zap.String("session_id", accountID)),
		parent:    ctx,
		stop:      cancel,
	}
}

// Run starts command with its JSON payload, replacing any running job
func (r *Runner) Run(command models.Command, data json.RawMessage) error {
	job, err := r.job(command, data)
	if err != nil {
		return err
	}
	if r.parent.Err() != nil {
		return ErrStopped
	}
	if command != models.CmdAddToCart {
		r.emitter.Log(fmt.Sprintf("[Auto] Running: %s", command))
	}
	r.deps.Metrics.IncCommand(string(command))
	if !r.start(string(command), job) {
		return ErrStopped
	}
	return nil
}

func (r *Runner) job(command models.Command, data json.RawMessage) (func(context.Context) error, error) {
	switch command {
	case models.CmdEmptyCart:
		return r.cart().Empty, nil

	case models.CmdAddToCart:
		var d models.AddToCartData
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		if d.URL == "" {
			return nil, fmt.Errorf("add-to-cart requires a url")
		}
		return func(ctx context.Context) error { return r.cart().Add(ctx, d) }, nil

	case models.CmdCampCheckout:
		return r.checkout().Start, nil

	case models.CmdCreateNetsafe:
		var cfg models.NetsafeConfig
		if err := decode(data, &cfg); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return netsafe.Start(ctx, r.page, cfg, r.emitter)
		}, nil

	case models.CmdUpdateProfileAuto:
		var d models.ProfileData
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return r.profile().Run(ctx, d) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid command data: %w", err)
	}
	return nil
}

// DocumentReady is called after every top-level document load. A parked
// command is resumed after ResumeDelay; otherwise an idle runner takes one
// crawl step after CrawlDelay when the page is an order page.
func (r *Runner) DocumentReady() {
	r.mu.Lock()
	if r.parent.Err() != nil {
		r.mu.Unlock()
		return
	}
	if r.probeCancel != nil {
		r.probeCancel()
	}
	ctx, cancel := context.WithCancel(r.parent)
	r.probeCancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.probe(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("⚠️ Document probe failed", zap.Error(err))
		}
	}()
}

func (r *Runner) probe(ctx context.Context) error {
	clock := r.deps.Clock
	if err := clock.Sleep(ctx, ResumeDelay); err != nil {
		return err
	}

	pending, _, err := r.page.GetItem(ctx, automation.KeyPendingCommand)
	if err != nil {
		return err
	}
	switch pending {
	case automation.PendingCheckout:
		r.start("resume:"+pending, r.checkout().Resume)
		return nil
	case automation.PendingNetsafe:
		r.start("resume:"+pending, func(ctx context.Context) error {
			job, err := netsafe.Resume(ctx, r.page, clock, r.emitter, r.cardSink(), r.logger)
			if err != nil {
				return err
			}
			return job.Run(ctx)
		})
		return nil
	case automation.PendingProfile:
		r.start("resume:"+pending, r.profile().Resume)
		return nil
	}

	if err := clock.Sleep(ctx, CrawlDelay); err != nil {
		return err
	}
	if r.Busy() {
		return nil
	}
	url, err := r.page.URL(ctx)
	if err != nil {
		return err
	}
	if !crawler.Applies(url) {
		return nil
	}
	r.start("crawl", r.crawler().Step)
	return nil
}

// start runs job in place of the current one. It reports false once the
// runner is stopped.
func (r *Runner) start(name string, job func(context.Context) error) bool {
	r.mu.Lock()
	if r.parent.Err() != nil {
		r.mu.Unlock()
		return false
	}
	if r.jobCancel != nil {
		r.logger.Debug("replacing job", zap.String("previous", r.jobName), zap.String("next", name))
		r.jobCancel()
	}
	ctx, cancel := context.WithCancel(r.parent)
	r.jobSeq++
	seq := r.jobSeq
	r.jobCancel = cancel
	r.jobName = name
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.finish(seq)
		if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("⚠️ Automation job failed", zap.String("job", name), zap.Error(err))
			r.emitter.Log(fmt.Sprintf("[Auto] %s stopped: %v", name, err))
		}
	}()
	return true
}

func (r *Runner) finish(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobSeq == seq && r.jobCancel != nil {
		r.jobCancel()
		r.jobCancel = nil
		r.jobName = ""
	}
}

// Busy reports whether a job is running
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobCancel != nil
}

// Job returns the name of the running job, if any
func (r *Runner) Job() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobName
}

// Stop cancels the running job and any pending probe. The runner cannot be
// reused afterwards.
func (r *Runner) Stop() {
	// wg.Add only happens under mu while parent is live
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()
	r.Wait()
}

// Wait blocks until every job and probe started so far has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) cart() *cart.Cart {
	return cart.New(r.page, r.deps.Clock, r.emitter, r.logger)
}

func (r *Runner) checkout() *checkout.Machine {
	return checkout.New(r.page, r.deps.Clock, r.deps.Cards, r.emitter, r.logger)
}

func (r *Runner) profile() *profile.Updater {
	return profile.New(r.page, r.deps.Clock, r.emitter, r.logger)
}

func (r *Runner) crawler() *crawler.Crawler {
	return &crawler.Crawler{
		Page:     r.page,
		Clock:    r.deps.Clock,
		Reporter: r.emitter,
		Sink:     orderSink{r},
		Logger:   r.logger,
	}
}

func (r *Runner) cardSink() netsafe.CardSink {
	return cardSink{r}
}
