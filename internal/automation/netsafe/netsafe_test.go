package netsafe_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/netsafe"
	"github.com/shehryarbajwa/hypercart/internal/automation/pagetest"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

type progress struct {
	generated, total int
	status           string
}

type reporter struct {
	mu       sync.Mutex
	logs     []string
	progress []progress
}

func (r *reporter) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *reporter) Progress(generated, total int, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progress{generated, total, status})
}

func (r *reporter) last() progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress[len(r.progress)-1]
}

type savedCard struct {
	card   models.Card
	region *models.Region
}

type sink struct {
	saved []savedCard
}

func (s *sink) SaveCard(_ context.Context, card *models.Card, region *models.Region) error {
	s.saved = append(s.saved, savedCard{card: *card, region: region})
	return nil
}

func newJob(p *pagetest.Page, cfg models.NetsafeConfig) (*netsafe.Job, *reporter, *sink, *pagetest.Clock, *[]string) {
	rep, sk, clock := &reporter{}, &sink{}, pagetest.NewClock()
	var copied []string
	j := netsafe.NewJob(p, clock, cfg, rep, sk, nil)
	j.Copy = func(text string) error {
		copied = append(copied, text)
		return nil
	}
	return j, rep, sk, clock, &copied
}

func TestNearestLeftOfPicksAlignedNeighbour(t *testing.T) {
	goBtn := automation.Element{Ref: "go", Rect: automation.Rect{X: 400, Y: 100, Width: 40, Height: 30}}
	inputs := []automation.Element{
		{Ref: "far", Rect: automation.Rect{X: 100, Y: 100, Width: 100, Height: 30}},
		{Ref: "near", Rect: automation.Rect{X: 350, Y: 100, Width: 40, Height: 30}},
		{Ref: "below", Rect: automation.Rect{X: 400, Y: 300, Width: 60, Height: 30}},
		{Ref: "tiny", Rect: automation.Rect{X: 380, Y: 100, Width: 5, Height: 5}},
	}
	got, ok := netsafe.NearestLeftOf(goBtn, inputs)
	require.True(t, ok)
	assert.Equal(t, "near", got.Ref)

	_, ok = netsafe.NearestLeftOf(goBtn, inputs[2:])
	assert.False(t, ok)
}

func TestAmountByName(t *testing.T) {
	got, ok := netsafe.AmountByName([]automation.Element{
		{Ref: "1", Name: "captchaAmount"},
		{Ref: "2", Name: "user"},
		{Ref: "3", Name: "fldAmt"},
	})
	require.True(t, ok)
	assert.Equal(t, "3", got.Ref)

	_, ok = netsafe.AmountByName([]automation.Element{{Name: "user"}})
	assert.False(t, ok)
}

const amountHTML = `<html><body>
	<input name="a" data-rect="100,100,100,30">
	<input name="b" data-rect="350,100,40,30">
	<input name="c" data-rect="400,300,60,30">
	<button data-rect="400,100,40,30">Go</button>
</body></html>`

func TestAmountFilledNextToGoWithCooldown(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(netsafe.EntryURL, amountHTML)
	j, _, _, clock, _ := newJob(p, models.NetsafeConfig{Count: 1, Amount: "500"})

	sleep, stop := j.Tick(ctx)
	assert.False(t, stop)
	assert.Equal(t, 1500*time.Millisecond, sleep)
	assert.Equal(t, []string{"500"}, p.WritesTo("b"))
	assert.Empty(t, p.WritesTo("a"))
	assert.Empty(t, p.WritesTo("c"))
	assert.Equal(t, 1, p.ClickedCount("button"))

	j.Tick(ctx)
	assert.Equal(t, []string{"500"}, p.WritesTo("b"), "filled value is not rewritten")
	assert.Equal(t, 1, p.ClickedCount("button"), "go is on cooldown")

	require.NoError(t, clock.Sleep(ctx, 5*time.Second))
	j.Tick(ctx)
	assert.Equal(t, 2, p.ClickedCount("button"))
}

func TestLoginFillsTopmostInputsOnce(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(netsafe.EntryURL, `<html><body>
		<input type="password" name="pass" data-rect="0,150,200,30">
		<input type="text" name="captcha" data-rect="0,300,200,30">
		<input type="text" name="user" data-rect="0,100,200,30">
	</body></html>`)
	j, rep, _, _, _ := newJob(p, models.NetsafeConfig{Count: 1, Username: "user1", Password: "pw"})

	j.Tick(ctx)
	j.Tick(ctx)

	assert.Equal(t, []string{"user1"}, p.WritesTo("user"))
	assert.Equal(t, []string{"pw"}, p.WritesTo("pass"))
	assert.Empty(t, p.WritesTo("captcha"))
	for _, w := range p.Writes {
		assert.Equal(t, automation.FullEvents, w.Events)
	}
	assert.Contains(t, rep.logs, "[Netsafe] Login Page Detected")
}

const formHTML = `<html><body><table>
	<tr><td><label>Cardholder Name</label></td><td><input name="txtCardholderName" value="Pass@1234" data-rect="200,10,200,20"></td></tr>
	<tr><td><label>Beneficiary Name</label></td><td><input name="txtBeneficiaryName" data-rect="200,40,200,20"></td></tr>
	<tr><td><label>Beneficiary Email</label></td><td><input name="txtBeneficiaryEmail" value="x1@y#z" data-rect="200,70,200,20"></td></tr>
	<tr><td>Beneficiary Mobile</td><td><span><input name="txtMobileNo" maxlength="3" data-rect="200,100,40,20"><input name="mobileBody" data-rect="250,100,150,20"></span></td></tr>
	<tr><td><input type="image" alt="Send" src="/img/send.gif" data-rect="200,200,60,20"></td></tr>
</table></body></html>`

func TestBeneficiaryFormInFrame(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(netsafe.EntryURL, `<html><body><iframe data-frame="bene"></iframe></body></html>`)
	p.AddFrame("bene", "https://netsafe.hdfc.bank.in/ACSWeb/bene.jsp", formHTML, true)
	j, _, _, clock, _ := newJob(p, models.NetsafeConfig{
		Count:           1,
		CardholderName:  "Ravi Kumar",
		BeneficiaryName: "Asha",
		Email:           "asha@example.com",
		Mobile:          "9876543210",
	})

	j.Tick(ctx)

	assert.Equal(t, []string{"", "Ravi Kumar"}, p.WritesTo("txtCardholderName"), "stale password value is cleared first")
	assert.Equal(t, []string{"Asha"}, p.WritesTo("txtBeneficiaryName"))
	assert.Equal(t, []string{"asha@example.com"}, p.WritesTo("txtBeneficiaryEmail"))
	assert.Empty(t, p.WritesTo("txtMobileNo"), "country code box is skipped")
	assert.Equal(t, []string{"9876543210"}, p.WritesTo("mobileBody"))
	assert.Equal(t, 1, p.ClickedCount(`input[type="image"]`))

	refills := 0
	for _, d := range clock.Sleeps() {
		if d == 300*time.Millisecond {
			refills++
		}
	}
	assert.Equal(t, 10, refills)

	// an autofill overwrite after submission is left alone
	p.SetValueOf(`input[name="txtBeneficiaryName"]`, "Autofilled")
	j.Tick(ctx)
	assert.Equal(t, []string{"Asha"}, p.WritesTo("txtBeneficiaryName"))
}

func TestRefillRunsUntilFormIsSent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	const name = `input[name="txtBeneficiaryName"]`
	noSend := strings.Replace(formHTML, `<input type="image" alt="Send" src="/img/send.gif" data-rect="200,200,60,20">`, "", 1)
	p := pagetest.New(netsafe.EntryURL, noSend)
	j, _, _, clock, _ := newJob(p, models.NetsafeConfig{Count: 1, BeneficiaryName: "Asha"})

	var refillAt []time.Time
	seen, sleeps := 0, 0
	clock.OnSleep = func(d time.Duration) {
		if n := len(p.WritesTo("txtBeneficiaryName")); n > seen {
			seen = n
			refillAt = append(refillAt, clock.Now().Add(-d))
		}
		sleeps++
		switch {
		case sleeps == 20:
			// the send control shows up late
			p.Load(netsafe.EntryURL, formHTML)
		case sleeps > 100:
			cancel()
		default:
			p.SetValueOf(name, "Stale")
		}
	}

	j.Tick(ctx)
	if n := len(p.WritesTo("txtBeneficiaryName")); n > seen {
		refillAt = append(refillAt, clock.Now())
	}

	require.Less(t, sleeps, 100, "form was never sent")
	assert.Equal(t, 1, p.ClickedCount(`input[type="image"]`))
	require.GreaterOrEqual(t, len(refillAt), 20)
	for i := 1; i < len(refillAt); i++ {
		assert.LessOrEqual(t, refillAt[i].Sub(refillAt[i-1]), 300*time.Millisecond, "gap before refill %d", i)
	}
	for _, w := range p.WritesTo("txtBeneficiaryName") {
		assert.Equal(t, "Asha", w)
	}

	// once sent, autofill is left alone
	n := len(p.WritesTo("txtBeneficiaryName"))
	p.SetValueOf(name, "Autofilled")
	clock.OnSleep = nil
	j.Tick(ctx)
	assert.Len(t, p.WritesTo("txtBeneficiaryName"), n)
}

func TestRefillStopsWhenFormLeavesPage(t *testing.T) {
	ctx := context.Background()
	noSend := strings.Replace(formHTML, `<input type="image" alt="Send" src="/img/send.gif" data-rect="200,200,60,20">`, "", 1)
	p := pagetest.New(netsafe.EntryURL, noSend)
	j, _, _, clock, _ := newJob(p, models.NetsafeConfig{Count: 1, BeneficiaryName: "Asha"})

	sleeps := 0
	clock.OnSleep = func(d time.Duration) {
		sleeps++
		if sleeps == 4 {
			p.Load("https://netsafe.hdfc.bank.in/ACSWeb/result.jsp", `<html><body>Please wait</body></html>`)
		}
	}

	_, stop := j.Tick(ctx)
	assert.False(t, stop)
	assert.Equal(t, 4, sleeps)
	assert.Zero(t, p.ClickedCount(`input[type="image"]`))
}

const cardHTML = `<html><body>
	<div id="card" data-rect="100,100,340,214">
		<span data-rect="120,150,200,20">4111 1111 1111 1234</span>
		<p>CVV: 123</p>
		<p>Expiry 09/27</p>
	</div>
	<a id="back" href="#" data-rect="100,400,80,20">Back</a>
</body></html>`

func TestResumeAfterReloadRequestsNextCard(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://netsafe.hdfc.bank.in/ACSWeb/result.jsp", cardHTML)
	require.NoError(t, automation.SaveInt(ctx, p, automation.KeyGeneratedCount, 2))
	require.NoError(t, automation.SaveJSON(ctx, p, automation.KeyNetsafeConfig, models.NetsafeConfig{Count: 5, Amount: "1000"}))
	require.NoError(t, p.SetItem(ctx, automation.KeyPendingCommand, automation.PendingNetsafe))

	rep, sk := &reporter{}, &sink{}
	j, err := netsafe.Resume(ctx, p, pagetest.NewClock(), rep, sk, nil)
	require.NoError(t, err)
	var copied []string
	j.Copy = func(text string) error {
		copied = append(copied, text)
		return nil
	}

	_, stop := j.Tick(ctx)
	assert.False(t, stop)

	require.Len(t, sk.saved, 1)
	got := sk.saved[0]
	assert.Equal(t, "4111111111111234", got.card.Number)
	assert.Equal(t, "123", got.card.CVV)
	assert.Equal(t, "09/27", got.card.Expiry)
	assert.Equal(t, "1000", got.card.Amount)
	assert.Equal(t, &models.Region{X: 100, Y: 100, Width: 340, Height: 214}, got.region)
	assert.Equal(t, []string{"4111111111111234|09/27|123"}, copied)
	assert.Contains(t, rep.logs, "[Netsafe] Card Generated! (3/5)")
	assert.Equal(t, progress{3, 5, "Card Generated"}, rep.last())

	n, err := automation.LoadInt(ctx, p, automation.KeyGeneratedCount)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, p.ClickedCount("#back"))

	// same card still on screen: not saved twice
	j.Tick(ctx)
	assert.Len(t, sk.saved, 1)
}

func TestLastCardCompletesJob(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://netsafe.hdfc.bank.in/ACSWeb/result.jsp", strings.Replace(cardHTML, "Back", "Home", 1))
	require.NoError(t, p.SetItem(ctx, automation.KeyPendingCommand, automation.PendingNetsafe))
	j, rep, sk, _, _ := newJob(p, models.NetsafeConfig{Count: 1})

	_, stop := j.Tick(ctx)
	assert.True(t, stop)
	assert.Len(t, sk.saved, 1)
	assert.Equal(t, progress{1, 1, "Completed"}, rep.last())
	_, pending := p.Item(automation.KeyPendingCommand)
	assert.False(t, pending)
	assert.Empty(t, p.Navigations)
}

func TestMissingBackControlReloadsEntry(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://netsafe.hdfc.bank.in/ACSWeb/result.jsp", strings.Replace(cardHTML, "Back", "Logout", 1))
	j, _, _, _, _ := newJob(p, models.NetsafeConfig{Count: 3})

	j.Tick(ctx)
	assert.Equal(t, []string{netsafe.EntryURL}, p.Navigations)
}

func TestCompletedJobStopsImmediately(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(netsafe.EntryURL, `<html><body></body></html>`)
	require.NoError(t, automation.SaveInt(ctx, p, automation.KeyGeneratedCount, 5))
	require.NoError(t, p.SetItem(ctx, automation.KeyPendingCommand, automation.PendingNetsafe))
	j, rep, _, _, _ := newJob(p, models.NetsafeConfig{Count: 5})

	require.NoError(t, j.Run(ctx))
	assert.Equal(t, progress{5, 5, "Completed"}, rep.last())
	for _, key := range []string{automation.KeyPendingCommand, automation.KeyGeneratedCount} {
		_, ok := p.Item(key)
		assert.False(t, ok, key)
	}
}

func TestStartParksJob(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://www.flipkart.com/", `<html><body></body></html>`)
	require.NoError(t, automation.SaveInt(ctx, p, automation.KeyGeneratedCount, 4))

	require.NoError(t, netsafe.Start(ctx, p, models.NetsafeConfig{Count: 2, Amount: "250"}, &reporter{}))

	pending, _ := p.Item(automation.KeyPendingCommand)
	assert.Equal(t, automation.PendingNetsafe, pending)
	var cfg models.NetsafeConfig
	require.NoError(t, automation.LoadJSON(ctx, p, automation.KeyNetsafeConfig, &cfg))
	assert.Equal(t, "250", cfg.Amount)
	assert.Equal(t, 2, cfg.Target())
	_, ok := p.Item(automation.KeyGeneratedCount)
	assert.False(t, ok)
	assert.Equal(t, []string{netsafe.EntryURL}, p.Navigations)
}

func TestParseCardAndSuspicious(t *testing.T) {
	card, ok := netsafe.ParseCard("Card 4111 2222 3333 4444 C V V 987 Valid Thru 11/29")
	require.True(t, ok)
	assert.Equal(t, "4111222233334444", card.Number)
	assert.Equal(t, "987", card.CVV)
	assert.Equal(t, "11/29", card.Expiry)

	_, ok = netsafe.ParseCard("Reference 4111 2222 3333 4444")
	assert.False(t, ok)

	card, ok = netsafe.ParseCard("4111222233334444 CVV")
	require.True(t, ok)
	assert.Equal(t, "???", card.CVV)
	assert.Equal(t, "??/??", card.Expiry)

	assert.True(t, netsafe.Suspicious("Pass@1234"))
	assert.False(t, netsafe.Suspicious("Ravi Kumar"))
	assert.False(t, netsafe.Suspicious("a1@b"))
	assert.False(t, netsafe.Suspicious("9876543210"))
}
