package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/checkout"
	"github.com/shehryarbajwa/hypercart/internal/automation/pagetest"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

type logs struct {
	mu    sync.Mutex
	lines []string
}

func (l *logs) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

type cards struct {
	card    *models.Card
	fetches int
	during  func(ctx context.Context)
}

func (c *cards) FetchOneUnused(ctx context.Context, _ string) (*models.Card, error) {
	c.fetches++
	if c.during != nil {
		c.during(ctx)
	}
	return c.card, nil
}

func TestPlaceOrderForcesNavigationAfterFiveAttempts(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://www.flipkart.com/viewcart",
		`<html><body><button data-rect="10,400,200,40">PLACE ORDER</button></body></html>`)
	m := checkout.New(p, pagetest.NewClock(), &cards{}, &logs{}, nil)

	for i := 1; i <= checkout.PlaceOrderRetries; i++ {
		sleep, stop := m.Tick(ctx)
		assert.False(t, stop)
		assert.Equal(t, 4*time.Second, sleep)
		assert.Empty(t, p.Navigations, "attempt %d", i)
	}

	sleep, _ := m.Tick(ctx)
	assert.Equal(t, 6*time.Second, sleep)
	assert.Equal(t, []string{checkout.EntryURL}, p.Navigations)

	// already on the entry route: no second forced navigation
	m.Tick(ctx)
	assert.Len(t, p.Navigations, 1)
	assert.Equal(t, 7, m.Progress().PlaceOrderAttempts)
	assert.Equal(t, checkout.PlaceOrderRetries, p.ClickedCount("button"))
}

func TestConsentOutranksPlaceOrder(t *testing.T) {
	p := pagetest.New("https://www.flipkart.com/viewcart", `<html><body>
		<section><button id="accept" data-rect="0,0,100,30">ACCEPT &amp; CONTINUE</button></section>
		<button id="place" data-rect="0,100,100,30">PLACE ORDER</button>
	</body></html>`)
	m := checkout.New(p, pagetest.NewClock(), &cards{}, &logs{}, nil)

	sleep, _ := m.Tick(context.Background())
	assert.Equal(t, 4*time.Second, sleep)
	assert.Equal(t, 1, p.ClickedCount("#accept"))
	assert.Zero(t, p.ClickedCount("#place"))
	assert.Zero(t, m.Progress().PlaceOrderAttempts)
}

func TestHiddenControlsAreIgnored(t *testing.T) {
	p := pagetest.New("https://www.flipkart.com/viewcart", `<html><body>
		<button data-hidden>PLACE ORDER</button>
	</body></html>`)
	m := checkout.New(p, pagetest.NewClock(), &cards{}, &logs{}, nil)

	sleep, _ := m.Tick(context.Background())
	assert.Equal(t, time.Second, sleep)
	assert.Zero(t, m.Progress().PlaceOrderAttempts)
}

const paymentHTML = `<html><body>
	<p>Complete Payment</p>
	<label id="cardopt" data-rect="0,0,300,40"><span>Credit / Debit / ATM Card</span></label>
	<input name="cardNumber" data-rect="0,60,300,30">
	<input placeholder="MM" data-rect="0,100,50,30">
	<input placeholder="YY" data-rect="60,100,50,30">
	<input placeholder="CVV" data-rect="120,100,60,30">
	<button id="pay" data-rect="0,300,200,40">PAY ₹499</button>
</body></html>`

func TestPaymentFillsCardOnce(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://www.flipkart.com/checkout/init", paymentHTML)
	src := &cards{card: &models.Card{Number: "4111111111111111", Expiry: "09/28", CVV: "123"}}
	out := &logs{}
	m := checkout.New(p, pagetest.NewClock(), src, out, nil)

	m.Tick(ctx)
	assert.Equal(t, 1, src.fetches)
	assert.Equal(t, []string{"4111111111111111"}, p.WritesTo("cardNumber"))
	assert.Equal(t, "09", p.ValueOf(`input[placeholder="MM"]`))
	assert.Equal(t, "28", p.ValueOf(`input[placeholder="YY"]`))
	assert.Equal(t, "123", p.ValueOf(`input[placeholder="CVV"]`))
	assert.Equal(t, 1, p.ClickedCount("#cardopt"))
	assert.Equal(t, 1, p.ClickedCount("#pay"))
	assert.True(t, m.Progress().PaymentFilled)
	assert.Contains(t, out.lines, "[Auto] > Filling Card 1111")

	p.SetValueOf(`input[name="cardNumber"]`, "")
	m.Tick(ctx)
	assert.Equal(t, 1, src.fetches)
}

func TestCardFetchGuardBlocksOverlappingTicks(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New("https://www.flipkart.com/checkout/init", paymentHTML)
	src := &cards{}
	out := &logs{}
	m := checkout.New(p, pagetest.NewClock(), src, out, nil)

	nested := 0
	src.during = func(ctx context.Context) {
		if nested == 0 {
			nested++
			m.Tick(ctx)
			assert.True(t, m.Progress().CardFetching)
		}
	}

	m.Tick(ctx)
	assert.Equal(t, 1, src.fetches, "overlapping tick must not fetch")
	assert.False(t, m.Progress().CardFetching)
	assert.False(t, m.Progress().PaymentFilled)
	assert.Contains(t, out.lines, "[Auto] > No Unused VCC available!")

	m.Tick(ctx)
	assert.Equal(t, 2, src.fetches)
}

func TestStartParksCommandOffCart(t *testing.T) {
	for url, want := range map[string]string{
		"https://www.flipkart.com/some-product/p/itm1": "https://www.flipkart.com/viewcart",
		"https://www.shopsy.in/some-product/p/itm1":    "https://www.shopsy.in/viewcart",
	} {
		p := pagetest.New(url, `<html><body><p>Product</p></body></html>`)
		m := checkout.New(p, pagetest.NewClock(), &cards{}, &logs{}, nil)

		require.NoError(t, m.Start(context.Background()))
		assert.Equal(t, []string{want}, p.Navigations)
		pending, _ := p.Item(automation.KeyPendingCommand)
		assert.Equal(t, automation.PendingCheckout, pending)
	}
}

func TestResumeClearsMarkerAndRunsToCeiling(t *testing.T) {
	p := pagetest.New("https://www.flipkart.com/viewcart", `<html><body><p>Empty</p></body></html>`)
	require.NoError(t, p.SetItem(context.Background(), automation.KeyPendingCommand, automation.PendingCheckout))
	clock := pagetest.NewClock()
	m := checkout.New(p, clock, &cards{}, &logs{}, nil)

	require.NoError(t, m.Resume(context.Background()))

	_, ok := p.Item(automation.KeyPendingCommand)
	assert.False(t, ok)
	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1+checkout.MaxTicks)
	assert.Equal(t, 3*time.Second, sleeps[0])
}
