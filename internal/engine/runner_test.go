package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/pagetest"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

type recorder struct {
	mu       sync.Mutex
	logs     []string
	progress []models.Progress
	orders   [][]models.ScrapedOrder
	synced   int
}

func (r *recorder) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *recorder) Progress(generated, total int, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, models.Progress{Generated: generated, Total: total, Status: status})
}

func (r *recorder) Orders(orders []models.ScrapedOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, orders)
}

func (r *recorder) SyncComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced++
}

type fakeOrders struct {
	account string
	got     []models.ScrapedOrder
}

func (f *fakeOrders) UpsertOrders(_ context.Context, accountID string, orders []models.ScrapedOrder) (int, error) {
	f.account = accountID
	f.got = append(f.got, orders...)
	return len(orders), nil
}

type fakeCards struct {
	saved  []*models.Card
	region *models.Region
	png    []byte
}

func (f *fakeCards) FetchOneUnused(context.Context, string) (*models.Card, error) { return nil, nil }

func (f *fakeCards) Save(_ context.Context, card *models.Card, region *models.Region, png []byte) error {
	f.saved = append(f.saved, card)
	f.region = region
	f.png = png
	return nil
}

// gateClock blocks every sleep until its context ends
type gateClock struct{ entered chan struct{} }

func (gateClock) Now() time.Time { return time.Now() }

func (c gateClock) Sleep(ctx context.Context, _ time.Duration) error {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

const blank = `<html><body><p>nothing here</p></body></html>`

func TestRunRejectsBadCommands(t *testing.T) {
	out := &recorder{}
	r := NewRunner("acc-1", pagetest.New("https://www.flipkart.com/", blank), out, Deps{Clock: pagetest.NewClock()})

	err := r.Run("fly", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	err = r.Run(models.CmdAddToCart, json.RawMessage(`{}`))
	assert.Error(t, err)

	err = r.Run(models.CmdCreateNetsafe, json.RawMessage(`{"count":`))
	assert.Error(t, err)

	assert.Empty(t, out.logs)
	assert.False(t, r.Busy())
}

func TestRunEmptyCartLogsAndFinishes(t *testing.T) {
	out := &recorder{}
	p := pagetest.New("https://www.shopsy.in/viewcart", blank)
	r := NewRunner("acc-1", p, out, Deps{Clock: pagetest.NewClock()})

	require.NoError(t, r.Run(models.CmdEmptyCart, nil))
	r.Wait()

	assert.Equal(t, []string{"[Auto] Running: empty-cart"}, out.logs)
	assert.Empty(t, p.Navigations)
	assert.False(t, r.Busy())
}

func TestAddToCartIsNotAnnounced(t *testing.T) {
	out := &recorder{}
	p := pagetest.New("https://www.flipkart.com/", blank)
	r := NewRunner("acc-1", p, out, Deps{Clock: pagetest.NewClock()})

	require.NoError(t, r.Run(models.CmdAddToCart, json.RawMessage(`{"url":"https://www.flipkart.com/p/itm1"}`)))
	r.Wait()

	assert.NotContains(t, out.logs, "[Auto] Running: add-to-cart")
	assert.Equal(t, "https://www.flipkart.com/p/itm1", p.Navigations[0])
}

func TestNewJobReplacesRunningJob(t *testing.T) {
	out := &recorder{}
	clock := gateClock{entered: make(chan struct{}, 1)}
	p := pagetest.New("https://www.flipkart.com/viewcart", blank)
	r := NewRunner("acc-1", p, out, Deps{Clock: clock})

	require.NoError(t, r.Run(models.CmdEmptyCart, nil))
	<-clock.entered
	assert.Equal(t, "empty-cart", r.Job())

	require.NoError(t, r.Run(models.CmdCampCheckout, nil))
	<-clock.entered
	assert.Equal(t, "camp-checkout", r.Job())

	r.Stop()
	assert.False(t, r.Busy())
	for _, l := range out.logs {
		assert.NotContains(t, l, "stopped")
	}
}

func TestStoppedRunnerIgnoresLoadsAndCommands(t *testing.T) {
	out := &recorder{}
	clock := gateClock{entered: make(chan struct{}, 1)}
	p := pagetest.New("https://www.flipkart.com/account/orders", blank)
	r := NewRunner("acc-1", p, out, Deps{Clock: clock})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.DocumentReady()
		}()
	}
	r.Stop()
	wg.Wait()

	r.DocumentReady()
	assert.ErrorIs(t, r.Run(models.CmdEmptyCart, nil), ErrStopped)
	r.Wait()
	assert.False(t, r.Busy())
	assert.Zero(t, out.synced)
}

func TestDocumentReadyResumesParkedCheckout(t *testing.T) {
	out := &recorder{}
	clock := pagetest.NewClock()
	p := pagetest.New("https://www.flipkart.com/viewcart", blank)
	require.NoError(t, p.SetItem(context.Background(), automation.KeyPendingCommand, automation.PendingCheckout))
	r := NewRunner("acc-1", p, out, Deps{Clock: clock})

	r.DocumentReady()
	r.Wait()

	_, parked := p.Item(automation.KeyPendingCommand)
	assert.False(t, parked)
	assert.Contains(t, out.logs, "[Auto] Resuming Checkout (Reloaded)...")
	sleeps := clock.Sleeps()
	require.GreaterOrEqual(t, len(sleeps), 2)
	assert.Equal(t, []time.Duration{ResumeDelay, 3 * time.Second}, sleeps[:2])
}

func TestDocumentReadyResumesNetsafeJob(t *testing.T) {
	out := &recorder{}
	ctx := context.Background()
	p := pagetest.New("https://netsafe.hdfc.bank.in/ACSWeb/enrolljsp/HDFCValidate.jsp", blank)
	require.NoError(t, p.SetItem(ctx, automation.KeyPendingCommand, automation.PendingNetsafe))
	require.NoError(t, p.SetItem(ctx, automation.KeyNetsafeConfig, `{"count":"2","amount":"500"}`))
	require.NoError(t, p.SetItem(ctx, automation.KeyGeneratedCount, "2"))
	r := NewRunner("netsafe", p, out, Deps{Clock: pagetest.NewClock()})

	r.DocumentReady()
	r.Wait()

	require.NotEmpty(t, out.progress)
	assert.Equal(t, models.Progress{Generated: 2, Total: 2, Status: "Completed"}, out.progress[len(out.progress)-1])
	for _, key := range []string{automation.KeyPendingCommand, automation.KeyNetsafeConfig, automation.KeyGeneratedCount} {
		_, ok := p.Item(key)
		assert.False(t, ok, key)
	}
}

func TestDocumentReadyCrawlsOrderPages(t *testing.T) {
	out := &recorder{}
	clock := pagetest.NewClock()
	p := pagetest.New("https://www.flipkart.com/account/orders", blank)
	r := NewRunner("acc-1", p, out, Deps{Clock: clock})

	r.DocumentReady()
	r.Wait()

	assert.Equal(t, 1, out.synced)
	assert.Equal(t, []time.Duration{ResumeDelay, CrawlDelay}, clock.Sleeps())
}

func TestDocumentReadyIgnoresOtherPages(t *testing.T) {
	out := &recorder{}
	clock := pagetest.NewClock()
	p := pagetest.New("https://www.flipkart.com/viewcart?from=account/orders", blank)
	r := NewRunner("acc-1", p, out, Deps{Clock: clock})

	r.DocumentReady()
	r.Wait()

	assert.Zero(t, out.synced)
	assert.Empty(t, out.logs)
	assert.Equal(t, []time.Duration{ResumeDelay, CrawlDelay}, clock.Sleeps())
}

func TestOrderSinkStoresUnderAccount(t *testing.T) {
	out := &recorder{}
	orders := &fakeOrders{}
	r := NewRunner("acc-7", pagetest.New("https://www.flipkart.com/", blank), out, Deps{Orders: orders})

	batch := []models.ScrapedOrder{{OrderID: "OD1234567890123"}}
	require.NoError(t, orderSink{r}.SaveOrders(context.Background(), batch))

	assert.Equal(t, "acc-7", orders.account)
	assert.Equal(t, batch, orders.got)
	assert.Equal(t, [][]models.ScrapedOrder{batch}, out.orders)
}

func TestCardSinkSnapshotsRegion(t *testing.T) {
	cards := &fakeCards{}
	p := pagetest.New("https://netsafe.hdfc.bank.in/", blank)
	r := NewRunner("netsafe", p, &recorder{}, Deps{Cards: cards})

	card := &models.Card{Number: "4111111111111111", CVV: "123", Expiry: "12/29"}
	region := &models.Region{X: 10, Y: 20, Width: 400, Height: 250}
	require.NoError(t, cardSink{r}.SaveCard(context.Background(), card, region))

	require.Len(t, p.Captures, 1)
	assert.Equal(t, &automation.Rect{X: 10, Y: 20, Width: 400, Height: 250}, p.Captures[0])
	assert.Equal(t, []*models.Card{card}, cards.saved)
	assert.Equal(t, region, cards.region)
	assert.NotEmpty(t, cards.png)

	require.NoError(t, cardSink{r}.SaveCard(context.Background(), card, nil))
	assert.Len(t, p.Captures, 1)
	assert.Nil(t, cards.png)
}
