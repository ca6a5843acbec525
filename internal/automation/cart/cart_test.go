package cart_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/cart"
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

func cartHTML(items int, dialog bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < items; i++ {
		fmt.Fprintf(&b, `<div class="item"><span>Item %d</span><button class="rm" data-rect="10,%d,80,30">Remove</button></div>`, i, 100+i*50)
	}
	if dialog {
		b.WriteString(`<div class="_3dsJAO _24d-qY FhkMJZ" data-rect="300,300,100,40">Remove</div>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestEmptyConfirmsEachRemoval(t *testing.T) {
	url := "https://www.flipkart.com/viewcart"
	items := 2
	p := pagetest.New(url, cartHTML(items, false))
	p.OnClick = func(p *pagetest.Page, el automation.Element) {
		switch {
		case strings.Contains(el.Class, "rm"):
			p.Load(url, cartHTML(items, true))
		case strings.Contains(el.Class, "_3dsJAO"):
			items--
			p.Load(url, cartHTML(items, false))
		}
	}
	out := &logs{}

	require.NoError(t, cart.New(p, pagetest.NewClock(), out, nil).Empty(context.Background()))

	assert.Zero(t, items)
	assert.Empty(t, p.Navigations)
	assert.Equal(t, []string{"[Auto] Emptied 2 items"}, out.lines)
}

func TestEmptyNavigatesToCartFirst(t *testing.T) {
	p := pagetest.New("https://www.shopsy.in/account", `<html><body></body></html>`)
	require.NoError(t, cart.New(p, pagetest.NewClock(), &logs{}, nil).Empty(context.Background()))
	assert.Equal(t, []string{"https://www.shopsy.in/viewcart"}, p.Navigations)
}

const productURL = "https://www.flipkart.com/boat-airdopes/p/itm42"

const productHTML = `<html><body>
	<div class="_2KpZ6l" data-rect="10,300,300,150"><p>Offers</p><p>ADD TO CART</p></div>
	<button id="add" data-rect="10,500,200,50">ADD TO CART</button>
	<button id="buy" data-rect="220,500,200,50">BUY NOW</button>
</body></html>`

func TestAddClicksCompactButtonUntilGoToCart(t *testing.T) {
	p := pagetest.New("https://www.flipkart.com/", `<html><body></body></html>`)
	p.OnNavigate = func(p *pagetest.Page, url string) {
		if url == productURL {
			p.Load(url, productHTML)
		}
	}
	p.OnClick = func(p *pagetest.Page, el automation.Element) {
		if el.ID == "add" {
			p.Load(productURL, `<html><body><button data-rect="10,500,200,50">GO TO CART</button></body></html>`)
		}
	}
	out := &logs{}

	require.NoError(t, cart.New(p, pagetest.NewClock(), out, nil).Add(context.Background(), models.AddToCartData{URL: productURL}))

	assert.Equal(t, []string{productURL, "https://www.flipkart.com/viewcart"}, p.Navigations)
	assert.Contains(t, out.lines, "[Auto] Successfully Added.")
}

func TestAddGivesUpAfterThreeAttempts(t *testing.T) {
	p := pagetest.New(productURL, productHTML)
	out := &logs{}
	clock := pagetest.NewClock()

	require.NoError(t, cart.New(p, clock, out, nil).Add(context.Background(), models.AddToCartData{URL: productURL}))

	assert.Equal(t, cart.AddAttempts, p.ClickedCount("#add"))
	assert.Zero(t, p.ClickedCount("div._2KpZ6l"))
	assert.Contains(t, out.lines, "[Auto] Retry/Check needed.")
	assert.Equal(t, []string{"https://www.flipkart.com/viewcart"}, p.Navigations)
}
