package automation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/pagetest"
)

func TestActivateUsesEveryChannel(t *testing.T) {
	page := pagetest.New("https://shop.example/cart", `<body>
		<section><span id="go" data-rect="100,200,40,20">Go</span></section>
	</body>`)
	clock := pagetest.NewClock()
	el, ok := page.Find("#go")
	require.True(t, ok)

	act := automation.NewActivator(page, clock, zap.NewNop())
	assert.True(t, act.Activate(context.Background(), el))

	assert.Equal(t, []pagetest.Point{{X: 120, Y: 210}, {X: 115, Y: 205}}, page.Pointer)
	assert.Equal(t, []string{el.Ref}, page.Scrolled)
	assert.Equal(t, []string{el.Ref}, page.Dispatched)
	assert.Equal(t, []string{el.Ref}, page.Clicked)
	assert.Equal(t, []string{"Enter", " "}, page.Keys)
	assert.Equal(t, []time.Duration{150 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}, clock.Sleeps())
}

func TestActivateSkipsPointerForEmptyBox(t *testing.T) {
	page := pagetest.New("https://shop.example/", `<body><p><a id="x">link</a></p></body>`)
	el, _ := page.Find("#x")

	act := automation.NewActivator(page, pagetest.NewClock(), nil)
	assert.True(t, act.Activate(context.Background(), el))
	assert.Empty(t, page.Pointer)
	assert.Len(t, page.Clicked, 1)
}

func TestActivatePropagatesToClickableParentsWithinDepth(t *testing.T) {
	page := pagetest.New("https://shop.example/", `<body>
		<div id="d0"><div id="d1"><div id="d2"><button id="b"><span id="s" data-rect="0,0,10,10">PAY</span></button></div></div></div>
	</body>`)
	el, _ := page.Find("#s")

	act := automation.NewActivator(page, pagetest.NewClock(), nil)
	act.Activate(context.Background(), el)

	// span (depth 0), button (1), d2 (2); d1 is past the bound
	assert.Len(t, page.Clicked, 3)
	assert.Equal(t, 1, page.ClickedCount("#b"))
	assert.Equal(t, 1, page.ClickedCount("#d2"))
	assert.Equal(t, 0, page.ClickedCount("#d1"))
}

func TestActivateStaleRefFails(t *testing.T) {
	page := pagetest.New("https://shop.example/", `<body></body>`)
	act := automation.NewActivator(page, pagetest.NewClock(), nil)
	assert.False(t, act.Activate(context.Background(), automation.Element{Ref: "gone"}))
}
