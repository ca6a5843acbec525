package pagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

func TestDocumentsWalkFrames(t *testing.T) {
	p := New("https://netsafe.hdfcbank.com/", `<body><p>portal</p>
		<iframe data-frame="form"></iframe>
		<iframe data-frame="ads"></iframe></body>`)
	p.AddFrame("form", "https://netsafe.hdfcbank.com/form", `<body><input name="amount" value="10"></body>`, true)
	p.AddFrame("ads", "https://ads.example/", `<body>tracking</body>`, false)

	docs, err := p.Documents(context.Background(), automation.MaxFrameDepth)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "0", docs[0].Key)
	assert.Equal(t, "portal", docs[0].Text)
	assert.True(t, docs[1].Accessible)
	assert.False(t, docs[2].Accessible)
	assert.Empty(t, docs[2].Text)

	top, err := p.Documents(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	els, err := p.Query(context.Background(), automation.Query{Selector: "input", Depth: automation.MaxFrameDepth})
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, "form", els[0].Doc)
	assert.Equal(t, "text", els[0].Type)

	p.SetValueOf(`input[name="amount"]`, "25")
	assert.Equal(t, "25", p.ValueOf(`input[name="amount"]`))
}

func TestClockRecordsSleeps(t *testing.T) {
	c := NewClock()
	start := c.Now()

	var hooked []time.Duration
	c.OnSleep = func(d time.Duration) { hooked = append(hooked, d) }

	require.NoError(t, c.Sleep(context.Background(), 300*time.Millisecond))
	require.NoError(t, c.Sleep(context.Background(), 1500*time.Millisecond))

	assert.Equal(t, []time.Duration{300 * time.Millisecond, 1500 * time.Millisecond}, c.Sleeps())
	assert.Equal(t, hooked, c.Sleeps())
	assert.Equal(t, 1800*time.Millisecond, c.Elapsed())
	assert.Equal(t, start.Add(1800*time.Millisecond), c.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	assert.Len(t, c.Sleeps(), 2)
}
