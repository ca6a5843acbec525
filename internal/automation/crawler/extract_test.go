package crawler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/crawler"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

var today = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestStatusPrecedence(t *testing.T) {
	cases := []struct {
		text string
		want models.OrderStatus
	}{
		{"OD1234567890 Payment Failed Delivered", models.OrderFailed},
		{"OD1234567890 Order Not Placed", models.OrderFailed},
		{"OD1234567890 Delivered Cancelled", models.OrderDelivered},
		{"OD1234567890 Cancelled Return", models.OrderCancelled},
		{"OD1234567890 Return Shipped", models.OrderReturned},
		{"OD1234567890 Shipped", models.OrderShipped},
		{"OD1234567890", models.OrderOrdered},
	}
	for _, tc := range cases {
		o, ok := crawler.Extract(crawler.Detail{Text: tc.text}, today)
		assert.True(t, ok)
		assert.Equal(t, tc.want, o.Status, tc.text)
	}
}

func TestExtractFallbacks(t *testing.T) {
	t.Run("image alt", func(t *testing.T) {
		o, ok := crawler.Extract(crawler.Detail{
			URL:  "https://www.flipkart.com/order_details",
			Text: "OD1234567890123 tracked by ABCDEFGH12345 ₹499",
			Images: []automation.Element{
				{Alt: "Flipkart", Src: "/logo.png", Rect: automation.Rect{Width: 200, Height: 60}},
				{Alt: "tiny", Src: "/dot.png", Rect: automation.Rect{Width: 10, Height: 10}},
				{Alt: "boAt Airdopes 141", Src: "/img/buds.jpg", Rect: automation.Rect{Width: 100, Height: 100}},
			},
		}, today)
		assert.True(t, ok)
		assert.Equal(t, "boAt Airdopes 141", o.ProductName)
		assert.Equal(t, "https://www.flipkart.com/img/buds.jpg", o.ImageURL)
		assert.Equal(t, "ABCDEFGH12345", o.TrackingID)
		assert.Equal(t, "499", o.Price)
		assert.Equal(t, "2024-05-01", o.OrderDate)
	})

	t.Run("longest plausible leaf", func(t *testing.T) {
		o, ok := crawler.Extract(crawler.Detail{
			Text: "OD1234567890123",
			HTML: `<html><body>
				<div>Order ID OD1234567890123</div>
				<div>Delivery expected by Monday</div>
				<span>12, MG Road, Bangalore</span>
				<p>Samsung Galaxy Buds Pro Violet</p>
				<div><span>Short</span></div>
			</body></html>`,
		}, today)
		assert.True(t, ok)
		assert.Equal(t, "Samsung Galaxy Buds Pro Violet", o.ProductName)
	})

	t.Run("placeholder", func(t *testing.T) {
		o, ok := crawler.Extract(crawler.Detail{Text: "OD1234567890123"}, today)
		assert.True(t, ok)
		assert.Equal(t, "Product OD1234567890123", o.ProductName)
		assert.Equal(t, "0", o.Price)
	})

	t.Run("no order id", func(t *testing.T) {
		_, ok := crawler.Extract(crawler.Detail{Text: "Delivered ₹100"}, today)
		assert.False(t, ok)
	})
}

func TestFormatDate(t *testing.T) {
	cases := map[string]string{
		"Mar 5th, '24":  "2024-03-05",
		"Mar 05, 2024":  "2024-03-05",
		"on Jan 2 2023": "2023-01-02",
		"Dec 25":        "2024-12-25",
		"soon":          "soon",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, crawler.FormatDate(in, today), in)
	}
}
