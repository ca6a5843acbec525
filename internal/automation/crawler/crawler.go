// Package crawler walks a session's order history one document at a time.
// Its queue and done set live in session storage so the walk survives the
// navigations it triggers.
package crawler

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// ListURL is where the crawl returns once the queue drains
const ListURL = "https://www.flipkart.com/account/orders"

// Reporter receives user-facing progress
type Reporter interface {
	Log(msg string)
	SyncComplete()
}

// Sink persists scraped orders
type Sink interface {
	SaveOrders(ctx context.Context, orders []models.ScrapedOrder) error
}

// Crawler runs one step per loaded order page
type Crawler struct {
	Page     automation.Page
	Clock    automation.Clock
	Reporter Reporter
	Sink     Sink
	Logger   *zap.Logger
}

// IsListPage reports whether url is an order history page
func IsListPage(url string) bool {
	return strings.Contains(url, "account/orders") || strings.Contains(url, "order-history")
}

// IsDetailPage reports whether url is a single order page
func IsDetailPage(url string) bool {
	return strings.Contains(url, "order_details") || strings.Contains(url, "order_id")
}

// Applies reports whether a crawl step should run for url
func Applies(url string) bool {
	if strings.Contains(url, "viewcart") || strings.Contains(url, "checkout") {
		return false
	}
	return IsListPage(url) || IsDetailPage(url)
}

// identityParams survive canonicalization; without them every detail link
// of the storefront would collapse to the same path
var identityParams = []string{"order_id", "orderId"}

// Canonical strips the query string and fragment, keeping only the
// parameters that identify an order
func Canonical(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	i := strings.IndexByte(link, '?')
	if i < 0 {
		return link
	}
	query, err := neturl.ParseQuery(link[i+1:])
	if err != nil {
		return link[:i]
	}
	keep := neturl.Values{}
	for _, k := range identityParams {
		if v := query.Get(k); v != "" {
			keep.Set(k, v)
		}
	}
	if len(keep) == 0 {
		return link[:i]
	}
	return link[:i] + "?" + keep.Encode()
}

// Step processes the current document
func (c *Crawler) Step(ctx context.Context) error {
	url, err := c.Page.URL(ctx)
	if err != nil {
		return err
	}
	if c.onLoginPage(ctx, url) {
		c.logger().Debug("login page, crawl paused")
		return nil
	}
	switch {
	case IsDetailPage(url):
		return c.detail(ctx, url)
	case IsListPage(url):
		return c.list(ctx)
	}
	return nil
}

func (c *Crawler) onLoginPage(ctx context.Context, url string) bool {
	if !strings.Contains(url, "login") {
		return false
	}
	text, err := c.Page.Text(ctx)
	return err == nil && strings.Contains(text, "Login")
}

func (c *Crawler) list(ctx context.Context) error {
	c.Reporter.Log("Scanning Order List...")

	links, err := c.orderLinks(ctx)
	if err != nil {
		return err
	}
	done, queue, err := c.state(ctx)
	if err != nil {
		return err
	}

	added := 0
	for _, link := range links {
		canon := Canonical(link)
		if done[canon] || queued(queue, canon) {
			continue
		}
		queue = append(queue, link)
		added++
	}
	if err := automation.SaveJSON(ctx, c.Page, automation.KeyCrawlQueue, queue); err != nil {
		return err
	}
	c.logger().Debug("order list scanned", zap.Int("links", len(links)), zap.Int("added", added), zap.Int("queued", len(queue)))

	if len(queue) == 0 {
		c.Reporter.Log("All orders synced. Sync complete.")
		c.Reporter.SyncComplete()
		return nil
	}
	c.Reporter.Log(fmt.Sprintf("Found %d orders to sync.", len(queue)))
	if err := c.Clock.Sleep(ctx, 3*time.Second); err != nil {
		return err
	}
	return c.Page.Navigate(ctx, queue[0])
}

// orderLinks returns absolute detail links on the list page, in document order
func (c *Crawler) orderLinks(ctx context.Context) ([]string, error) {
	anchors, err := c.Page.Query(ctx, automation.Query{Selector: "a[href]"})
	if err != nil {
		return nil, err
	}
	base, _ := c.Page.URL(ctx)
	seen := make(map[string]bool)
	var out []string
	for _, a := range anchors {
		href := resolve(base, a.Href)
		if !(strings.Contains(href, "order_details") || strings.Contains(href, "orderId=")) {
			continue
		}
		if strings.Contains(href, "cancellation") || seen[href] {
			continue
		}
		seen[href] = true
		out = append(out, href)
	}
	return out, nil
}

func (c *Crawler) detail(ctx context.Context, url string) error {
	c.Reporter.Log("Scraping details...")
	if err := c.Clock.Sleep(ctx, 4*time.Second); err != nil {
		return err
	}

	if el, ok, err := automation.FindFirst(ctx, c.Page,
		automation.Query{Selector: "span, a, div, button"}, automation.Equals("See All Updates")); err == nil && ok {
		if err := c.Page.NativeClick(ctx, el.Ref); err == nil {
			if err := c.Clock.Sleep(ctx, 2*time.Second); err != nil {
				return err
			}
		}
	}

	var (
		order models.ScrapedOrder
		found bool
	)
	for attempt := 1; attempt <= 3; attempt++ {
		d, err := c.read(ctx, url)
		if err != nil {
			return err
		}
		order, found = Extract(d, c.Clock.Now())
		if found && !badName(order.ProductName) {
			break
		}
		if attempt < 3 {
			if err := c.Clock.Sleep(ctx, 1500*time.Millisecond); err != nil {
				return err
			}
		}
	}

	if found {
		c.Reporter.Log("Scraped: " + order.OrderID)
		if err := c.Sink.SaveOrders(ctx, []models.ScrapedOrder{order}); err != nil {
			c.logger().Warn("failed to save order", zap.String("order_id", order.OrderID), zap.Error(err))
		}
	} else {
		c.logger().Debug("no order id on detail page", zap.String("url", url))
	}

	done, queue, err := c.state(ctx)
	if err != nil {
		return err
	}
	canon := Canonical(url)
	if !done[canon] {
		if err := c.markDone(ctx, canon); err != nil {
			return err
		}
	}
	rest := queue[:0]
	for _, q := range queue {
		if Canonical(q) == canon || q == url || strings.Contains(url, q) {
			continue
		}
		rest = append(rest, q)
	}
	if err := automation.SaveJSON(ctx, c.Page, automation.KeyCrawlQueue, rest); err != nil {
		return err
	}

	if len(rest) > 0 {
		if err := c.Clock.Sleep(ctx, 2500*time.Millisecond); err != nil {
			return err
		}
		return c.Page.Navigate(ctx, rest[0])
	}

	c.Reporter.Log("Done. Sync Complete")
	if err := c.Page.Navigate(ctx, ListURL); err != nil {
		return err
	}
	c.Reporter.SyncComplete()
	return nil
}

func (c *Crawler) read(ctx context.Context, url string) (Detail, error) {
	text, err := c.Page.Text(ctx)
	if err != nil {
		return Detail{}, err
	}
	html, err := c.Page.HTML(ctx)
	if err != nil {
		return Detail{}, err
	}
	imgs, err := c.Page.Query(ctx, automation.Query{Selector: "img"})
	if err != nil {
		return Detail{}, err
	}
	return Detail{URL: url, Text: text, HTML: html, Images: imgs}, nil
}

// state loads the done set and queue
func (c *Crawler) state(ctx context.Context) (map[string]bool, []string, error) {
	var doneList, queue []string
	if err := automation.LoadJSON(ctx, c.Page, automation.KeyDoneSet, &doneList); err != nil {
		return nil, nil, err
	}
	if err := automation.LoadJSON(ctx, c.Page, automation.KeyCrawlQueue, &queue); err != nil {
		return nil, nil, err
	}
	done := make(map[string]bool, len(doneList))
	for _, d := range doneList {
		done[d] = true
	}
	return done, queue, nil
}

// markDone appends to the done set; entries are never removed
func (c *Crawler) markDone(ctx context.Context, canon string) error {
	var doneList []string
	if err := automation.LoadJSON(ctx, c.Page, automation.KeyDoneSet, &doneList); err != nil {
		return err
	}
	doneList = append(doneList, canon)
	return automation.SaveJSON(ctx, c.Page, automation.KeyDoneSet, doneList)
}

func queued(queue []string, canon string) bool {
	for _, q := range queue {
		if Canonical(q) == canon {
			return true
		}
	}
	return false
}

func (c *Crawler) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
