package crawler

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

var (
	orderIDRe   = regexp.MustCompile(`(OD\d{10,25})`)
	courierRe   = regexp.MustCompile(`(?i)\b(?:FMPP|FMPC|FMP|FPL|SRTP|EKART|DELHIVERY|ECOM)[A-Za-z0-9]{8,}`)
	trackedByRe = regexp.MustCompile(`(?i)tracked by\s*([A-Za-z0-9]{11,})`)
	totalRe     = regexp.MustCompile(`Total\s*₹([\d,]+)`)
	rupeeRe     = regexp.MustCompile(`₹([\d,]+)`)
	deliveredRe = regexp.MustCompile(`(?i)Delivered(?:,| on)\s+(?:[A-Za-z]{3}\s+)?([A-Za-z]{3}\s\d{1,2}(?:,?\s\d{4})?)`)
	confirmedRe = regexp.MustCompile(`(?i)Order Confirmed(?:,| on)\s+(?:[A-Za-z]{3}\s+)?([A-Za-z]{3}\s\d{1,2}(?:,?\s\d{4})?)`)
	ordinalRe   = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)`)
	shortYearRe = regexp.MustCompile(`'(\d{2})`)
	dateNoiseRe = regexp.MustCompile(`(?i)Delivered|Order Confirmed|on `)
	addressRe   = regexp.MustCompile(`\d+,\s`)
)

// leaf texts containing any of these are addresses, policy text or tracking
// chatter rather than product names
var nameDenylist = []string{
	"Order", "Delivery", "Return", "Request", "Invoice", "Help", "due to", "error",
	"Road", "Cross", "Apartment", "Payment", "successful", "Please place", "Nagar",
	"Colony", "/", "received", "hub", "item has been", "courier",
}

// Detail is what the crawler reads from an order detail page
type Detail struct {
	URL  string
	Text string // rendered body text
	HTML string
	// Images are rendered img snapshots, used for the size-based fallback
	Images []automation.Element
}

// Extract builds an order from a detail page. ok is false when no order id is
// present, since such a record cannot be deduplicated.
func Extract(d Detail, today time.Time) (models.ScrapedOrder, bool) {
	body := d.Text
	o := models.ScrapedOrder{Platform: models.PlatformFlipkart, Status: models.OrderOrdered}

	if m := orderIDRe.FindStringSubmatch(body); m != nil {
		o.OrderID = m[1]
	}

	if m := courierRe.FindString(body); m != "" {
		o.TrackingID = m
	} else if m := trackedByRe.FindStringSubmatch(body); m != nil {
		o.TrackingID = m[1]
	}

	o.Price = "0"
	if m := totalRe.FindStringSubmatch(body); m != nil {
		o.Price = m[1]
	} else if m := rupeeRe.FindStringSubmatch(body); m != nil {
		o.Price = m[1]
	}

	o.Status = statusOf(body)

	if m := deliveredRe.FindStringSubmatch(body); m != nil {
		o.DeliveredDate = FormatDate(m[1], today)
	}
	if m := confirmedRe.FindStringSubmatch(body); m != nil {
		o.OrderDate = FormatDate(m[1], today)
	} else {
		o.OrderDate = today.Format("2006-01-02")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.HTML))
	if err == nil {
		o.ProductName, o.ImageURL = productFromLinks(doc, d.URL)
	}

	if o.ImageURL == "" {
		for _, img := range d.Images {
			if img.Rect.Width > 50 && img.Rect.Height > 50 && !strings.Contains(img.Alt, "Flipkart") {
				o.ImageURL = resolve(d.URL, img.Src)
				if o.ProductName == "" {
					o.ProductName = img.Alt
				}
				break
			}
		}
	}

	if (o.ProductName == "" || strings.HasPrefix(o.ProductName, "Product OD")) && doc != nil {
		if name := longestLeafText(doc); name != "" {
			o.ProductName = name
		}
	}

	if o.ProductName == "" {
		id := o.OrderID
		if id == "" {
			id = "Unknown"
		}
		o.ProductName = "Product " + id
	}

	return o, o.OrderID != ""
}

// statusOf applies fixed keyword precedence
func statusOf(body string) models.OrderStatus {
	switch {
	case strings.Contains(body, "Not Placed"), strings.Contains(body, "Payment Failed"), strings.Contains(body, "Order Not Placed"):
		return models.OrderFailed
	case strings.Contains(body, "Delivered"):
		return models.OrderDelivered
	case strings.Contains(body, "Cancelled"):
		return models.OrderCancelled
	case strings.Contains(body, "Return"):
		return models.OrderReturned
	case strings.Contains(body, "Shipped"):
		return models.OrderShipped
	}
	return models.OrderOrdered
}

// productFromLinks picks the longest product-link text and an image near it
func productFromLinks(doc *goquery.Document, base string) (string, string) {
	type candidate struct {
		text string
		sel  *goquery.Selection
	}
	var cands []candidate
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !(strings.Contains(href, "/p/") || strings.Contains(href, "/dl/")) || strings.Contains(href, "review") {
			return
		}
		cands = append(cands, candidate{text: collapse(a.Text()), sel: a})
	})
	if len(cands) == 0 {
		return "", ""
	}
	sort.SliceStable(cands, func(i, j int) bool { return len(cands[i].text) > len(cands[j].text) })

	best := cands[0]
	for _, scope := range []*goquery.Selection{best.sel, best.sel.Parent(), best.sel.Parent().Parent()} {
		if img := scope.Find("img[src]").First(); img.Length() > 0 {
			src, _ := img.Attr("src")
			return best.text, resolve(base, src)
		}
	}
	return best.text, ""
}

func longestLeafText(doc *goquery.Document) string {
	var best string
	doc.Find("div, span, p").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		raw := s.Text()
		if len(raw) <= 15 || len(raw) >= 100 {
			return
		}
		t := collapse(raw)
		if !plausibleName(t) {
			return
		}
		if len(t) > len(best) {
			best = t
		}
	})
	return best
}

func plausibleName(t string) bool {
	for _, bad := range nameDenylist {
		if strings.Contains(t, bad) {
			return false
		}
	}
	return !addressRe.MatchString(t)
}

// badName reports names that are likely placeholders or non-product text,
// which makes the crawler retry the extraction
func badName(name string) bool {
	return strings.HasPrefix(name, "Product OD") ||
		strings.Contains(name, ",") ||
		strings.Contains(name, "Your item") ||
		strings.Contains(name, "Payment")
}

var dateLayouts = []string{"Jan 2, 2006", "Jan 2 2006", "Jan 2,2006", "January 2, 2006", "January 2 2006"}

// FormatDate normalizes phrases like "Mar 5th, '24" to 2024-03-05. Dates
// without a year take today's year. Unparseable input is returned cleaned.
func FormatDate(raw string, today time.Time) string {
	if raw == "" {
		return ""
	}
	clean := strings.TrimSpace(dateNoiseRe.ReplaceAllString(raw, ""))
	clean = ordinalRe.ReplaceAllString(clean, "$1")
	clean = shortYearRe.ReplaceAllString(clean, "20$1")
	clean = strings.Join(strings.Fields(clean), " ")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, clean); err == nil {
			return t.Format("2006-01-02")
		}
	}
	for _, layout := range []string{"Jan 2", "January 2"} {
		if t, err := time.Parse(layout, clean); err == nil {
			return time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		}
	}
	return clean
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
