package browser

import (
	"strings"
)

const (
	// SpoofReferer and SpoofOrigin are sent on every request so deep-linked
	// cart and checkout routes accept the navigation
	SpoofReferer = "https://www.flipkart.com/"
	SpoofOrigin  = "https://www.flipkart.com"
)

// strippedHeaders are removed from every response; the storefront renders a
// blank page under its own CSP when embedded
var strippedHeaders = map[string]bool{
	"content-security-policy":             true,
	"content-security-policy-report-only": true,
	"x-frame-options":                     true,
	"x-content-type-options":              true,
}

// Header is one name/value pair in wire order
type Header struct {
	Name  string
	Value string
}

// RewriteRequestHeaders replaces Referer and Origin with the storefront
// origin and sets User-Agent when absent. Names are matched case-insensitively.
func RewriteRequestHeaders(in []Header, userAgent string) []Header {
	out := make([]Header, 0, len(in)+3)
	hasUA := false
	for _, h := range in {
		switch strings.ToLower(h.Name) {
		case "referer", "origin":
			continue
		case "user-agent":
			hasUA = true
		}
		out = append(out, h)
	}
	out = append(out, Header{Name: "Referer", Value: SpoofReferer}, Header{Name: "Origin", Value: SpoofOrigin})
	if !hasUA && userAgent != "" {
		out = append(out, Header{Name: "User-Agent", Value: userAgent})
	}
	return out
}

// StripResponseHeaders drops the framing and CSP headers
func StripResponseHeaders(in []Header) []Header {
	out := make([]Header, 0, len(in))
	for _, h := range in {
		if strippedHeaders[strings.ToLower(h.Name)] {
			continue
		}
		out = append(out, h)
	}
	return out
}

// NeedsStrip reports whether any header would be stripped
func NeedsStrip(in []Header) bool {
	for _, h := range in {
		if strippedHeaders[strings.ToLower(h.Name)] {
			return true
		}
	}
	return false
}
