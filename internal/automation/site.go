package automation

import (
	"context"
	"strings"
)

const (
	FlipkartBase = "https://www.flipkart.com"
	ShopsyBase   = "https://www.shopsy.in"
)

// BaseURL returns the storefront origin serving url
func BaseURL(url string) string {
	if strings.Contains(url, "shopsy") {
		return ShopsyBase
	}
	return FlipkartBase
}

// Reporter receives the human-readable log lines an engine produces
type Reporter interface {
	Log(msg string)
}

// Elsewhere reports whether the current page URL contains none of fragments
func Elsewhere(ctx context.Context, r Reader, fragments ...string) (string, bool, error) {
	url, err := r.URL(ctx)
	if err != nil {
		return "", false, err
	}
	for _, f := range fragments {
		if strings.Contains(url, f) {
			return url, false, nil
		}
	}
	return url, true, nil
}
