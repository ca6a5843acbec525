package automation

import (
	"context"
	"sort"
	"strings"
)

// TextMatch decides whether an element label matches
type TextMatch func(label string) bool

// Contains matches labels containing s, ignoring case
func Contains(s string) TextMatch {
	want := strings.ToUpper(s)
	return func(label string) bool {
		return strings.Contains(strings.ToUpper(label), want)
	}
}

// Equals matches labels equal to s after trimming, ignoring case
func Equals(s string) TextMatch {
	want := strings.ToUpper(strings.TrimSpace(s))
	return func(label string) bool {
		return strings.ToUpper(strings.TrimSpace(label)) == want
	}
}

// AnyOf matches when any of ms matches
func AnyOf(ms ...TextMatch) TextMatch {
	return func(label string) bool {
		for _, m := range ms {
			if m(label) {
				return true
			}
		}
		return false
	}
}

// AnyText matches every label
func AnyText(string) bool { return true }

// Actionable is the single capability predicate applied by every phase
// detector: visible, interactable and text-matching.
func Actionable(el Element, m TextMatch) bool {
	return el.Visible && !el.Disabled && m(el.Label())
}

// FindAll returns every actionable element matching q and m, in document order
func FindAll(ctx context.Context, r Reader, q Query, m TextMatch) ([]Element, error) {
	els, err := r.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []Element
	for _, el := range els {
		if Actionable(el, m) {
			out = append(out, el)
		}
	}
	return out, nil
}

// FindFirst returns the first actionable element matching q and m
func FindFirst(ctx context.Context, r Reader, q Query, m TextMatch) (Element, bool, error) {
	els, err := FindAll(ctx, r, q, m)
	if err != nil || len(els) == 0 {
		return Element{}, false, err
	}
	return els[0], true, nil
}

// First returns the first element matching any selector, visible or not
func First(ctx context.Context, r Reader, doc string, selectors ...string) (Element, bool, error) {
	for _, sel := range selectors {
		els, err := r.Query(ctx, Query{Selector: sel, Doc: doc, Depth: MaxFrameDepth})
		if err != nil {
			return Element{}, false, err
		}
		if len(els) > 0 {
			return els[0], true, nil
		}
	}
	return Element{}, false, nil
}

// SortByTop orders elements top to bottom, stable for equal rows
func SortByTop(els []Element) {
	sort.SliceStable(els, func(i, j int) bool { return els[i].Rect.Top() < els[j].Rect.Top() })
}
