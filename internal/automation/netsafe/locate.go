package netsafe

import (
	"math"
	"sort"
	"strings"

	"github.com/shehryarbajwa/hypercart/internal/automation"
)

const amountSelector = `input:not([type="hidden"]):not([disabled])`

// Proximity bounds for the amount field relative to the Go control
const (
	maxOverlap  = 50
	maxGap      = 300
	maxRowDelta = 40
	minSide     = 10
)

// NearestLeftOf picks the input sitting left of anchor on the same row,
// closest to it
func NearestLeftOf(anchor automation.Element, inputs []automation.Element) (automation.Element, bool) {
	a := anchor.Rect
	var candidates []automation.Element
	for _, in := range inputs {
		r := in.Rect
		if r.Width < minSide || r.Height < minSide {
			continue
		}
		left := r.Right() <= a.Left()+maxOverlap
		near := a.Left()-r.Right() < maxGap
		aligned := math.Abs(r.Top()-a.Top()) < maxRowDelta
		if left && near && aligned {
			candidates = append(candidates, in)
		}
	}
	if len(candidates) == 0 {
		return automation.Element{}, false
	}
	sort.SliceStable(candidates, func(i, k int) bool { return candidates[i].Rect.Right() > candidates[k].Rect.Right() })
	return candidates[0], true
}

var amountNames = map[string]bool{"txttxnamount": true, "fldamt": true, "amt": true}

// AmountByName is the fallback when no input lines up with a Go control
func AmountByName(inputs []automation.Element) (automation.Element, bool) {
	for _, in := range inputs {
		n, id := strings.ToLower(in.Name), strings.ToLower(in.ID)
		if strings.Contains(n, "captcha") {
			continue
		}
		if amountNames[n] || strings.Contains(n, "amount") || strings.Contains(id, "amount") {
			return in, true
		}
	}
	return automation.Element{}, false
}
