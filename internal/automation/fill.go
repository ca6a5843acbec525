package automation

import "context"

// FillEvents selects which events accompany a programmatic value write
type FillEvents uint16

const (
	EvFocus   FillEvents = 1 << iota // call focus() before writing
	EvAttr                           // mirror the value into the value attribute
	EvInput                          // dispatch input
	EvChange                         // dispatch change
	EvBlur                           // dispatch a blur event
	EvKeys                           // dispatch keydown, keypress and keyup
	EvUnfocus                        // call blur() after writing
)

var (
	// BasicEvents is the input/change/blur trio most frameworks listen to
	BasicEvents = EvInput | EvChange | EvBlur
	// FullEvents also simulates focus and keystrokes for listeners that only
	// react to keyboard activity
	FullEvents = EvFocus | EvInput | EvChange | EvBlur | EvKeys | EvUnfocus
	// FormEvents mirrors the value into the attribute for legacy form scripts
	FormEvents = EvFocus | EvAttr | EvInput | EvChange | EvBlur
)

// Has reports whether all bits of o are set
func (e FillEvents) Has(o FillEvents) bool {
	return e&o == o
}

// Fill writes value into el unless it already holds it. It reports whether a
// write happened.
func Fill(ctx context.Context, a Actor, el Element, value string, ev FillEvents) (bool, error) {
	if el.Value == value {
		return false, nil
	}
	if err := a.SetValue(ctx, el.Ref, value, ev); err != nil {
		return false, err
	}
	return true, nil
}
