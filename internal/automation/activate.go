package automation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultActivationDepth bounds parent propagation of Activate
const DefaultActivationDepth = 2

// Activator clicks elements through every available channel, because target
// markup wires its handlers inconsistently and no single channel is reliable.
type Activator struct {
	Page     Page
	Clock    Clock
	MaxDepth int
	Logger   *zap.Logger
}

// NewActivator returns an activator with the default depth bound
func NewActivator(p Page, clock Clock, logger *zap.Logger) *Activator {
	return &Activator{Page: p, Clock: clock, MaxDepth: DefaultActivationDepth, Logger: logger}
}

// Activate runs the resilient activation sequence on el. Callers treat the
// result as best effort.
func (a *Activator) Activate(ctx context.Context, el Element) bool {
	return a.activate(ctx, el.Ref, 0)
}

func (a *Activator) activate(ctx context.Context, ref string, depth int) bool {
	if ref == "" || depth > a.MaxDepth {
		return false
	}

	if err := a.Page.ScrollIntoView(ctx, ref); err != nil {
		a.debug("scroll failed", ref, err)
		return false
	}
	if a.Clock.Sleep(ctx, 150*time.Millisecond) != nil {
		return false
	}

	rect, err := a.Page.Rect(ctx, ref)
	if err != nil {
		a.debug("rect failed", ref, err)
		return false
	}
	x, y := rect.Center()

	// OS-level pointer at the center and at a small offset for elements whose
	// hit target sits off their box
	if !rect.Empty() {
		if err := a.Page.PointerClick(ctx, x, y); err != nil {
			a.debug("pointer click failed", ref, err)
		}
		if a.Clock.Sleep(ctx, 50*time.Millisecond) != nil {
			return false
		}
		if err := a.Page.PointerClick(ctx, x-5, y-5); err != nil {
			a.debug("offset pointer click failed", ref, err)
		}
	}

	if err := a.Page.DispatchMouse(ctx, ref, x, y); err != nil {
		a.debug("dispatch failed", ref, err)
	}
	if err := a.Page.NativeClick(ctx, ref); err != nil {
		a.debug("native click failed", ref, err)
	}

	// Keyboard fallback for listeners bound only to key activation
	if err := a.Page.Focus(ctx, ref); err == nil {
		_ = a.Page.KeyPress(ctx, "Enter")
		if a.Clock.Sleep(ctx, 50*time.Millisecond) != nil {
			return false
		}
		_ = a.Page.KeyPress(ctx, " ")
	}

	parent, ok, err := Parent(ctx, a.Page, ref)
	if err == nil && ok && parent.Is("BUTTON", "DIV", "A") {
		a.activate(ctx, parent.Ref, depth+1)
	}
	return true
}

func (a *Activator) debug(msg, ref string, err error) {
	if a.Logger != nil {
		a.Logger.Debug(msg, zap.String("ref", ref), zap.Error(err))
	}
}
