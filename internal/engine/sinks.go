package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// orderSink upserts crawled orders under the runner's account and forwards
// them to observers
type orderSink struct{ r *Runner }

func (s orderSink) SaveOrders(ctx context.Context, orders []models.ScrapedOrder) error {
	if s.r.deps.Orders != nil {
		n, err := s.r.deps.Orders.UpsertOrders(ctx, s.r.accountID, orders)
		if err != nil {
			return fmt.Errorf("failed to store orders: %w", err)
		}
		s.r.deps.Metrics.AddOrders(n)
	}
	s.r.emitter.Orders(orders)
	return nil
}

// cardSink snapshots the card region from the live page and stores the card
type cardSink struct{ r *Runner }

func (s cardSink) SaveCard(ctx context.Context, card *models.Card, region *models.Region) error {
	var png []byte
	if region != nil {
		clip := automation.Rect{X: region.X, Y: region.Y, Width: region.Width, Height: region.Height}
		b, err := s.r.page.Capture(ctx, &clip)
		if err != nil {
			s.r.logger.Warn("⚠️ Card snapshot failed", zap.Error(err))
		} else {
			png = b
		}
	}
	if s.r.deps.Cards == nil {
		return fmt.Errorf("no card store configured")
	}
	if err := s.r.deps.Cards.Save(ctx, card, region, png); err != nil {
		return fmt.Errorf("failed to store card: %w", err)
	}
	s.r.deps.Metrics.IncCards()
	return nil
}
