package analytics

import (
	"context"
	"strconv"

	"github.com/partlinq/partsearch/pkg/metrics"
	"github.com/partlinq/partsearch/pkg/natsutil"
)

// HandleClick folds a click event into the engagement store and gauges.
func (s *Service) HandleClick(ctx context.Context, ev ClickEvent) {
	s.store.RecordClick(ev.PartID)
	s.tr.recordClick(ev.RequestID, ev.Position)
	s.clicks.Inc()
	if ev.Position >= 1 && ev.Position <= maxPosition {
		s.reg.Counter(
			metrics.WithLabels("search_clicks_by_position_total", "position", strconv.Itoa(ev.Position)),
			"Result clicks by displayed position").Inc()
	}
	s.updateGauges()
	s.logger.Debug("click event",
		"requestId", ev.RequestID, "partId", ev.PartID, "position", ev.Position)
}

// HandlePurchase folds a purchase event into the engagement store and gauges.
func (s *Service) HandlePurchase(ctx context.Context, ev PurchaseEvent) {
	s.store.RecordPurchase(ev.PartID)
	s.tr.recordPurchase(ev.RequestID, ev.PartID)
	s.purchases.Inc()
	s.updateGauges()
	s.logger.Debug("purchase event",
		"requestId", ev.RequestID, "partId", ev.PartID, "quantity", ev.Quantity)
}

// PublishClick puts a click event on the bus, or handles it in-process
// when NATS is not configured.
func (s *Service) PublishClick(ctx context.Context, ev ClickEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	if s.nc == nil {
		s.HandleClick(ctx, ev)
		return nil
	}
	return natsutil.Publish(ctx, s.nc, SubjectClicks, ev)
}

// PublishPurchase puts a purchase event on the bus, or handles it
// in-process when NATS is not configured.
func (s *Service) PublishPurchase(ctx context.Context, ev PurchaseEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	if ev.Quantity <= 0 {
		ev.Quantity = 1
	}
	if s.nc == nil {
		s.HandlePurchase(ctx, ev)
		return nil
	}
	return natsutil.Publish(ctx, s.nc, SubjectPurchases, ev)
}

// SubscribeEvents registers the NATS consumers for click and purchase
// events. Call once at startup when NATS is configured.
func (s *Service) SubscribeEvents() error {
	if s.nc == nil {
		return nil
	}
	if _, err := natsutil.Subscribe(s.nc, SubjectClicks, s.HandleClick); err != nil {
		return err
	}
	if _, err := natsutil.Subscribe(s.nc, SubjectPurchases, s.HandlePurchase); err != nil {
		return err
	}
	return nil
}
