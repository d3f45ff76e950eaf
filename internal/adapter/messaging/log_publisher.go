package messaging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

// LogPublisher writes events to the application log. Used when no broker is
// configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.SaleEvent) error {
	p.logger.WithFields(logrus.Fields{
		"type":        event.Type,
		"sale_id":     event.SaleID,
		"sale_number": event.SaleNumber,
		"listing_id":  event.ListingID,
		"from":        event.From,
		"to":          event.To,
		"total":       event.Total,
	}).Info("sale event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
