package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/service"
)

// PendingExpirer is the part of the sale service the sweeper drives.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration, batch int) (service.ExpireResult, error)
}

// PendingSaleSweeper periodically rejects pending sales whose checkout was
// abandoned, returning their seats.
type PendingSaleSweeper struct {
	sales     PendingExpirer
	interval  time.Duration
	olderThan time.Duration
	batch     int
}

func NewPendingSaleSweeper(sales PendingExpirer, interval, olderThan time.Duration, batch int) *PendingSaleSweeper {
	if batch <= 0 {
		batch = 100
	}
	return &PendingSaleSweeper{
		sales:     sales,
		interval:  interval,
		olderThan: olderThan,
		batch:     batch,
	}
}

// Start blocks until ctx is cancelled.
func (w *PendingSaleSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"interval":   w.interval.String(),
		"older_than": w.olderThan.String(),
	}).Info("pending sale sweeper started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("pending sale sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep drains stale pending sales in batches until a batch comes back short.
func (w *PendingSaleSweeper) Sweep(ctx context.Context) service.ExpireResult {
	var total service.ExpireResult
	for {
		res, err := w.sales.ExpirePending(ctx, w.olderThan, w.batch)
		total.Expired += res.Expired
		total.Skipped += res.Skipped
		total.Failed += res.Failed
		if err != nil {
			logrus.WithError(err).Error("pending sale sweep failed")
			break
		}
		// failures stay pending and would come back in the next batch
		if res.Expired+res.Skipped+res.Failed < w.batch || res.Expired == 0 {
			break
		}
	}

	if total.Expired+total.Failed > 0 {
		logrus.WithFields(logrus.Fields{
			"expired": total.Expired,
			"skipped": total.Skipped,
			"failed":  total.Failed,
		}).Info("pending sale sweep completed")
	}
	if total.Failed > 0 {
		logrus.Warnf("%d pending sales failed to expire", total.Failed)
	}
	return total
}
