package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dispatch/internal/metrics"
	"dispatch/internal/redis"
)

// OfferSweepJob periodically clears expired offer references out of
// the courier offer sets. Expired offers are already invisible to
// reads; the sweep keeps the sets from accumulating dead members
// for couriers who never poll.
type OfferSweepJob struct {
	offers redis.OfferStoreInterface
	cron   *cron.Cron
	logger *zap.Logger
}

// NewOfferSweepJob creates a sweep job running once a minute.
func NewOfferSweepJob(offers redis.OfferStoreInterface, logger *zap.Logger) *OfferSweepJob {
	return &OfferSweepJob{
		offers: offers,
		cron:   cron.New(),
		logger: logger.With(zap.String("component", "offer_sweep_job")),
	}
}

// Start schedules the sweep.
func (j *OfferSweepJob) Start() error {
	_, err := j.cron.AddFunc("* * * * *", func() {
		ctx := context.Background()
		removed, err := j.offers.Sweep(ctx)
		if err != nil {
			j.logger.Error("offer sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			metrics.OffersSweptTotal.Add(float64(removed))
			j.logger.Info("offer sweep done", zap.Int("removed", removed))
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("offer sweep job started")
	return nil
}

// Stop halts the sweep schedule.
func (j *OfferSweepJob) Stop() {
	j.cron.Stop()
	j.logger.Info("offer sweep job stopped")
}
