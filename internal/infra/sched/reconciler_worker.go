package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	ucport "telegram-access-subscription/internal/domain/ports/usecase"
	"telegram-access-subscription/internal/infra/logging"
	"telegram-access-subscription/internal/infra/metrics"
)

const gaugeTimeout = 10 * time.Second

// ReconcilerWorker runs reconciler passes on a ticker and on demand. Ticks
// that arrive while a pass is running are dropped, never queued.
type ReconcilerWorker struct {
	interval    time.Duration
	passTimeout time.Duration
	guard       PassGuard
	reconciler  ucport.Reconciler
	subs        repository.SubscriptionRepository
	log         *zerolog.Logger
}

func NewReconcilerWorker(
	interval, passTimeout time.Duration,
	guard PassGuard,
	reconciler ucport.Reconciler,
	subs repository.SubscriptionRepository,
	logger *zerolog.Logger,
) *ReconcilerWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if guard == nil {
		guard = NewLocalGuard()
	}
	l := logger.With().Str("component", "ReconcilerWorker").Logger()
	return &ReconcilerWorker{
		interval:    interval,
		passTimeout: passTimeout,
		guard:       guard,
		reconciler:  reconciler,
		subs:        subs,
		log:         &l,
	}
}

func (w *ReconcilerWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reconciler worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconciler worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, domain.ErrPassInProgress) {
				w.log.Error().Err(err).Msg("reconciler pass error")
			}
		}
	}
}

// RunOnce executes a single pass unless one is already running, in which
// case it returns ErrPassInProgress immediately.
func (w *ReconcilerWorker) RunOnce(ctx context.Context) (model.PassReport, error) {
	release, ok, err := w.guard.Acquire(ctx)
	if err != nil {
		return model.PassReport{}, err
	}
	if !ok {
		metrics.IncPassSkipped()
		w.log.Warn().Msg("reconciler pass skipped: previous pass still running")
		return model.PassReport{}, domain.ErrPassInProgress
	}
	defer release()
	defer logging.TraceDuration(w.log, "reconciler.pass")()

	passCtx := ctx
	if w.passTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, w.passTimeout)
		defer cancel()
	}

	report, err := w.reconciler.RunPass(passCtx)
	metrics.ObservePass(report.Duration, err)
	if report.Expired > 0 {
		metrics.IncSubscriptionsExpired(report.Expired)
	}
	metrics.AddReconcilerItems("expire", report.Expired)
	metrics.AddReconcilerItems("notify", report.Notified)
	metrics.AddReconcilerItems("access", report.AccessReconciled)
	metrics.AddReconcilerItems("housekeeping", int(report.StatesPurged))

	w.refreshGauge(ctx)
	return report, err
}

// refreshGauge runs after the pass on its own deadline, so a pass that used
// up its timeout still updates the status gauge.
func (w *ReconcilerWorker) refreshGauge(ctx context.Context) {
	if w.subs == nil {
		return
	}
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gaugeTimeout)
	defer cancel()
	counts, err := w.subs.CountByStatus(gctx, repository.NoTX)
	if err != nil {
		w.log.Warn().Err(err).Msg("subscription gauge refresh failed")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}
