package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/cartloom/rewards/internal/app/domain/settlement"
	"github.com/cartloom/rewards/internal/app/metrics"
	"github.com/cartloom/rewards/internal/app/storage"
	"github.com/cartloom/rewards/internal/app/system"
	"github.com/cartloom/rewards/pkg/logger"
)

// maxAttempts bounds retries for a failing order before it is parked as
// failed for operator attention.
const maxAttempts = 5

// Poller drains the pending settlement queue on an interval, applying each
// order through the settlement service. Failed orders back off and retry up
// to maxAttempts.
type Poller struct {
	queue    storage.SettlementStore
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Poller)(nil)

// NewPoller builds the queue drainer. interval <= 0 selects the default.
func NewPoller(queue storage.SettlementStore, service *Service, interval time.Duration, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewDefault("settlement-poller")
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		queue:       queue,
		service:     service,
		interval:    interval,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

func (p *Poller) Name() string { return "settlement-poller" }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.Info("settlement poller started")
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *Poller) tick(ctx context.Context) {
	pending, err := p.queue.ListPendingSettlements(ctx)
	if err != nil {
		p.log.WithError(err).Warn("list pending settlements failed")
		return
	}

	now := time.Now()
	for _, ord := range pending {
		if ctx.Err() != nil {
			return
		}
		if !p.shouldAttempt(ord.ID, now) {
			continue
		}

		if err := p.service.Process(ctx, ord); err != nil {
			p.handleFailure(ctx, ord, err)
			continue
		}

		if err := p.queue.MarkSettlement(ctx, ord.ID, settlement.StatusProcessed, ord.Attempts+1, ""); err != nil {
			p.log.WithError(err).Warnf("mark settlement %s processed failed", ord.OrderID)
			p.scheduleNext(ord.ID, 0)
			continue
		}
		metrics.RecordSettlement("processed")
		p.clearSchedule(ord.ID)
	}
}

func (p *Poller) handleFailure(ctx context.Context, ord settlement.Order, cause error) {
	attempts := ord.Attempts + 1
	if attempts >= maxAttempts {
		if err := p.queue.MarkSettlement(ctx, ord.ID, settlement.StatusFailed, attempts, cause.Error()); err != nil {
			p.log.WithError(err).Warnf("mark settlement %s failed errored", ord.OrderID)
			p.scheduleNext(ord.ID, 0)
			return
		}
		metrics.RecordSettlement("failed")
		p.log.WithError(cause).
			WithField("order_id", ord.OrderID).
			WithField("attempts", attempts).
			Warn("settlement parked after repeated failures")
		p.clearSchedule(ord.ID)
		return
	}

	if err := p.queue.MarkSettlement(ctx, ord.ID, settlement.StatusPending, attempts, cause.Error()); err != nil {
		p.log.WithError(err).Warnf("record settlement %s attempt failed", ord.OrderID)
	}
	metrics.RecordSettlement("retried")
	p.log.WithError(cause).
		WithField("order_id", ord.OrderID).
		WithField("attempts", attempts).
		Warn("settlement attempt failed, will retry")
	// Linear backoff keyed on the attempt count.
	p.scheduleNext(ord.ID, time.Duration(attempts)*p.interval)
}

func (p *Poller) shouldAttempt(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[id]
	return !ok || now.After(next)
}

func (p *Poller) scheduleNext(id string, after time.Duration) {
	if after <= 0 {
		after = p.interval
	}
	p.mu.Lock()
	p.nextAttempt[id] = time.Now().Add(after)
	p.mu.Unlock()
}

func (p *Poller) clearSchedule(id string) {
	p.mu.Lock()
	delete(p.nextAttempt, id)
	p.mu.Unlock()
}
