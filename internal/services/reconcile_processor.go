package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kas/internal/ledger"
	"kas/internal/log"
)

// OwnerLister enumerates the owners that have a ledger.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// Reconciler is the part of LedgerService the processor drives.
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID string) (ledger.Result, error)
}

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// Interval is how often every owner is reconciled (default: 1h)
	Interval time.Duration

	// Concurrency bounds how many owners are reconciled at once (default: 4)
	Concurrency int
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		Interval:    time.Hour,
		Concurrency: 4,
	}
}

// ReconcileProcessor periodically backfills every owner's current window so
// a new month's lines exist before anyone opens the ledger.
type ReconcileProcessor struct {
	owners     OwnerLister
	reconciler Reconciler
	config     ReconcileProcessorConfig
	logger     *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(owners OwnerLister, reconciler Reconciler, config ReconcileProcessorConfig, logger *log.Logger) *ReconcileProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcileProcessorConfig().Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultReconcileProcessorConfig().Concurrency
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ReconcileProcessor{
		owners:     owners,
		reconciler: reconciler,
		config:     config,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// RunOnce reconciles every owner and returns how many lines were created.
// A failing owner is logged and skipped; the others still run.
func (p *ReconcileProcessor) RunOnce(ctx context.Context) (int, error) {
	owners, err := p.owners.ListOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}

	var created, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			res, err := p.reconciler.Reconcile(gctx, owner)
			if err != nil {
				failed.Add(1)
				log.NewStructuredLogger(p.logger).LogError(gctx, "Owner reconciliation failed", err,
					log.ComponentWorker, log.OpReconcile, log.NewFields().WithOwner(owner))
				return nil
			}
			created.Add(int64(len(res.Created)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}

	p.logger.InfoContext(ctx, "Reconciliation sweep complete",
		"owners", len(owners),
		log.FieldCreated, created.Load(),
		"failed", failed.Load())
	return int(created.Load()), ctx.Err()
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval,
		"concurrency", p.config.Concurrency)
	return nil
}

// Stop gracefully stops the processor and waits for the current sweep.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *ReconcileProcessor) sweep(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	if _, err := p.RunOnce(runCtx); err != nil && runCtx.Err() == nil {
		p.logger.ErrorContext(ctx, "Reconciliation sweep failed", log.FieldError, err)
	}
}
