package prewarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
)

// runTimeout bounds one scheduled prewarm
const runTimeout = 2 * time.Minute

// KeepWarm repeats the synthetic inference on a cron schedule
type KeepWarm struct {
	cron    *cron.Cron
	holder  *ocr.Holder
	metrics *observability.Metrics
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	running bool
	runs    int
}

// NewKeepWarm parses schedule and prepares the scheduler. Both 5-field and 6-field
// (leading seconds) expressions and descriptors such as "@every 5m" are accepted.
func NewKeepWarm(schedule string, holder *ocr.Holder, metrics *observability.Metrics) (*KeepWarm, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	ctx, cancel := context.WithCancel(context.Background())
	k := &KeepWarm{
		cron:    cron.New(cron.WithParser(parser)),
		holder:  holder,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := k.cron.AddFunc(schedule, k.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid keep-warm schedule %q: %w", schedule, err)
	}
	return k, nil
}

// Start begins running the schedule in the background
func (k *KeepWarm) Start() {
	log.Info().Msg("Starting keep-warm scheduler")
	k.cron.Start()
}

// Stop halts the schedule and waits for a running prewarm, up to ctx's deadline
func (k *KeepWarm) Stop(ctx context.Context) {
	log.Info().Msg("Stopping keep-warm scheduler")
	k.cancel()

	select {
	case <-k.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("Keep-warm scheduler stop timed out")
	}
}

// Runs reports how many scheduled prewarms have started
func (k *KeepWarm) Runs() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.runs
}

func (k *KeepWarm) tick() {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		log.Debug().Msg("Skipping keep-warm run, previous run still active")
		return
	}
	k.running = true
	k.runs++
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.running = false
		k.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(k.ctx, runTimeout)
	defer cancel()
	_ = Run(ctx, k.holder, k.metrics)
}
