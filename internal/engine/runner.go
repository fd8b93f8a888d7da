package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	wbfretry "github.com/wb-go/wbf/retry"

	"pushplan/internal/models"
	"pushplan/internal/storage"
)

// Delivery is one resolved notification handed to the Sender.
type Delivery struct {
	Instance *models.Instance
	Content  models.Content
}

// Sender fans a dispatch tick's resolved notifications out to devices.
type Sender interface {
	Send(ctx context.Context, batch []Delivery) error
}

type RunnerConfig struct {
	// PromoteEvery is the coarse period for pulling near-term instances
	// out of the durable store.
	PromoteEvery time.Duration
	// DispatchEvery is the fine period for delivering due instances.
	DispatchEvery time.Duration
	// Lookahead is how far ahead of now promotion reaches. Must exceed
	// PromoteEvery or instances can fire unpromoted.
	Lookahead time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PromoteEvery <= 0 {
		c.PromoteEvery = 10 * time.Minute
	}
	if c.DispatchEvery <= 0 {
		c.DispatchEvery = time.Second
	}
	if c.Lookahead <= 0 {
		c.Lookahead = 15 * time.Minute
	}
	return c
}

// Stats is a snapshot of runner counters.
type Stats struct {
	Queued    int    `json:"queued"`
	Promoted  uint64 `json:"promoted"`
	Delivered uint64 `json:"delivered"`
	Cancelled uint64 `json:"cancelled"`
	SendFails uint64 `json:"send_failures"`
}

// Runner drives delivery with two loops: a coarse promotion loop that
// copies the near-future slice of the durable sorted set into the
// in-memory queue, and a fine dispatch loop that pops due instances,
// resolves content through the owning variant, and hands the batch to
// the Sender.
type Runner struct {
	store    storage.InstanceStore
	coord    *Coordinator
	sender   Sender
	queue    *deliveryQueue
	cfg      RunnerConfig
	log      zerolog.Logger
	stopChan chan struct{}
	now      func() time.Time

	promoted  atomic.Uint64
	delivered atomic.Uint64
	cancelled atomic.Uint64
	sendFails atomic.Uint64
}

func NewRunner(store storage.InstanceStore, coord *Coordinator, sender Sender, cfg RunnerConfig, log zerolog.Logger) *Runner {
	return &Runner{
		store:    store,
		coord:    coord,
		sender:   sender,
		queue:    newDeliveryQueue(),
		cfg:      cfg.withDefaults(),
		log:      log,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

func (r *Runner) Start(ctx context.Context) {
	r.PromoteDue(ctx)
	go r.promoteLoop(ctx)
	go r.dispatchLoop(ctx)
	r.log.Info().
		Dur("promote_every", r.cfg.PromoteEvery).
		Dur("dispatch_every", r.cfg.DispatchEvery).
		Dur("lookahead", r.cfg.Lookahead).
		Msg("delivery runner started")
}

func (r *Runner) Stop() {
	close(r.stopChan)
	r.log.Info().Msg("delivery runner stopped")
}

func (r *Runner) Stats() Stats {
	return Stats{
		Queued:    r.queue.Len(),
		Promoted:  r.promoted.Load(),
		Delivered: r.delivered.Load(),
		Cancelled: r.cancelled.Load(),
		SendFails: r.sendFails.Load(),
	}
}

func (r *Runner) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PromoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.PromoteDue(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.DispatchEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.DispatchDue(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PromoteDue pulls every durable instance scheduled within the
// lookahead window into the in-memory queue. Ids already queued are
// skipped; ids whose hash record is missing are dropped from the
// durable sets.
func (r *Runner) PromoteDue(ctx context.Context) {
	retryStrategy := wbfretry.Strategy{
		Attempts: 3,
		Delay:    100 * time.Millisecond,
		Backoff:  2,
	}

	cutoff := r.now().Add(r.cfg.Lookahead)

	var ids []string
	err := wbfretry.DoContext(ctx, retryStrategy, func() error {
		var qErr error
		ids, qErr = r.store.DueWithin(ctx, cutoff)
		return qErr
	})
	if err != nil {
		r.log.Error().Err(err).Msg("promotion query failed")
		return
	}

	for _, id := range ids {
		if r.queue.Contains(id) {
			continue
		}

		inst, err := r.store.GetInstance(ctx, id)
		if err != nil {
			r.log.Error().Err(err).Str("instance_id", id).Msg("failed to load instance")
			continue
		}
		if inst == nil {
			r.log.Warn().Str("instance_id", id).Msg("instance record missing, dropping")
			if err := r.store.RemoveInstance(ctx, id); err != nil {
				r.log.Error().Err(err).Str("instance_id", id).Msg("failed to drop dangling instance")
			}
			continue
		}

		if r.queue.Insert(inst) {
			r.promoted.Add(1)
		}
	}
}

// DispatchDue pops every due instance in ascending scheduled order,
// resolves content, sends the surviving batch in one Sender call, then
// runs post-send hooks and clears the durable records.
func (r *Runner) DispatchDue(ctx context.Context) {
	due := r.queue.PopDue(r.now())
	if len(due) == 0 {
		return
	}

	var batch []Delivery
	for _, inst := range due {
		handler, err := r.coord.Handler(inst.Variant)
		if err != nil {
			r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("dispatch failed")
			r.cancelled.Add(1)
			continue
		}

		resolved, err := handler.GetContent(ctx, inst)
		if err != nil {
			r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("content resolution failed")
			r.cancelled.Add(1)
			continue
		}
		if resolved == nil {
			// Entity gone or no longer actionable: the silent
			// cancellation path, not an error.
			r.log.Info().Str("instance_id", inst.ID).Msg("content vetoed, instance cancelled")
			r.cancelled.Add(1)
			continue
		}

		batch = append(batch, Delivery{Instance: inst, Content: *resolved})
	}

	if len(batch) > 0 {
		if err := r.sender.Send(ctx, batch); err != nil {
			r.sendFails.Add(1)
			r.log.Error().Err(err).Int("batch", len(batch)).Msg("send failed")
		}

		for _, d := range batch {
			r.delivered.Add(1)
			handler, err := r.coord.Handler(d.Instance.Variant)
			if err != nil {
				continue
			}
			if err := handler.OnPostSend(ctx, d.Instance); err != nil {
				r.log.Error().Err(err).Str("instance_id", d.Instance.ID).Msg("post-send hook failed")
			}
		}
	}

	for _, inst := range due {
		if err := r.store.RemoveInstance(ctx, inst.ID); err != nil {
			r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("failed to remove instance")
		}
	}
}
