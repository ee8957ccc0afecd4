// Package relay consumes queued envelopes and orchestrates the
// resolve -> query -> reply pipeline. It owns no durable state.
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relayworks/threadrelay/internal/backend"
	"github.com/relayworks/threadrelay/internal/chat"
	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/internal/policy"
	"github.com/relayworks/threadrelay/internal/queue"
	"github.com/relayworks/threadrelay/internal/registry"
	"github.com/relayworks/threadrelay/pkg/logger"
	"github.com/relayworks/threadrelay/pkg/metrics"
)

// Options configures the consumer loop.
type Options struct {
	BatchSize      int
	MaxConcurrency int
	PollInterval   time.Duration
}

// Consumer dequeues envelopes and relays them to tenant backends.
type Consumer struct {
	queue    queue.Queue
	registry registry.TenantRegistry
	backend  backend.Querier
	poster   chat.Poster
	logger   *logger.Logger
	opts     Options
}

// NewConsumer creates a relay consumer.
func NewConsumer(q queue.Queue, reg registry.TenantRegistry, be backend.Querier, poster chat.Poster, log *logger.Logger, opts Options) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Consumer{
		queue:    q,
		registry: reg,
		backend:  be,
		poster:   poster,
		logger:   log,
		opts:     opts,
	}
}

// Run polls the queue until ctx is cancelled. Envelopes within a batch
// are processed concurrently with bounded parallelism; the steps for a
// single envelope are strictly sequential.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.queue.Receive(ctx, c.opts.BatchSize)
		if err != nil {
			c.logger.Error("queue receive failed", zap.Error(err))
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if len(deliveries) == 0 {
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.MaxConcurrency)
		for _, d := range deliveries {
			d := d
			g.Go(func() error {
				c.ProcessDelivery(gctx, d)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// ProcessDelivery runs the per-envelope state machine to a terminal
// state: acked (consumed) or requeued (left for redelivery).
//
// An envelope is acked exactly when a retry could not change the
// outcome: no tenant, unparseable or low-confidence answer, or a
// successfully posted reply. Only plausibly transient failures
// (backend unreachable, reply post failed) leave it for redelivery.
func (c *Consumer) ProcessDelivery(ctx context.Context, d queue.Delivery) {
	env := d.Envelope()
	log := c.logger.WithEnvelope(env.ChannelID, env.Timestamp)

	// The queue contract allows records with empty text; they are
	// consumed without further work.
	if strings.TrimSpace(env.Text) == "" {
		c.ack(d, "discarded", log)
		return
	}

	project, ok := c.resolveTenant(ctx, env, log)
	if !ok {
		c.ack(d, "no_tenant", log)
		return
	}
	log = log.With(zap.String("project_id", project.ProjectID))

	raw, err := c.backend.Query(ctx, project, policy.BuildPrompt(env.Text))
	if err != nil {
		// A 2xx with an undecodable body is permanent; redelivering it
		// would loop forever against the same broken backend.
		var derr *backend.DecodeError
		if errors.As(err, &derr) {
			log.Warn("undecodable backend response, staying silent", zap.Error(err))
			c.ack(d, "bad_response", log)
			return
		}
		log.Error("backend query failed, leaving for redelivery", zap.Error(err))
		c.requeue(d, "requeued_backend", log)
		return
	}

	decision, err := policy.ParseDecision(raw)
	if err != nil {
		// Policy-equivalent to answered:false: silence, distinguishable
		// only in logs.
		log.Warn("undecodable backend decision, staying silent", zap.Error(err))
		c.ack(d, "parse_error", log)
		return
	}

	if !decision.Answered {
		log.Info("backend declined to answer, staying silent")
		c.ack(d, "silent", log)
		return
	}

	if err := c.poster.ReplyInThread(ctx, env.ChannelID, env.Timestamp, decision.Answer); err != nil {
		log.Error("reply post failed, leaving for redelivery", zap.Error(err))
		metrics.RepliesPostedTotal.WithLabelValues("error").Inc()
		c.requeue(d, "requeued_reply", log)
		return
	}

	metrics.RepliesPostedTotal.WithLabelValues("ok").Inc()
	c.ack(d, "replied", log)
}

// resolveTenant maps the channel to its owning project. A registry read
// failure fails open toward silence: it is logged at error level and
// treated as "no tenant configured" so a storage blip never crashes the
// pipeline or surfaces to end users.
func (c *Consumer) resolveTenant(ctx context.Context, env model.Envelope, log *logger.Logger) (model.Project, bool) {
	projects, err := c.registry.ProjectsForChannel(ctx, env.ChannelID)
	if err != nil {
		log.Error("tenant resolution failed, dropping message", zap.Error(err))
		return model.Project{}, false
	}

	// The registry returns projects most recently linked first, so the
	// pick below is deterministic: the newest active binding wins.
	for _, p := range projects {
		if p.Status == model.ProjectStatusActive {
			return p, true
		}
	}
	return model.Project{}, false
}

func (c *Consumer) ack(d queue.Delivery, outcome string, log *logger.Logger) {
	if err := d.Ack(); err != nil {
		// The work is done; redelivery after a failed ack is the
		// documented at-least-once tradeoff.
		log.Error("ack failed, message may redeliver", zap.Error(err))
		return
	}
	metrics.RecordEnvelopeOutcome(outcome)
}

func (c *Consumer) requeue(d queue.Delivery, outcome string, log *logger.Logger) {
	if err := d.Requeue(); err != nil {
		log.Error("requeue failed, visibility timeout will redeliver", zap.Error(err))
	}
	metrics.RecordEnvelopeOutcome(outcome)
}

func (c *Consumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.opts.PollInterval):
		return true
	}
}
