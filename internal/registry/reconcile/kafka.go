package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"trailhead/internal/platform/config"
)

// NewProducerClient builds the client KafkaScheduler publishes with.
func NewProducerClient(cfg config.Reconcile, extra ...kgo.Opt) (*kgo.Client, error) {
	opts := append([]kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchMaxBytes(64 << 10),
	}, extra...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, nil
}

// NewConsumerClient builds a group consumer for the reconcile topic. Offsets are
// committed by Consumer after a successful rebuild.
func NewConsumerClient(cfg config.Reconcile, extra ...kgo.Opt) (*kgo.Client, error) {
	opts := append([]kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	}, extra...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic if the broker does not have it yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// KafkaScheduler publishes requests for a Consumer in any process to pick up.
type KafkaScheduler struct {
	client *kgo.Client
	topic  string
	options
}

func NewKafkaScheduler(client *kgo.Client, topic string, opts ...Option) *KafkaScheduler {
	return &KafkaScheduler{client: client, topic: topic, options: newOptions(opts)}
}

func (k *KafkaScheduler) Schedule(ctx context.Context, req Request) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = k.now().UTC()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode reconcile request: %w", err)
	}
	record := &kgo.Record{Topic: k.topic, Key: []byte(req.OrgSlug), Value: body}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		k.metrics.IncrementReconcile(req.Trigger, "publish_failed")
		return fmt.Errorf("publish reconcile request: %w", err)
	}
	k.metrics.IncrementReconcile(req.Trigger, "scheduled")
	k.logger.InfoContext(ctx, "date index rebuild scheduled",
		"trigger", req.Trigger,
		"org_slug", req.OrgSlug,
		"topic", k.topic,
	)
	return nil
}

// Consumer turns published requests into rebuilds. A burst of requests produces one
// rebuild, and requests made before the last successful rebuild started are dropped
// because that rebuild already covered them.
type Consumer struct {
	client  *kgo.Client
	rebuild RebuildFunc
	options
}

func NewConsumer(client *kgo.Client, rebuild RebuildFunc, opts ...Option) (*Consumer, error) {
	if rebuild == nil {
		return nil, ErrNoRebuild
	}
	return &Consumer{client: client, rebuild: rebuild, options: newOptions(opts)}, nil
}

// Run polls until ctx is done or the client is closed. A failed rebuild keeps its
// requests and is retried after the debounce window.
func (c *Consumer) Run(ctx context.Context) error {
	var (
		covered time.Time
		retry   []Request
	)
	for {
		pollCtx, cancel := ctx, context.CancelFunc(func() {})
		if len(retry) > 0 {
			pollCtx, cancel = context.WithTimeout(ctx, c.debounce)
		}
		fetches := c.client.PollFetches(pollCtx)
		cancel()
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.WarnContext(ctx, "reconcile fetch failed", "topic", topic, "partition", partition, "error", err)
		})

		pending := append(retry, c.decode(ctx, fetches.Records(), covered)...)
		if len(pending) == 0 {
			c.commit(ctx)
			continue
		}
		if !sleep(ctx, c.debounce) {
			return nil
		}

		start := c.now()
		if err := c.rebuild(ctx); err != nil {
			c.metrics.IncrementReconcile(TriggerKafka, "error")
			c.logger.ErrorContext(ctx, "date index rebuild failed", "requests", len(pending), "error", err)
			retry = pending
			continue
		}
		c.metrics.IncrementReconcile(TriggerKafka, "ok")
		c.logger.InfoContext(ctx, "date index rebuilt",
			"requests", len(pending),
			"duration_ms", c.now().Sub(start).Milliseconds(),
		)
		retry = nil
		covered = start
		c.commit(ctx)
	}
}

// decode drops malformed records and requests already covered by a rebuild that
// started at covered.
func (c *Consumer) decode(ctx context.Context, records []*kgo.Record, covered time.Time) []Request {
	var out []Request
	for _, record := range records {
		var req Request
		if err := json.Unmarshal(record.Value, &req); err != nil {
			c.logger.WarnContext(ctx, "skipping malformed reconcile request", "offset", record.Offset, "error", err)
			continue
		}
		if !covered.IsZero() && req.RequestedAt.Before(covered) {
			continue
		}
		out = append(out, req)
	}
	return out
}

func (c *Consumer) commit(ctx context.Context) {
	if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
		c.logger.WarnContext(ctx, "commit reconcile offsets failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
