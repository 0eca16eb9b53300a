//go:build integration

package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"trailhead/internal/platform/config"
	"trailhead/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	cfg config.Reconcile
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	rp := containers.GetManager().GetRedpanda(s.T())
	s.cfg = config.Reconcile{
		Mode:     "kafka",
		Brokers:  rp.Brokers,
		Topic:    "trailhead.reconcile." + uuid.NewString()[:8],
		Group:    "trailhead-test-" + uuid.NewString()[:8],
		Debounce: config.Duration(50 * time.Millisecond),
	}
}

func (s *KafkaSuite) TestPublishedBurstCoalescesIntoOneRebuild() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := NewProducerClient(s.cfg)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(EnsureTopic(ctx, producer, s.cfg.Topic, 1, 1))
	s.Require().NoError(EnsureTopic(ctx, producer, s.cfg.Topic, 1, 1), "existing topic is not an error")

	scheduler := NewKafkaScheduler(producer, s.cfg.Topic)
	for _, slug := range []string{"acme", "globex", "initech"} {
		s.Require().NoError(scheduler.Schedule(ctx, Request{Trigger: TriggerIndexFailure, OrgSlug: slug}))
	}

	consumerClient, err := NewConsumerClient(s.cfg)
	s.Require().NoError(err)
	defer consumerClient.Close()

	var rebuilds atomic.Int32
	consumer, err := NewConsumer(consumerClient, func(context.Context) error {
		rebuilds.Add(1)
		return nil
	}, WithDebounce(s.cfg.Debounce.Std()))
	s.Require().NoError(err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	s.Eventually(func() bool { return rebuilds.Load() >= 1 }, 20*time.Second, 50*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	stop()
	s.NoError(<-done)
	s.LessOrEqual(rebuilds.Load(), int32(3))
}
