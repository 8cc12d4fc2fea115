package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

// Invalidator drops cached entries for cells.
type Invalidator interface {
	Invalidate(ctx context.Context, cells ...spatial.CellID) error
}

type HotnessResetter interface {
	Reset(cells ...string)
}

// Consumer applies facility events from a consumer group. A message is
// marked only after its cells were invalidated, so a failed Redis call is
// retried on the next session.
type Consumer struct {
	log      *slog.Logger
	cfg      Config
	inv      Invalidator
	hot      HotnessResetter
	dedupe   *offsetDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type ConsumerOptions struct {
	Logger  *slog.Logger
	Hotness HotnessResetter
	// DedupeSize is the number of partitions whose last applied offset is remembered.
	DedupeSize int
}

func NewConsumer(cfg Config, inv Invalidator, opts ConsumerOptions) *Consumer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Consumer{
		log:    opts.Logger,
		cfg:    cfg.withDefaults(),
		inv:    inv,
		hot:    opts.Hotness,
		dedupe: newOffsetDedupe(opts.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("facility event consumer disabled")
		return nil
	}
	if c.inv == nil {
		return errors.New("events consumer: invalidator is required")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("events consumer: no brokers configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	sc.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, sc)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := c.handler()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.log.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				c.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			c.log.Error("kafka group error", "err", err)
		}
	}()

	c.log.Info("facility event consumer started",
		"topic", c.cfg.Topic, "group", c.cfg.GroupID, "brokers", c.cfg.Brokers)
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.log.Info("facility event consumer stopped")
}

// Readiness reports whether the group currently owns partitions.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.assigned.Store(true)
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assigned.Store(false)
			c.assign = map[int32]struct{}{}
		},
		process: c.handleMessage,
		log:     c.log,
	}
}

// errPoison marks messages that can never succeed; they are logged and
// marked so the partition keeps moving.
var errPoison = errors.New("undecodable event")

func (c *Consumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if !msg.Timestamp.IsZero() {
		observability.SetEventLagSeconds(time.Since(msg.Timestamp).Seconds())
	}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveFacilityEvent("in", "unknown", err)
		return fmt.Errorf("%w: decode: %v", errPoison, err)
	}
	if err := ev.Validate(); err != nil {
		observability.ObserveFacilityEvent("in", ev.Op, err)
		return fmt.Errorf("%w: validate: %v", errPoison, err)
	}
	if c.dedupe.seen(msg.Topic, msg.Partition, msg.Offset) {
		c.log.Debug("skipping redelivered facility event",
			"facility_id", ev.FacilityID, "partition", msg.Partition, "offset", msg.Offset)
		return nil
	}

	cells, _ := ev.CellIDs()
	if err := c.inv.Invalidate(ctx, cells...); err != nil {
		observability.ObserveFacilityEvent("in", ev.Op, err)
		return fmt.Errorf("invalidate %d cells: %w", len(cells), err)
	}
	if c.hot != nil && len(ev.Cells) > 0 {
		c.hot.Reset(ev.Cells...)
	}
	c.dedupe.record(msg.Topic, msg.Partition, msg.Offset)
	observability.ObserveFacilityEvent("in", ev.Op, nil)

	c.log.Debug("facility event applied",
		"op", ev.Op, "facility_id", ev.FacilityID, "cells", len(ev.Cells),
		"partition", msg.Partition, "offset", msg.Offset)
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
	log     *slog.Logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			if !errors.Is(err, errPoison) {
				return err
			}
			if h.log != nil {
				h.log.Warn("dropping facility event", "err", err,
					"partition", msg.Partition, "offset", msg.Offset)
			}
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
