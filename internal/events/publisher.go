package events

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
)

// Publisher sends events through a sarama AsyncProducer. Publish never
// blocks; when the buffer is full the event is dropped and counted.
type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	zl      *zerolog.Logger
	stopped chan struct{}
}

func NewPublisher(cfg Config, zl *zerolog.Logger) (*Publisher, error) {
	cfg = cfg.withDefaults()

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.Return.Errors = true
	sc.Producer.Return.Successes = false
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return newPublisher(prod, cfg.Topic, cfg.QueueSize, zl), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, zl *zerolog.Logger) *Publisher {
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		zl:      zl,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				observability.ObserveFacilityEvent("out", ev.Op, err)
				p.zl.Error().Err(err).Str("facility_id", ev.FacilityID).Msg("encode facility event")
				continue
			}
			// keyed by facility so one facility's events stay ordered
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic:    p.topic,
				Key:      sarama.StringEncoder(ev.FacilityID),
				Value:    sarama.ByteEncoder(b),
				Metadata: ev.Op,
			}
			observability.ObserveFacilityEvent("out", ev.Op, nil)
		}
	}()

	go func() {
		for perr := range p.prod.Errors() {
			if perr == nil {
				continue
			}
			var op string
			if perr.Msg != nil {
				op, _ = perr.Msg.Metadata.(string)
			}
			observability.ObserveFacilityEvent("out", op, perr.Err)
			p.zl.Warn().Err(perr.Err).Str("topic", p.topic).Msg("facility event not delivered")
		}
	}()

	return p
}

// Publish enqueues ev and reports whether it was accepted.
func (p *Publisher) Publish(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	default:
		observability.IncFacilityEventDropped(ev.Op)
		p.zl.Warn().Str("op", ev.Op).Str("facility_id", ev.FacilityID).Msg("facility event queue full, dropping")
		return false
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}
