package node

import (
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/pkg/log"
	"github.com/eigerco/auditor/pkg/natsbus"
)

type outbound struct {
	name string
	body []byte
}

// publisher forwards persisted events to the bus from its own goroutine so
// a slow broker never holds up a step.
type publisher struct {
	bus   *natsbus.Bus
	queue chan outbound
}

func newPublisher(bus *natsbus.Bus, size int) *publisher {
	return &publisher{bus: bus, queue: make(chan outbound, size)}
}

// enqueue drops the event when the queue is full.
func (p *publisher) enqueue(e events.Event) {
	body, err := events.Encode(e)
	if err != nil {
		log.Events.Error().Err(err).Str("kind", e.Kind().String()).Msg("unable to encode event")
		return
	}
	select {
	case p.queue <- outbound{name: e.Kind().String(), body: body}:
	default:
		log.Events.Warn().Str("kind", e.Kind().String()).Msg("publish queue full, event dropped")
	}
}

// run publishes until done is closed, then drains the queue.
func (p *publisher) run(done <-chan struct{}) error {
	for {
		select {
		case <-done:
			p.drain()
			return nil
		case m := <-p.queue:
			p.publish(m)
		}
	}
}

func (p *publisher) drain() {
	for {
		select {
		case m := <-p.queue:
			p.publish(m)
		default:
			if err := p.bus.Flush(); err != nil {
				log.Events.Warn().Err(err).Msg("unable to flush event bus")
			}
			return
		}
	}
}

func (p *publisher) publish(m outbound) {
	if err := p.bus.Publish(m.name, m.body); err != nil {
		log.Events.Error().Err(err).Str("kind", m.name).Msg("unable to publish event")
	}
}
