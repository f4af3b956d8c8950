package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"TradeLedger/internal/core"
	"TradeLedger/internal/observability"
)

// Pipeline drains raw commands, parses them, and applies them to the engine.
// Both parse failures and engine rejections are deterministic: redelivering
// the same bytes cannot succeed, so the message is ACKed either way and the
// outcome is logged. NAK is reserved for shutdown.
type Pipeline struct {
	engine    *core.Engine
	cmdChan   <-chan RawCommand
	publisher *Publisher
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewPipeline(
	engine *core.Engine,
	cmdChan <-chan RawCommand,
	publisher *Publisher,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		engine:    engine,
		cmdChan:   cmdChan,
		publisher: publisher,
		log:       log,
		metrics:   metrics,
	}
}

// Run processes commands until ctx is cancelled or the channel closes.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-p.cmdChan:
			if !ok {
				return nil
			}
			p.process(raw)
		}
	}
}

func (p *Pipeline) process(raw RawCommand) {
	if p.metrics != nil {
		p.metrics.IngestReceived.WithLabelValues(raw.CommandType).Inc()
		p.metrics.NATSPullLatency.WithLabelValues(raw.CommandType).Observe(time.Since(raw.Received).Seconds())
	}

	cmd, err := ParseCommand(raw.CommandType, raw.Data)
	if err != nil {
		p.log.Warn().Err(err).Str("subject", raw.Subject).Msg("command parse failed")
		if p.metrics != nil {
			p.metrics.IngestRejected.WithLabelValues(raw.CommandType, "parse").Inc()
		}
		raw.AckFunc()
		return
	}

	out, err := cmd.Apply(p.engine)
	if err != nil {
		// The engine already classified and counted the rejection.
		p.log.Debug().Err(err).Str("kind", cmd.Kind()).Msg("command rejected")
		if p.metrics != nil {
			p.metrics.IngestRejected.WithLabelValues(raw.CommandType, "apply").Inc()
		}
		raw.AckFunc()
		return
	}

	raw.AckFunc()
	if p.publisher != nil {
		p.publisher.Notify(out)
	}
}
