package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"TradeLedger/internal/core"
	"TradeLedger/internal/observability"
)

// Publisher emits notices about committed operations to NATS for downstream
// consumers. Notices are best-effort: the internal queue is non-blocking and
// drops under load, and consumers that need completeness read the ledger.
// Subjects follow the pattern: trade.ledger.notices.{operation}.{trade_id}
type Publisher struct {
	js      jetstream.JetStream
	queue   chan Notice
	log     zerolog.Logger
	metrics *observability.Metrics
}

// Notice is the outbound summary of one committed operation.
type Notice struct {
	Operation string    `json:"operation"`
	TradeID   string    `json:"trade_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPublisher(js jetstream.JetStream, queueSize int, log zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:      js,
		queue:   make(chan Notice, queueSize),
		log:     log,
		metrics: metrics,
	}
}

// Notify enqueues a notice for a committed output without blocking the
// caller.
func (p *Publisher) Notify(out *core.Output) {
	notice := Notice{
		Operation: out.Operation,
		Timestamp: time.Now(),
	}
	if out.Snapshot != nil {
		notice.TradeID = out.Snapshot.TradeID
		notice.State = out.Snapshot.State.String()
	}
	if out.Record != nil {
		notice.TradeID = out.Record.TradeID
		notice.EventID = out.Record.EventID
	}

	select {
	case p.queue <- notice:
	default:
		if p.metrics != nil {
			p.metrics.PublishDrops.Inc()
		}
	}
}

// Run starts the publisher loop.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notice, ok := <-p.queue:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, notice); err != nil {
				// Non-fatal: consumers can query the ledger directly.
				p.log.Warn().Err(err).Str("operation", notice.Operation).Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, notice Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	subject := fmt.Sprintf("trade.ledger.notices.%s", notice.Operation)
	if notice.TradeID != "" {
		subject = fmt.Sprintf("%s.%s", subject, notice.TradeID)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureNoticeStream creates the outbound notices stream.
func EnsureNoticeStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "TRADE_LEDGER_NOTICES",
		Subjects:  []string{"trade.ledger.notices.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create notices stream: %w", err)
	}
	log.Info().Msg("ensured stream TRADE_LEDGER_NOTICES")
	return nil
}
