package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to JetStream subjects and feeds raw commands into
// the processing pipeline. Each subject carries one command type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	cmdChan   chan<- RawCommand
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

// RawCommand is a received-but-unparsed command. The pipeline parses and
// validates it before the engine sees anything.
type RawCommand struct {
	Subject     string
	CommandType string
	Data        []byte
	Received    time.Time
	AckFunc     func() // ACK after the command is parsed and applied (or deterministically rejected)
	NakFunc     func() // NAK for redelivery
}

// SubjectConfig maps a NATS subject to a command type.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Subjects end in
// a wildcard so producers can append trade or event ids for observability.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "trade.create.>", CommandType: "CreateTrade", ConsumerName: "ledger-create", StreamName: "TRADE_LIFECYCLE"},
		{Subject: "trade.execution.>", CommandType: "ExecuteTrade", ConsumerName: "ledger-execution", StreamName: "TRADE_LIFECYCLE"},
		{Subject: "trade.lifecycle.>", CommandType: "Lifecycle", ConsumerName: "ledger-lifecycle", StreamName: "TRADE_LIFECYCLE"},
		{Subject: "trade.reset.record.>", CommandType: "RecordReset", ConsumerName: "ledger-reset", StreamName: "TRADE_RESETS"},
		{Subject: "trade.reset.verify.>", CommandType: "VerifyRate", ConsumerName: "ledger-reset-verify", StreamName: "TRADE_RESETS"},
		{Subject: "trade.transfer.record.>", CommandType: "RecordTransfer", ConsumerName: "ledger-transfer", StreamName: "TRADE_TRANSFERS"},
		{Subject: "trade.transfer.settlement.>", CommandType: "Settlement", ConsumerName: "ledger-settlement", StreamName: "TRADE_TRANSFERS"},
		{Subject: "trade.termination.record.>", CommandType: "TerminateTrade", ConsumerName: "ledger-termination", StreamName: "TRADE_TERMINATIONS"},
		{Subject: "trade.termination.action.>", CommandType: "TerminationAction", ConsumerName: "ledger-term-action", StreamName: "TRADE_TERMINATIONS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, cmdChan chan<- RawCommand, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		cmdChan: cmdChan,
		log:     log,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:     msg.Subject(),
				CommandType: cfg.CommandType,
				Data:        msg.Data(),
				Received:    time.Now(),
				AckFunc:     func() { msg.Ack() },
				NakFunc:     func() { msg.Nak() },
			}

			select {
			case ns.cmdChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// EnsureStreams creates the required JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "TRADE_LIFECYCLE",
			Subjects:  []string{"trade.create.>", "trade.execution.>", "trade.lifecycle.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "TRADE_RESETS",
			Subjects:  []string{"trade.reset.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "TRADE_TRANSFERS",
			Subjects:  []string{"trade.transfer.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "TRADE_TERMINATIONS",
			Subjects:  []string{"trade.termination.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
