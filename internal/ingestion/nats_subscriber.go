package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds commands
// into the deterministic core via the eventChan.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the received-but-untyped command from NATS, ready for the
// shell to parse into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the core accepted (or deduplicated) the command
	NakFunc   func() // NAK on failure, NATS redelivers
}

// SubjectConfig maps a NATS subject to a command type.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject layout. Each command type has
// its own subject so consumers scale independently; prices get a dedicated
// stream because they dominate message volume.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "synth.reserve.endow.>", EventType: "EndowReserve", ConsumerName: "ledger-endow", StreamName: "SYNTH_TRANSFERS"},
		{Subject: "synth.reserve.transfer.>", EventType: "TransferReserve", ConsumerName: "ledger-reserve-transfer", StreamName: "SYNTH_TRANSFERS"},
		{Subject: "synth.nomin.transfer.>", EventType: "TransferSynth", ConsumerName: "ledger-synth-transfer", StreamName: "SYNTH_TRANSFERS"},
		{Subject: "synth.issuance.issue.>", EventType: "IssueSynths", ConsumerName: "ledger-issue", StreamName: "SYNTH_ISSUANCE"},
		{Subject: "synth.issuance.burn.>", EventType: "BurnSynths", ConsumerName: "ledger-burn", StreamName: "SYNTH_ISSUANCE"},
		{Subject: "synth.issuance.withdraw.>", EventType: "WithdrawFees", ConsumerName: "ledger-withdraw-fees", StreamName: "SYNTH_ISSUANCE"},
		{Subject: "synth.prices.>", EventType: "PriceUpdate", ConsumerName: "ledger-prices", StreamName: "SYNTH_PRICES"},
		{Subject: "synth.rewards.fee.>", EventType: "RecordExchangeFee", ConsumerName: "ledger-reward-fee", StreamName: "SYNTH_REWARDS"},
		{Subject: "synth.rewards.funding.>", EventType: "NotifyRewardFunding", ConsumerName: "ledger-reward-funding", StreamName: "SYNTH_REWARDS"},
		{Subject: "synth.rewards.claim.>", EventType: "ClaimRewards", ConsumerName: "ledger-reward-claim", StreamName: "SYNTH_REWARDS"},
		{Subject: "synth.futures.submit.>", EventType: "SubmitOrder", ConsumerName: "ledger-order-submit", StreamName: "SYNTH_FUTURES"},
		{Subject: "synth.futures.confirm.>", EventType: "ConfirmOrder", ConsumerName: "ledger-order-confirm", StreamName: "SYNTH_FUTURES"},
		{Subject: "synth.futures.cancel.>", EventType: "CancelOrder", ConsumerName: "ledger-order-cancel", StreamName: "SYNTH_FUTURES"},
		{Subject: "synth.admin.param.>", EventType: "ParamUpdate", ConsumerName: "ledger-param", StreamName: "SYNTH_ADMIN"},
		{Subject: "synth.admin.issuer.>", EventType: "SetIssuer", ConsumerName: "ledger-issuer", StreamName: "SYNTH_ADMIN"},
		{Subject: "synth.admin.freeze.>", EventType: "FreezeAccount", ConsumerName: "ledger-freeze", StreamName: "SYNTH_ADMIN"},
		{Subject: "synth.admin.escrow.>", EventType: "CreditEscrow", ConsumerName: "ledger-escrow", StreamName: "SYNTH_ADMIN"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
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
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "SYNTH_TRANSFERS",
			Subjects:  []string{"synth.reserve.>", "synth.nomin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYNTH_ISSUANCE",
			Subjects:  []string{"synth.issuance.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYNTH_PRICES",
			Subjects:  []string{"synth.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYNTH_REWARDS",
			Subjects:  []string{"synth.rewards.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYNTH_FUTURES",
			Subjects:  []string{"synth.futures.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYNTH_ADMIN",
			Subjects:  []string{"synth.admin.>"},
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
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
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
