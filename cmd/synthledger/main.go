package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"SynthLedger/internal/config"
	"SynthLedger/internal/core"
	"SynthLedger/internal/event"
	"SynthLedger/internal/ingestion"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/persistence"
	"SynthLedger/internal/projection"
	"SynthLedger/internal/query"
	"SynthLedger/internal/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: SynthLedger starting...")

	configPath := flag.String("config", os.Getenv("SYNTH_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	coreCfg, err := cfg.CoreConfig()
	if err != nil {
		log.Fatalf("FATAL: protocol config: %v", err)
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Readiness is gated on every component; /readyz stays 503 until the
	// last one reports in.
	healthChecker := observability.NewHealthChecker("postgres", "nats", "core")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	healthChecker.SetComponent("postgres", true)
	log.Println("INFO: Postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.Persistence.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Printf("WARN: failed to load snapshot: %v", err)
	}
	if snap != nil && snap.State != nil {
		startSequence = snap.State.Sequence + 1
		log.Printf("INFO: loaded snapshot at sequence %d", snap.State.Sequence)
	} else {
		snap = nil
		log.Println("INFO: no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// The persist channel blocks (backpressure stalls the core); the
	// projection side drops and repairs on the next touch.
	persistChan := make(chan core.CoreOutput, cfg.Channels.PersistSize)
	projectionFan := make(chan core.CoreOutput, cfg.Channels.ProjectionSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	// --- Observability ---
	metrics := observability.NewMetrics()

	// --- Deterministic core ---
	deterministicCore, err := core.NewDeterministicCore(
		coreCfg,
		startSequence,
		persistChan,
		projectionFan,
		dbChecker,
		metrics,
	)
	if err != nil {
		log.Fatalf("FATAL: core init: %v", err)
	}

	if snap != nil {
		if err := deterministicCore.RestoreFromSnapshot(snap.State); err != nil {
			log.Fatalf("FATAL: snapshot restore: %v", err)
		}
		log.Printf("INFO: restored in-memory state from snapshot at sequence %d", snap.State.Sequence)

		if len(snap.State.IdempotencyKeys) > 0 {
			log.Printf("INFO: warming LRU with %d keys from snapshot", len(snap.State.IdempotencyKeys))
			deterministicCore.WarmLRU(snap.State.IdempotencyKeys)
		}
	}

	errChan := make(chan error, 10)

	// --- Persistence worker ---
	// Started before replay: replayed commands re-enter the persist path,
	// and the conflict-free insert drops the rows already in the log.
	persistWorker := persistence.NewPersistenceWorker(
		db, persistChan, cfg.Persistence.BatchSize, cfg.FlushTimeout(), metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	// --- Projection fan-out: worker + WebSocket hub ---
	hub := server.NewWSHub()
	go hub.Run()

	publishChan := make(chan ingestion.PublishableEvent, cfg.Channels.IngestSize)

	projectionChan := make(chan core.CoreOutput, cfg.Channels.ProjectionSize)
	projWorker := projection.NewProjectionWorker(db, projectionChan)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()
	go fanOutProjections(ctx, projectionFan, projectionChan, hub, publishChan)

	// --- Event replay ---
	replayCount, err := replayEventsFromLog(ctx, snapMgr, deterministicCore, startSequence)
	if err != nil {
		log.Fatalf("FATAL: event replay failed: %v", err)
	}
	if replayCount > 0 {
		log.Printf("INFO: replayed %d events (sequence now at %d)",
			replayCount, deterministicCore.GetSequence())
	}

	// After a clean restore with nothing to replay, the chain tip must
	// match the snapshot hash exactly.
	if snap != nil && replayCount == 0 {
		if deterministicCore.GetStateHash() != snap.State.StateHash {
			log.Fatalf("FATAL: state hash mismatch after restore (expected %x, got %x)",
				snap.State.StateHash, deterministicCore.GetStateHash())
		}
		log.Println("INFO: state hash verified after snapshot restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	healthChecker.SetComponent("nats", true)
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure outbound stream: %v", err)
	}

	rawEventChan := make(chan ingestion.RawEvent, cfg.Channels.IngestSize)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan, observability.NewLogger("publisher"))
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// --- Command funnel ---
	// NATS parsing and admin injection both land on eventChan; the core
	// loop below is the only goroutine that touches the core.
	eventChan := make(chan event.Event, cfg.Channels.IngestSize)

	var adminSeq atomic.Int64
	adminSeq.Store(deterministicCore.ExpectedCommandSequence())
	adminIngest := ingestion.NewAdminIngestService(eventChan, func() int64 {
		return adminSeq.Add(1) - 1
	})

	go runParseLoop(ctx, rawEventChan, eventChan)
	go runCoreLoop(ctx, eventChan, deterministicCore, &adminSeq)

	// --- HTTP server ---
	queryService := query.NewQueryService(db, coreCfg.FuturesParams.LiquidationFee)
	httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, &server.ServerDeps{
		QueryService:  queryService,
		AdminIngest:   adminIngest,
		HealthChecker: healthChecker,
		Hub:           hub,
	})
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	// --- Periodic snapshots ---
	go runPeriodicSnapshots(ctx, deterministicCore, snapMgr, cfg.Persistence.SnapshotInterval, metrics)

	healthChecker.SetComponent("core", true)
	log.Printf("INFO: SynthLedger ready (sequence=%d, http=%s)",
		deterministicCore.GetSequence(), cfg.Server.HTTPAddr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	healthChecker.SetComponent("core", false)
	natsSubscriber.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Final snapshot captures everything the persist worker just flushed.
	if err := takeSnapshot(shutdownCtx, deterministicCore, snapMgr, metrics); err != nil {
		log.Printf("ERROR: final snapshot failed: %v", err)
	} else {
		log.Println("INFO: final snapshot saved")
	}

	log.Println("INFO: SynthLedger shutdown complete")
}

// fanOutProjections forwards core outputs to the projection worker, the
// WebSocket hub and the outbound publisher. Every side drops rather than
// blocks; consumers that need completeness read the event log.
func fanOutProjections(
	ctx context.Context,
	in <-chan core.CoreOutput,
	projectionOut chan<- core.CoreOutput,
	hub *server.WSHub,
	publishOut chan<- ingestion.PublishableEvent,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case output, ok := <-in:
			if !ok {
				return
			}
			select {
			case projectionOut <- output:
			default:
			}
			hub.BroadcastOutput(output)

			env := output.Envelope
			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       env.Sequence,
				EventType:      env.EventType.String(),
				IdempotencyKey: env.IdempotencyKey,
				Payload:        json.RawMessage(env.Payload),
				StateHash:      env.StateHash[:],
				PrevHash:       env.PrevHash[:],
				Timestamp:      env.Timestamp,
			}:
			default:
			}
		}
	}
}

// runParseLoop turns raw NATS messages into typed commands. Messages are
// acked after the channel send, not after core processing: backpressure
// propagates through the blocking send, and a crash before processing is
// recovered by the event-log replay plus idempotency keys upstream resend.
func runParseLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent, out chan<- event.Event) {
	subjectToType := make(map[string]string)
	for _, cfg := range ingestion.DefaultSubjects() {
		prefix := cfg.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = cfg.EventType
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			eventType := resolveEventType(raw.Subject, subjectToType)
			if eventType == "" {
				log.Printf("WARN: unknown NATS subject: %s", raw.Subject)
				raw.AckFunc() // ack to break the redelivery loop
				continue
			}

			evt, err := ingestion.ParseRawEvent(raw, eventType)
			if err != nil {
				log.Printf("WARN: parse event failed (subject=%s): %v", raw.Subject, err)
				raw.AckFunc()
				continue
			}

			select {
			case out <- evt:
				raw.AckFunc()
			case <-ctx.Done():
				raw.NakFunc()
				return
			}
		}
	}
}

// resolveEventType finds the command type for a NATS subject by longest
// matching prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// runCoreLoop is the single consumer of the command funnel. It keeps the
// admin sequence counter in step with the strict partition so injected and
// NATS-sourced commands interleave without gaps.
func runCoreLoop(
	ctx context.Context,
	eventChan <-chan event.Event,
	deterministicCore *core.DeterministicCore,
	adminSeq *atomic.Int64,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-eventChan:
			if !ok {
				return
			}

			if err := deterministicCore.ProcessEvent(evt); err != nil {
				log.Printf("ERROR: process command failed (type=%s, key=%s): %v",
					evt.EventType(), evt.IdempotencyKey(), err)
			}
			adminSeq.Store(deterministicCore.ExpectedCommandSequence())
		}
	}
}

// replayEventsFromLog replays persisted commands from fromSequence to the
// head of the log. Duplicates and stale rounds reject silently, which is
// what makes replay after a partial flush safe.
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	deterministicCore *core.DeterministicCore,
	fromSequence int64,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			raw := ingestion.RawEvent{
				Subject:   row.EventType,
				Data:      row.Payload,
				Timestamp: row.Timestamp,
			}

			typedEvt, err := ingestion.ParseRawEvent(raw, row.EventType)
			if err != nil {
				return totalReplayed, fmt.Errorf("unparseable event at seq=%d type=%s: %w",
					row.Sequence, row.EventType, err)
			}

			if err := deterministicCore.ProcessEvent(typedEvt); err != nil {
				log.Printf("WARN: replay skip seq=%d: %v", row.Sequence, err)
			}
			totalReplayed++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// runPeriodicSnapshots takes a snapshot every interval events.
func runPeriodicSnapshots(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := deterministicCore.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := deterministicCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, deterministicCore, snapMgr, metrics); err != nil {
					log.Printf("WARN: periodic snapshot failed: %v", err)
				} else {
					lastSnapshotSeq = currentSeq
					log.Printf("INFO: periodic snapshot at sequence %d", currentSeq)
				}
			}
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it.
func takeSnapshot(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snapData := &persistence.SnapshotData{
		State:     deterministicCore.CreateSnapshotState(),
		CreatedAt: time.Now(),
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Taken from live state, so verified immediately.
	if err := snapMgr.MarkVerified(ctx, snapData.State.Sequence); err != nil {
		log.Printf("WARN: mark snapshot verified failed: %v", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.State.Sequence))
	}

	return nil
}
