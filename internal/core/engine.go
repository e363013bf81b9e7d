package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/state"
)

// pricePartition tolerates round gaps; everything else is strictly sequenced.
const (
	commandPartition = "commands"
	pricePartition   = "price:reserve"
)

// Config is the genesis configuration of the deterministic core. All values
// are versioned inputs; the core itself never reads the wall clock or any
// environment.
type Config struct {
	GenesisTime        int64
	TotalReserveSupply fixed.Fixed
	TransferFeeRate    fixed.Fixed
	IssuanceRatio      fixed.Fixed
	PriceStalePeriod   int64
	FeePeriodDuration  int64
	FuturesParams      state.FuturesParams

	// Authority keys
	Owner       uuid.UUID
	OracleKey   uuid.UUID
	FeeReporter uuid.UUID
	Distributor uuid.UUID
	RewardsFund uuid.UUID
}

// DeterministicCore is the single-threaded command processor: idempotency
// check, source-sequence validation, dispatch into the protocol engines,
// state-hash chaining, and emission to the persistence and projection
// channels.
type DeterministicCore struct {
	sequence int64
	hasher   *StateHasher

	reserve    *ledger.ReserveLedger
	synth      *ledger.SynthLedger
	escrow     *ledger.Escrow
	validator  *ledger.InvariantValidator
	params     *state.Params
	oracle     *state.PriceOracle
	feePeriod  *state.FeePeriodController
	issuance   *state.IssuanceTracker
	collateral *state.CollateralEngine
	rewards    *state.RewardsEngine
	futures    *state.FuturesMarket

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput

	owner       uuid.UUID
	oracleKey   uuid.UUID
	feeReporter uuid.UUID
	distributor uuid.UUID
}

// CoreOutput is one applied command plus its envelope, sent downstream.
// View carries the post-event state of the touched accounts for the
// projection worker; the persistence worker ignores it.
type CoreOutput struct {
	Envelope *event.Envelope
	View     *StateView
}

func NewDeterministicCore(
	cfg Config,
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*DeterministicCore, error) {
	params := state.DefaultParams()
	if !cfg.IssuanceRatio.IsZero() {
		if err := params.SetIssuanceRatio(cfg.IssuanceRatio); err != nil {
			return nil, err
		}
	}
	if cfg.PriceStalePeriod > 0 {
		if err := params.SetPriceStalePeriod(cfg.PriceStalePeriod); err != nil {
			return nil, err
		}
	}
	if err := state.ValidateTransferFeeRate(cfg.TransferFeeRate); err != nil {
		return nil, err
	}

	reserve := ledger.NewReserveLedger(cfg.TotalReserveSupply)
	synth := ledger.NewSynthLedger(cfg.TransferFeeRate)
	escrow := ledger.NewEscrow()
	oracle := state.NewPriceOracle(params)
	feePeriod, err := state.NewFeePeriodController(synth, cfg.GenesisTime, cfg.FeePeriodDuration)
	if err != nil {
		return nil, err
	}
	issuance := state.NewIssuanceTracker()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		reserve:           reserve,
		synth:             synth,
		escrow:            escrow,
		validator:         ledger.NewInvariantValidator(reserve, synth),
		params:            params,
		oracle:            oracle,
		feePeriod:         feePeriod,
		issuance:          issuance,
		collateral:        state.NewCollateralEngine(reserve, synth, escrow, oracle, params, issuance, feePeriod),
		rewards:           state.NewRewardsEngine(reserve, cfg.RewardsFund),
		futures:           state.NewFuturesMarket(cfg.FuturesParams, oracle, synth, cfg.GenesisTime),
		idempotency:       NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
		owner:             cfg.Owner,
		oracleKey:         cfg.OracleKey,
		feeReporter:       cfg.FeeReporter,
		distributor:       cfg.Distributor,
	}, nil
}

// ProcessEvent is the main processing pipeline. A returned error means the
// command was rejected atomically: no state was mutated and no envelope was
// emitted.
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation. Price rounds tolerate gaps and ignore
	// stale rounds; everything else is strictly ordered.
	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if priceEvt.RoundID <= c.oracle.RoundID() {
			if c.metrics != nil {
				c.metrics.CoreEventsRejected.WithLabelValues(eventType, "stale_round").Inc()
			}
			return nil
		}
		if err := c.sequenceValidator.ValidatePriceSequence(pricePartition, priceEvt.RoundID); err != nil {
			return err
		}
	} else {
		if err := c.sequenceValidator.ValidateSequence(commandPartition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch. A fee period rollover is detected by comparing the
	// period start across the handler call.
	periodStartBefore := c.feePeriod.StartTime()
	if err := c.dispatchEvent(evt); err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: State digest and hash chain
	stateDigest := c.computeStateDigest()
	prevHash := c.hasher.Tip()
	stateHash := c.hasher.Advance(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: command not serializable: %v", err))
	}
	envelope := &event.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Timestamp:      evt.Time(),
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	output := CoreOutput{Envelope: envelope, View: c.buildStateView(evt)}
	c.sequence++

	// Step 5: Post-checks. A conservation violation here is a core bug, not
	// a rejectable input.
	if err := c.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 6: Emit. Persistence is a blocking send (backpressure stalls the
	// core); projections are non-blocking and may drop, rebuilding from the
	// event log later.
	c.persistChan <- output
	select {
	case c.projectionChan <- output:
	default:
	}

	// A rollover inside the handler emits its own notification envelope.
	if c.feePeriod.StartTime() != periodStartBefore {
		c.emitFeePeriodRolled(evt.Time())
	}

	// Step 7: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}
	return nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) error {
	switch e := evt.(type) {
	case *event.EndowReserve:
		return c.handleEndowReserve(e)
	case *event.TransferReserve:
		return c.collateral.Transfer(e.From, e.To, e.Amount, e.Timestamp.Unix())
	case *event.TransferSynth:
		return c.handleTransferSynth(e)
	case *event.IssueSynths:
		return c.collateral.Issue(e.Account, e.Amount, e.Timestamp.Unix())
	case *event.BurnSynths:
		return c.collateral.Burn(e.Account, e.Amount, e.Timestamp.Unix())
	case *event.WithdrawFees:
		_, err := c.collateral.WithdrawFees(e.Account, e.Timestamp.Unix())
		return err
	case *event.PriceUpdate:
		return c.handlePriceUpdate(e)
	case *event.RecordExchangeFee:
		return c.handleRecordExchangeFee(e)
	case *event.NotifyRewardFunding:
		return c.handleNotifyRewardFunding(e)
	case *event.ClaimRewards:
		_, err := c.rewards.Claim(e.Account, e.PeriodID)
		return err
	case *event.SubmitOrder:
		return c.futures.SubmitOrder(e.Account, e.Margin, e.Leverage, e.Timestamp.Unix())
	case *event.ConfirmOrder:
		return c.futures.ConfirmOrder(e.Account, e.Timestamp.Unix())
	case *event.CancelOrder:
		return c.futures.CancelOrder(e.Account)
	case *event.ParamUpdate:
		return c.handleParamUpdate(e)
	case *event.SetIssuer:
		return c.handleSetIssuer(e)
	case *event.FreezeAccount:
		return c.handleFreezeAccount(e)
	case *event.CreditEscrow:
		return c.handleCreditEscrow(e)
	default:
		return fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *DeterministicCore) handleEndowReserve(evt *event.EndowReserve) error {
	if evt.Caller != c.owner {
		return fmt.Errorf("endow by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	return c.collateral.Endow(evt.To, evt.Amount, evt.Timestamp.Unix())
}

func (c *DeterministicCore) handleTransferSynth(evt *event.TransferSynth) error {
	// Validation precedes the rollover: a rejected transfer must not move
	// the fee period, while an accepted one accrues its fee to the period
	// the transfer lands in.
	if err := c.synth.ValidateTransfer(evt.From, evt.To, evt.Amount); err != nil {
		return err
	}
	c.feePeriod.CheckRollover(evt.Timestamp.Unix())
	return c.synth.Transfer(evt.From, evt.To, evt.Amount)
}

func (c *DeterministicCore) handlePriceUpdate(evt *event.PriceUpdate) error {
	if evt.Caller != c.oracleKey {
		return fmt.Errorf("price update by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	now := evt.Timestamp.Unix()
	if err := c.oracle.Update(evt.Price, evt.RoundID, evt.SentAt.Unix(), now); err != nil {
		return err
	}
	// Each accepted round records a funding entry so position entry indices
	// line up with rounds.
	return c.futures.RecordFunding(now)
}

func (c *DeterministicCore) handleRecordExchangeFee(evt *event.RecordExchangeFee) error {
	if evt.Caller != c.feeReporter {
		return fmt.Errorf("fee record by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	return c.rewards.RecordFee(evt.Account, evt.Amount)
}

func (c *DeterministicCore) handleNotifyRewardFunding(evt *event.NotifyRewardFunding) error {
	if evt.Caller != c.distributor {
		return fmt.Errorf("reward funding by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	_, err := c.rewards.NotifyNewFunding(evt.Amount)
	return err
}

func (c *DeterministicCore) handleParamUpdate(evt *event.ParamUpdate) error {
	if evt.Caller != c.owner {
		return fmt.Errorf("param update by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	switch evt.Param {
	case event.ParamIssuanceRatio:
		return c.params.SetIssuanceRatio(evt.Value)
	case event.ParamFeePeriodDuration:
		return c.feePeriod.SetTargetDuration(evt.Duration)
	case event.ParamPriceStalePeriod:
		return c.params.SetPriceStalePeriod(evt.Duration)
	case event.ParamTransferFeeRate:
		if err := state.ValidateTransferFeeRate(evt.Value); err != nil {
			return err
		}
		c.synth.SetTransferFeeRate(evt.Value)
		return nil
	case event.ParamOracleKey:
		c.oracleKey = evt.Key
		return nil
	default:
		return fmt.Errorf("unknown param %q: %w", evt.Param, state.ErrInvalidState)
	}
}

func (c *DeterministicCore) handleSetIssuer(evt *event.SetIssuer) error {
	if evt.Caller != c.owner {
		return fmt.Errorf("set issuer by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	c.collateral.SetIssuer(evt.Account, evt.Allowed)
	return nil
}

func (c *DeterministicCore) handleFreezeAccount(evt *event.FreezeAccount) error {
	if evt.Caller != c.owner {
		return fmt.Errorf("freeze by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	c.synth.SetFrozen(evt.Account, evt.Frozen)
	return nil
}

// handleCreditEscrow attributes vested reserve tokens to an account. The
// credited balance counts toward collateral immediately but never moves
// through the reserve ledger, so conservation checks are unaffected.
func (c *DeterministicCore) handleCreditEscrow(evt *event.CreditEscrow) error {
	if evt.Caller != c.owner {
		return fmt.Errorf("escrow credit by %s: %w", evt.Caller, state.ErrUnauthorized)
	}
	if evt.Amount.Sign() <= 0 {
		return fmt.Errorf("escrow credit: non-positive amount %s: %w", evt.Amount, state.ErrInvalidState)
	}
	return c.escrow.Credit(evt.Account, evt.Amount)
}

// emitFeePeriodRolled publishes a rollover notification to the projection
// channel (informational, not part of the strict event log).
func (c *DeterministicCore) emitFeePeriodRolled(ts time.Time) {
	output := CoreOutput{
		Envelope: &event.Envelope{
			Sequence:       c.sequence,
			IdempotencyKey: fmt.Sprintf("fee_period:%d", c.feePeriod.StartTime()),
			EventType:      event.EventTypeFeePeriodRolled,
			Timestamp:      ts,
		},
		View: c.buildStateView(nil),
	}
	select {
	case c.projectionChan <- output:
	default:
	}
}

// computeStateDigest builds the canonical bytes the hash chain commits to:
// the aggregate quantities every command can move. Per-account detail is
// recoverable from the event log itself; the aggregates pin conservation.
func (c *DeterministicCore) computeStateDigest() []byte {
	digest := make([]byte, 0, 256)
	appendField := func(s string) {
		digest = append(digest, byte(len(s)))
		digest = append(digest, s...)
	}
	appendField(c.reserve.Undistributed().String())
	appendField(c.synth.TotalSupply().String())
	appendField(c.synth.FeePool().String())
	appendField(c.collateral.TotalIssuedDebt().String())
	appendField(c.futures.MarketSkew().String())
	appendField(c.futures.MarketSize().String())
	appendField(c.futures.PendingOrderValue().String())
	appendField(c.feePeriod.LastFeesCollected().String())
	appendField(c.escrow.TotalEscrowed().String())
	digest = appendInt64LE(digest, c.feePeriod.StartTime())
	digest = appendInt64LE(digest, c.oracle.RoundID())
	digest = appendInt64LE(digest, c.rewards.CurrentPeriodID())
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates conservation after every applied command.
func (c *DeterministicCore) postCheckInvariants() error {
	if err := c.validator.ValidateNonNegativePools(); err != nil {
		return err
	}
	// Full conservation sweeps are O(accounts); run them periodically.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateReserveConservation(); err != nil {
			return fmt.Errorf("post-check (seq %d): %w", c.sequence, err)
		}
		if err := c.validator.ValidateSynthConservation(); err != nil {
			return fmt.Errorf("post-check (seq %d): %w", c.sequence, err)
		}
	}
	return nil
}

// --- Read access for the query service ---

func (c *DeterministicCore) Reserve() *ledger.ReserveLedger       { return c.reserve }
func (c *DeterministicCore) Synth() *ledger.SynthLedger           { return c.synth }
func (c *DeterministicCore) Collateral() *state.CollateralEngine  { return c.collateral }
func (c *DeterministicCore) Rewards() *state.RewardsEngine        { return c.rewards }
func (c *DeterministicCore) Futures() *state.FuturesMarket        { return c.futures }
func (c *DeterministicCore) Oracle() *state.PriceOracle           { return c.oracle }
func (c *DeterministicCore) FeePeriod() *state.FeePeriodController { return c.feePeriod }

// ExpectedCommandSequence returns the next source sequence the strict
// command partition will accept. The admin injection path seeds its
// counter from this after recovery.
func (c *DeterministicCore) ExpectedCommandSequence() int64 {
	return c.sequenceValidator.GetExpectedSequence(commandPartition)
}

// --- Snapshot restore & startup ---

// SnapshotState holds the serializable in-memory state for restore.
// Persistence stores it JSON-encoded and hands it back verbatim.
type SnapshotState struct {
	Sequence  int64
	StateHash [32]byte

	ReserveBalances      map[uuid.UUID]fixed.Fixed
	ReserveUndistributed fixed.Fixed
	SynthBalances        map[uuid.UUID]fixed.Fixed
	SynthFrozen          map[uuid.UUID]bool
	SynthTotalSupply     fixed.Fixed
	SynthFeePool         fixed.Fixed
	TransferFeeRate      fixed.Fixed
	EscrowBalances       map[uuid.UUID]fixed.Fixed

	IssuanceRecords  map[uuid.UUID]state.IssuanceRecord
	IssuanceAggregate state.IssuanceRecord

	FeePeriodStart     int64
	FeePeriodPrevStart int64
	FeePeriodDuration  int64
	LastFeesCollected  fixed.Fixed

	IssuanceRatio    fixed.Fixed
	PriceStalePeriod int64

	OraclePrice       fixed.Fixed
	OracleRound       int64
	OracleLastUpdated int64
	OracleKey         uuid.UUID

	Issuers         map[uuid.UUID]bool
	IssuedDebt      map[uuid.UUID]fixed.Fixed
	TotalIssuedDebt fixed.Fixed

	RewardPeriods        map[int64]*state.RewardPeriod
	RewardCurrentID      int64
	RewardTotalCommitted fixed.Fixed

	Futures state.FuturesSnapshot

	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state. On warm restart
// the caller loads the latest snapshot, calls this, then replays events.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.sequence = snap.Sequence + 1 // next sequence to assign
	c.hasher.SetTip(snap.StateHash)

	c.reserve.Restore(snap.ReserveBalances, snap.ReserveUndistributed)
	c.synth.Restore(snap.SynthBalances, snap.SynthFrozen, snap.SynthTotalSupply, snap.SynthFeePool, snap.TransferFeeRate)
	if err := c.escrow.Restore(snap.EscrowBalances); err != nil {
		return err
	}
	c.issuance.Restore(snap.IssuanceRecords, snap.IssuanceAggregate)
	if err := c.feePeriod.Restore(snap.FeePeriodStart, snap.FeePeriodPrevStart, snap.FeePeriodDuration, snap.LastFeesCollected); err != nil {
		return err
	}
	c.params.Restore(snap.IssuanceRatio, snap.PriceStalePeriod)
	c.oracle.Restore(snap.OraclePrice, snap.OracleRound, snap.OracleLastUpdated)
	c.oracleKey = snap.OracleKey
	c.collateral.Restore(snap.Issuers, snap.IssuedDebt, snap.TotalIssuedDebt)
	c.rewards.Restore(snap.RewardPeriods, snap.RewardCurrentID, snap.RewardTotalCommitted)
	c.futures.Restore(snap.Futures)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed events after restart.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.Tip()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	reserveBalances := c.reserve.Snapshot()
	synthBalances, synthFrozen := c.synth.Snapshot()
	issuanceRecords, issuanceAggregate := c.issuance.Snapshot()
	issuers := c.collateral.IssuerSnapshot()
	debt, totalDebt := c.collateral.DebtSnapshot()
	rewardPeriods, rewardID, rewardCommitted := c.rewards.Snapshot()

	return &SnapshotState{
		Sequence:             c.sequence - 1, // last processed sequence
		StateHash:            c.hasher.Tip(),
		ReserveBalances:      reserveBalances,
		ReserveUndistributed: c.reserve.Undistributed(),
		SynthBalances:        synthBalances,
		SynthFrozen:          synthFrozen,
		SynthTotalSupply:     c.synth.TotalSupply(),
		SynthFeePool:         c.synth.FeePool(),
		TransferFeeRate:      c.synth.TransferFeeRate(),
		EscrowBalances:       c.escrow.Snapshot(),
		IssuanceRecords:      issuanceRecords,
		IssuanceAggregate:    issuanceAggregate,
		FeePeriodStart:       c.feePeriod.StartTime(),
		FeePeriodPrevStart:   c.feePeriod.PreviousStartTime(),
		FeePeriodDuration:    c.feePeriod.TargetDuration(),
		LastFeesCollected:    c.feePeriod.LastFeesCollected(),
		IssuanceRatio:        c.params.IssuanceRatio(),
		PriceStalePeriod:     c.params.PriceStalePeriod(),
		OraclePrice:          c.oraclePriceRaw(),
		OracleRound:          c.oracle.RoundID(),
		OracleLastUpdated:    c.oracle.LastUpdated(),
		OracleKey:            c.oracleKey,
		Issuers:              issuers,
		IssuedDebt:           debt,
		TotalIssuedDebt:      totalDebt,
		RewardPeriods:        rewardPeriods,
		RewardCurrentID:      rewardID,
		RewardTotalCommitted: rewardCommitted,
		Futures:              c.futures.Snapshot(),
		SequenceState:        c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:      c.idempotency.lru.GetAllKeys(),
	}
}

// oraclePriceRaw reads the stored price without the staleness gate; a stale
// price is still part of the snapshot.
func (c *DeterministicCore) oraclePriceRaw() fixed.Fixed {
	price, err := c.oracle.Price(c.oracle.LastUpdated())
	if err != nil {
		return fixed.Zero()
	}
	return price
}
