package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// QueryService serves read-only API queries from the projection tables.
// Responses carry as_of_sequence (the projection watermark) so callers can
// reason about freshness against the core sequence.
type QueryService struct {
	db *sql.DB

	// liquidationFee mirrors the market parameter for query-time
	// liquidation price estimates.
	liquidationFee fixed.Fixed
}

func NewQueryService(db *sql.DB, liquidationFee fixed.Fixed) *QueryService {
	return &QueryService{db: db, liquidationFee: liquidationFee}
}

// GetAccount returns an account's balances plus issuance headroom derived
// from the projected price and issuance ratio.
func (qs *QueryService) GetAccount(ctx context.Context, account uuid.UUID) (*AccountResponse, error) {
	stats, err := qs.GetProtocolStats(ctx)
	if err != nil {
		return nil, err
	}

	resp := &AccountResponse{
		Account:        account,
		ReserveBalance: fixed.Zero(),
		SynthBalance:   fixed.Zero(),
		IssuedDebt:     fixed.Zero(),
		AsOfSequence:   stats.AsOfSequence,
	}

	var reserve, synth, debt string
	err = qs.db.QueryRowContext(ctx, `
		SELECT reserve_balance::text, synth_balance::text, issued_debt::text, frozen
		FROM projections.accounts
		WHERE account = $1
	`, account).Scan(&reserve, &synth, &debt, &resp.Frozen)
	if err == sql.ErrNoRows {
		deriveAccount(resp, stats.OraclePrice, stats.IssuanceRatio)
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account query: %w", err)
	}

	if resp.ReserveBalance, err = fixed.Parse(reserve); err != nil {
		return nil, fmt.Errorf("parse reserve balance: %w", err)
	}
	if resp.SynthBalance, err = fixed.Parse(synth); err != nil {
		return nil, fmt.Errorf("parse synth balance: %w", err)
	}
	if resp.IssuedDebt, err = fixed.Parse(debt); err != nil {
		return nil, fmt.Errorf("parse issued debt: %w", err)
	}

	deriveAccount(resp, stats.OraclePrice, stats.IssuanceRatio)
	return resp, nil
}

// GetPosition returns an account's leveraged position with query-time
// marks. Accounts with no position get a NO_POSITION response, not an
// error.
func (qs *QueryService) GetPosition(ctx context.Context, account uuid.UUID) (*PositionResponse, error) {
	stats, err := qs.GetProtocolStats(ctx)
	if err != nil {
		return nil, err
	}

	resp := &PositionResponse{
		Account:      account,
		Size:         fixed.Zero(),
		Margin:       fixed.Zero(),
		EntryPrice:   fixed.Zero(),
		Status:       "NO_POSITION",
		AsOfSequence: stats.AsOfSequence,
	}

	var size, margin, entry string
	var open bool
	err = qs.db.QueryRowContext(ctx, `
		SELECT open, size::text, margin::text, entry_price::text, status
		FROM projections.positions
		WHERE account = $1
	`, account).Scan(&open, &size, &margin, &entry, &resp.Status)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("position query: %w", err)
	}

	if resp.Size, err = fixed.Parse(size); err != nil {
		return nil, fmt.Errorf("parse size: %w", err)
	}
	if resp.Margin, err = fixed.Parse(margin); err != nil {
		return nil, fmt.Errorf("parse margin: %w", err)
	}
	if resp.EntryPrice, err = fixed.Parse(entry); err != nil {
		return nil, fmt.Errorf("parse entry price: %w", err)
	}

	derivePosition(resp, stats.OraclePrice, qs.liquidationFee)
	return resp, nil
}

// GetActivity returns the applied commands that touched an account, newest
// first, with cursor pagination on sequence.
func (qs *QueryService) GetActivity(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]ActivityEntry, error) {
	query := `
		SELECT sequence, event_type, EXTRACT(EPOCH FROM timestamp)::bigint
		FROM projections.account_activity
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		e := ActivityEntry{Account: account}
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetFeePeriods returns closed fee periods, newest first.
func (qs *QueryService) GetFeePeriods(ctx context.Context, limit int) ([]FeePeriodResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT start_time, end_time, fees_collected::text
		FROM projections.fee_periods
		ORDER BY start_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []FeePeriodResponse
	for rows.Next() {
		var p FeePeriodResponse
		var fees string
		if err := rows.Scan(&p.StartTime, &p.EndTime, &fees); err != nil {
			return nil, err
		}
		if p.FeesCollected, err = fixed.Parse(fees); err != nil {
			return nil, fmt.Errorf("parse fees collected: %w", err)
		}
		periods = append(periods, p)
	}

	return periods, rows.Err()
}

// GetProtocolStats returns the projected aggregate state. Before the first
// applied command the singleton row does not exist yet; zero stats with the
// current watermark come back instead.
func (qs *QueryService) GetProtocolStats(ctx context.Context) (*ProtocolStats, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	stats := &ProtocolStats{
		TotalSupply:       fixed.Zero(),
		FeePool:           fixed.Zero(),
		TotalIssuedDebt:   fixed.Zero(),
		Undistributed:     fixed.Zero(),
		LastFeesCollected: fixed.Zero(),
		OraclePrice:       fixed.Zero(),
		IssuanceRatio:     fixed.Zero(),
		TransferFeeRate:   fixed.Zero(),
		MarketSkew:        fixed.Zero(),
		MarketSize:        fixed.Zero(),
		AsOfSequence:      asOfSeq,
	}

	var supply, feePool, debt, undistributed, lastFees string
	var price, ratio, feeRate, skew, size string
	err = qs.db.QueryRowContext(ctx, `
		SELECT total_supply::text, fee_pool::text, total_debt::text, undistributed::text,
		       fee_period_start, last_fees_collected::text, oracle_round, oracle_price::text,
		       issuance_ratio::text, transfer_fee_rate::text, reward_period_id,
		       market_skew::text, market_size::text
		FROM projections.protocol
		WHERE id = 1
	`).Scan(&supply, &feePool, &debt, &undistributed,
		&stats.FeePeriodStart, &lastFees, &stats.OracleRound, &price,
		&ratio, &feeRate, &stats.RewardPeriodID, &skew, &size)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("protocol query: %w", err)
	}

	fields := []struct {
		dst *fixed.Fixed
		src string
	}{
		{&stats.TotalSupply, supply},
		{&stats.FeePool, feePool},
		{&stats.TotalIssuedDebt, debt},
		{&stats.Undistributed, undistributed},
		{&stats.LastFeesCollected, lastFees},
		{&stats.OraclePrice, price},
		{&stats.IssuanceRatio, ratio},
		{&stats.TransferFeeRate, feeRate},
		{&stats.MarketSkew, skew},
		{&stats.MarketSize, size},
	}
	for _, f := range fields {
		if *f.dst, err = fixed.Parse(f.src); err != nil {
			return nil, fmt.Errorf("parse protocol stats: %w", err)
		}
	}

	return stats, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain in the event log and conservation
// across the projected balances: synth balances plus the fee pool must
// equal the total supply, and per-account debt must sum to the total.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var supplyImbalance, debtImbalance string
	err = qs.db.QueryRowContext(ctx, `
		SELECT
			(COALESCE((SELECT SUM(synth_balance) FROM projections.accounts), 0)
				+ p.fee_pool - p.total_supply)::text,
			(COALESCE((SELECT SUM(issued_debt) FROM projections.accounts), 0)
				- p.total_debt)::text
		FROM projections.protocol p
		WHERE p.id = 1
	`).Scan(&supplyImbalance, &debtImbalance)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	balanced := true
	if err == nil {
		if f, perr := fixed.Parse(supplyImbalance); perr == nil && !f.IsZero() {
			report.SupplyImbalance = supplyImbalance
			balanced = false
		}
		if f, perr := fixed.Parse(debtImbalance); perr == nil && !f.IsZero() {
			report.DebtImbalance = debtImbalance
			balanced = false
		}
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && balanced
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
