package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"SynthLedger/internal/core"
	"SynthLedger/internal/event"
)

// ProjectionWorker maintains the Postgres read models from applied-command
// state views. The projection channel is non-blocking with drop: the views
// carry absolute post-event values, so a dropped update is repaired by the
// next command that touches the same row, and a full rebuild replays the
// event log through the core.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.applyOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v",
					output.Envelope.Sequence, err)
				// Projections are eventually consistent; the next touch
				// of the same rows carries current values.
			}

			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

func (pw *ProjectionWorker) applyOutput(ctx context.Context, output core.CoreOutput) error {
	env := output.Envelope
	view := output.View
	if view == nil {
		return nil
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, acct := range view.Accounts {
		if err := pw.upsertAccount(ctx, tx, env.Sequence, acct); err != nil {
			return fmt.Errorf("account projection: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.account_activity (sequence, account, event_type, timestamp)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (sequence, account) DO NOTHING
		`, env.Sequence, acct.Account, env.EventType.String(), env.Timestamp); err != nil {
			return fmt.Errorf("activity projection: %w", err)
		}
	}

	for _, pos := range view.Positions {
		if err := pw.upsertPosition(ctx, tx, env.Sequence, pos); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	if err := pw.upsertProtocol(ctx, tx, env.Sequence, view); err != nil {
		return fmt.Errorf("protocol projection: %w", err)
	}

	if env.EventType == event.EventTypeFeePeriodRolled {
		// The period that just closed is keyed by its start time;
		// LastFeesCollected is what it handed to the fee pool.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.fee_periods (start_time, end_time, fees_collected, rolled_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (start_time) DO UPDATE
				SET end_time = $2, fees_collected = $3, rolled_at = $4
		`, view.FeePeriodPrevStart, view.FeePeriodStart,
			view.LastFeesCollected.String(), env.Timestamp); err != nil {
			return fmt.Errorf("fee period projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// upsertAccount writes absolute balances. Out-of-order application is
// guarded by the last_sequence check: an older dropped-and-retried view
// never overwrites a newer one.
func (pw *ProjectionWorker) upsertAccount(ctx context.Context, tx *sql.Tx, seq int64, acct core.AccountView) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.accounts
			(account, reserve_balance, synth_balance, issued_debt, frozen, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account) DO UPDATE SET
			reserve_balance = $2, synth_balance = $3, issued_debt = $4,
			frozen = $5, last_sequence = $6
		WHERE projections.accounts.last_sequence < $6
	`, acct.Account, acct.Reserve.String(), acct.Synth.String(),
		acct.IssuedDebt.String(), acct.Frozen, seq)
	return err
}

func (pw *ProjectionWorker) upsertPosition(ctx context.Context, tx *sql.Tx, seq int64, pos core.PositionView) error {
	if !pos.Open && pos.Status == "NO_POSITION" {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.positions WHERE account = $1 AND last_sequence < $2
		`, pos.Account, seq)
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(account, open, size, margin, entry_price, status, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account) DO UPDATE SET
			open = $2, size = $3, margin = $4, entry_price = $5,
			status = $6, last_sequence = $7
		WHERE projections.positions.last_sequence < $7
	`, pos.Account, pos.Open, pos.Size.String(), pos.Margin.String(),
		pos.EntryPrice.String(), pos.Status, seq)
	return err
}

func (pw *ProjectionWorker) upsertProtocol(ctx context.Context, tx *sql.Tx, seq int64, view *core.StateView) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.protocol
			(id, total_supply, fee_pool, total_debt, undistributed,
			 fee_period_start, last_fees_collected, oracle_round, oracle_price,
			 issuance_ratio, transfer_fee_rate, reward_period_id,
			 market_skew, market_size, last_sequence)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			total_supply = $1, fee_pool = $2, total_debt = $3, undistributed = $4,
			fee_period_start = $5, last_fees_collected = $6,
			oracle_round = $7, oracle_price = $8,
			issuance_ratio = $9, transfer_fee_rate = $10, reward_period_id = $11,
			market_skew = $12, market_size = $13, last_sequence = $14
		WHERE projections.protocol.last_sequence < $14
	`, view.TotalSupply.String(), view.FeePool.String(), view.TotalDebt.String(),
		view.Undistributed.String(), view.FeePeriodStart, view.LastFeesCollected.String(),
		view.OracleRound, view.OraclePrice.String(),
		view.IssuanceRatio.String(), view.TransferFeeRate.String(), view.RewardPeriodID,
		view.MarketSkew.String(), view.MarketSize.String(), seq)
	return err
}

// Reset truncates all read models and clears the watermark. A rebuild then
// replays the event log through the core with the projection channel
// attached, repopulating every table.
func Reset(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.accounts`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.account_activity`,
		`TRUNCATE projections.fee_periods`,
		`TRUNCATE projections.protocol`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("projection reset: %w", err)
		}
	}

	log.Println("INFO: projection tables reset")
	return nil
}
