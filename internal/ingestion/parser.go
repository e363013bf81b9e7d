package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixed"
)

// ParseRawEvent converts a RawEvent (JSON bytes + command type string) into a
// typed event.Event. The ingestion shell validates and parses everything
// before it reaches the deterministic core; a parse failure never makes it
// past this boundary.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "EndowReserve":
		return parseEndowReserve(raw.Data)
	case "TransferReserve":
		return parseTransferReserve(raw.Data)
	case "TransferSynth":
		return parseTransferSynth(raw.Data)
	case "IssueSynths":
		return parseIssueSynths(raw.Data)
	case "BurnSynths":
		return parseBurnSynths(raw.Data)
	case "WithdrawFees":
		return parseWithdrawFees(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "RecordExchangeFee":
		return parseRecordExchangeFee(raw.Data)
	case "NotifyRewardFunding":
		return parseNotifyRewardFunding(raw.Data)
	case "ClaimRewards":
		return parseClaimRewards(raw.Data)
	case "SubmitOrder":
		return parseSubmitOrder(raw.Data)
	case "ConfirmOrder":
		return parseConfirmOrder(raw.Data)
	case "CancelOrder":
		return parseCancelOrder(raw.Data)
	case "ParamUpdate":
		return parseParamUpdate(raw.Data)
	case "SetIssuer":
		return parseSetIssuer(raw.Data)
	case "FreezeAccount":
		return parseFreezeAccount(raw.Data)
	case "CreditEscrow":
		return parseCreditEscrow(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Fixed-point
// amounts travel as decimal strings.

type transferJSON struct {
	TransferID  string `json:"transfer_id"`
	Caller      string `json:"caller,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseEndowReserve(data []byte) (*event.EndowReserve, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse EndowReserve: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.EndowReserve{
		TransferID: transferID,
		Caller:     caller,
		To:         to,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseTransferReserve(data []byte) (*event.TransferReserve, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TransferReserve: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	from, err := uuid.Parse(j.From)
	if err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.TransferReserve{
		TransferID: transferID,
		From:       from,
		To:         to,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseTransferSynth(data []byte) (*event.TransferSynth, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TransferSynth: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	from, err := uuid.Parse(j.From)
	if err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.TransferSynth{
		TransferID: transferID,
		From:       from,
		To:         to,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type issuanceJSON struct {
	RequestID   string `json:"request_id"`
	Account     string `json:"account"`
	Amount      string `json:"amount,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseIssueSynths(data []byte) (*event.IssueSynths, error) {
	var j issuanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse IssueSynths: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.IssueSynths{
		RequestID: requestID,
		Account:   account,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseBurnSynths(data []byte) (*event.BurnSynths, error) {
	var j issuanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BurnSynths: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.BurnSynths{
		RequestID: requestID,
		Account:   account,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdrawFees(data []byte) (*event.WithdrawFees, error) {
	var j issuanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawFees: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.WithdrawFees{
		RequestID: requestID,
		Account:   account,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceUpdateJSON struct {
	Caller      string `json:"caller"`
	Price       string `json:"price"`
	RoundID     int64  `json:"round_id"`
	SentAtUs    int64  `json:"sent_at_us"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	price, err := fixed.Parse(j.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return &event.PriceUpdate{
		Caller:    caller,
		Price:     price,
		RoundID:   j.RoundID,
		SentAt:    time.UnixMicro(j.SentAtUs),
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type exchangeFeeJSON struct {
	RecordID    string `json:"record_id"`
	Caller      string `json:"caller"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRecordExchangeFee(data []byte) (*event.RecordExchangeFee, error) {
	var j exchangeFeeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RecordExchangeFee: %w", err)
	}
	recordID, err := uuid.Parse(j.RecordID)
	if err != nil {
		return nil, fmt.Errorf("parse record_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.RecordExchangeFee{
		RecordID:  recordID,
		Caller:    caller,
		Account:   account,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type rewardFundingJSON struct {
	FundingID   string `json:"funding_id"`
	Caller      string `json:"caller"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseNotifyRewardFunding(data []byte) (*event.NotifyRewardFunding, error) {
	var j rewardFundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NotifyRewardFunding: %w", err)
	}
	fundingID, err := uuid.Parse(j.FundingID)
	if err != nil {
		return nil, fmt.Errorf("parse funding_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.NotifyRewardFunding{
		FundingID: fundingID,
		Caller:    caller,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimRewardsJSON struct {
	ClaimID     string `json:"claim_id"`
	Account     string `json:"account"`
	PeriodID    int64  `json:"period_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimRewards(data []byte) (*event.ClaimRewards, error) {
	var j claimRewardsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimRewards: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.ClaimRewards{
		ClaimID:   claimID,
		Account:   account,
		PeriodID:  j.PeriodID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type submitOrderJSON struct {
	OrderID     string `json:"order_id"`
	Account     string `json:"account"`
	Margin      string `json:"margin"` // Signed: positive = long
	Leverage    string `json:"leverage"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSubmitOrder(data []byte) (*event.SubmitOrder, error) {
	var j submitOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SubmitOrder: %w", err)
	}
	orderID, err := uuid.Parse(j.OrderID)
	if err != nil {
		return nil, fmt.Errorf("parse order_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	margin, err := fixed.Parse(j.Margin)
	if err != nil {
		return nil, fmt.Errorf("parse margin: %w", err)
	}
	leverage, err := fixed.Parse(j.Leverage)
	if err != nil {
		return nil, fmt.Errorf("parse leverage: %w", err)
	}
	return &event.SubmitOrder{
		OrderID:   orderID,
		Account:   account,
		Margin:    margin,
		Leverage:  leverage,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type orderRequestJSON struct {
	RequestID   string `json:"request_id"`
	Account     string `json:"account"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseConfirmOrder(data []byte) (*event.ConfirmOrder, error) {
	var j orderRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfirmOrder: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.ConfirmOrder{
		RequestID: requestID,
		Account:   account,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseCancelOrder(data []byte) (*event.CancelOrder, error) {
	var j orderRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelOrder: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.CancelOrder{
		RequestID: requestID,
		Account:   account,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type paramUpdateJSON struct {
	UpdateID    string `json:"update_id"`
	Caller      string `json:"caller"`
	Param       string `json:"param"`
	Value       string `json:"value,omitempty"`
	Duration    int64  `json:"duration,omitempty"`
	Key         string `json:"key,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseParamUpdate(data []byte) (*event.ParamUpdate, error) {
	var j paramUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ParamUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	evt := &event.ParamUpdate{
		UpdateID:  updateID,
		Caller:    caller,
		Param:     j.Param,
		Duration:  j.Duration,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}
	if j.Value != "" {
		value, err := fixed.Parse(j.Value)
		if err != nil {
			return nil, fmt.Errorf("parse value: %w", err)
		}
		evt.Value = value
	}
	if j.Key != "" {
		key, err := uuid.Parse(j.Key)
		if err != nil {
			return nil, fmt.Errorf("parse key: %w", err)
		}
		evt.Key = key
	}
	return evt, nil
}

type accountFlagJSON struct {
	UpdateID    string `json:"update_id"`
	Caller      string `json:"caller"`
	Account     string `json:"account"`
	Allowed     bool   `json:"allowed,omitempty"`
	Frozen      bool   `json:"frozen,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSetIssuer(data []byte) (*event.SetIssuer, error) {
	var j accountFlagJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetIssuer: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.SetIssuer{
		UpdateID:  updateID,
		Caller:    caller,
		Account:   account,
		Allowed:   j.Allowed,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type escrowCreditJSON struct {
	GrantID     string `json:"grant_id"`
	Caller      string `json:"caller"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCreditEscrow(data []byte) (*event.CreditEscrow, error) {
	var j escrowCreditJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreditEscrow: %w", err)
	}
	grantID, err := uuid.Parse(j.GrantID)
	if err != nil {
		return nil, fmt.Errorf("parse grant_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	amount, err := fixed.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &event.CreditEscrow{
		GrantID:   grantID,
		Caller:    caller,
		Account:   account,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseFreezeAccount(data []byte) (*event.FreezeAccount, error) {
	var j accountFlagJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FreezeAccount: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.FreezeAccount{
		UpdateID:  updateID,
		Caller:    caller,
		Account:   account,
		Frozen:    j.Frozen,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
