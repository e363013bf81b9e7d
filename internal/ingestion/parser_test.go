package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseEndowReserve(t *testing.T) {
	payload := map[string]interface{}{
		"transfer_id":  "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"to":           "770e8400-e29b-41d4-a716-446655440002",
		"amount":       "1500.25",
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "EndowReserve")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	er, ok := evt.(*event.EndowReserve)
	if !ok {
		t.Fatalf("expected *event.EndowReserve, got %T", evt)
	}

	if !er.Amount.Equal(fixed.MustParse("1500.25")) {
		t.Errorf("amount: got %s, want 1500.25", er.Amount)
	}
	if er.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", er.Sequence)
	}
	if er.Timestamp.UnixMicro() != 1700000000000000 {
		t.Errorf("timestamp: got %d", er.Timestamp.UnixMicro())
	}
	if er.EventType() != event.EventTypeEndowReserve {
		t.Errorf("event type: got %v, want EndowReserve", er.EventType())
	}
}

func TestParseTransferSynth(t *testing.T) {
	payload := map[string]interface{}{
		"transfer_id":  "550e8400-e29b-41d4-a716-446655440000",
		"from":         "660e8400-e29b-41d4-a716-446655440001",
		"to":           "770e8400-e29b-41d4-a716-446655440002",
		"amount":       "100",
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TransferSynth")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ts, ok := evt.(*event.TransferSynth)
	if !ok {
		t.Fatalf("expected *event.TransferSynth, got %T", evt)
	}

	if !ts.Amount.Equal(fixed.FromInt(100)) {
		t.Errorf("amount: got %s, want 100", ts.Amount)
	}
	if ts.From.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("from: got %s", ts.From)
	}
}

func TestParseCreditEscrow(t *testing.T) {
	payload := map[string]interface{}{
		"grant_id":     "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"account":      "770e8400-e29b-41d4-a716-446655440002",
		"amount":       "25000",
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CreditEscrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ce, ok := evt.(*event.CreditEscrow)
	if !ok {
		t.Fatalf("expected *event.CreditEscrow, got %T", evt)
	}

	if !ce.Amount.Equal(fixed.FromInt(25000)) {
		t.Errorf("amount: got %s, want 25000", ce.Amount)
	}
	if ce.Account.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("account: got %s", ce.Account)
	}
	if ce.EventType() != event.EventTypeCreditEscrow {
		t.Errorf("event type: got %v, want CreditEscrow", ce.EventType())
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"price":        "1.025",
		"round_id":     int64(100),
		"sent_at_us":   int64(1700000000000000),
		"timestamp_us": int64(1700000001000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if !pu.Price.Equal(fixed.MustParse("1.025")) {
		t.Errorf("price: got %s, want 1.025", pu.Price)
	}
	if pu.RoundID != 100 {
		t.Errorf("round_id: got %d, want 100", pu.RoundID)
	}
	// Round id doubles as the source sequence for the price partition
	if pu.SourceSequence() != 100 {
		t.Errorf("source sequence: got %d, want 100", pu.SourceSequence())
	}
}

func TestParseSubmitOrder_SignedMargin(t *testing.T) {
	payload := map[string]interface{}{
		"order_id":     "550e8400-e29b-41d4-a716-446655440000",
		"account":      "660e8400-e29b-41d4-a716-446655440001",
		"margin":       "-1000",
		"leverage":     "5",
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SubmitOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	so, ok := evt.(*event.SubmitOrder)
	if !ok {
		t.Fatalf("expected *event.SubmitOrder, got %T", evt)
	}

	if !so.Margin.Equal(fixed.FromInt(-1000)) {
		t.Errorf("margin: got %s, want -1000", so.Margin)
	}
	if !so.Leverage.Equal(fixed.FromInt(5)) {
		t.Errorf("leverage: got %s, want 5", so.Leverage)
	}
}

func TestParseParamUpdate_NumericAndKey(t *testing.T) {
	payload := map[string]interface{}{
		"update_id":    "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"param":        "issuance_ratio",
		"value":        "0.15",
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.ParamUpdate)
	if !ok {
		t.Fatalf("expected *event.ParamUpdate, got %T", evt)
	}
	if pu.Param != event.ParamIssuanceRatio {
		t.Errorf("param: got %s", pu.Param)
	}
	if !pu.Value.Equal(fixed.MustParse("0.15")) {
		t.Errorf("value: got %s, want 0.15", pu.Value)
	}

	// Key-valued variant
	payload["param"] = "oracle_key"
	payload["key"] = "770e8400-e29b-41d4-a716-446655440002"
	delete(payload, "value")

	evt, err = ingestion.ParseRawEvent(rawFromJSON(t, payload), "ParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	pu = evt.(*event.ParamUpdate)
	if pu.Key.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("key: got %s", pu.Key)
	}
}

func TestParseClaimRewards(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":     "550e8400-e29b-41d4-a716-446655440000",
		"account":      "660e8400-e29b-41d4-a716-446655440001",
		"period_id":    int64(3),
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ClaimRewards")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cr, ok := evt.(*event.ClaimRewards)
	if !ok {
		t.Fatalf("expected *event.ClaimRewards, got %T", evt)
	}
	if cr.PeriodID != 3 {
		t.Errorf("period_id: got %d, want 3", cr.PeriodID)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "TransferSynth")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"transfer_id":  "not-a-uuid",
		"from":         "also-not-a-uuid",
		"to":           "still-not-a-uuid",
		"amount":       "1",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "TransferSynth")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseInvalidAmount_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"transfer_id":  "550e8400-e29b-41d4-a716-446655440000",
		"from":         "660e8400-e29b-41d4-a716-446655440001",
		"to":           "770e8400-e29b-41d4-a716-446655440002",
		"amount":       "12.34.56",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "TransferSynth")
	if err == nil {
		t.Fatal("expected error for malformed amount")
	}
}
