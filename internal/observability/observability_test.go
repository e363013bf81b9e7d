package observability_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"SynthLedger/internal/observability"
)

func TestLogger_EmitsComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo("core", &buf, zerolog.InfoLevel)

	logger.Info().Int64("sequence", 42).Msg("command applied")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "core" {
		t.Errorf("component = %v, want core", entry["component"])
	}
	if entry["sequence"] != float64(42) {
		t.Errorf("sequence = %v, want 42", entry["sequence"])
	}
}

func TestLogger_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo("core", &buf, zerolog.InfoLevel)

	logger.Debug().Msg("suppressed")
	if buf.Len() != 0 {
		t.Errorf("debug line emitted at info level: %s", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"ERROR": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := observability.ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHealth_ReadyOnlyWhenAllComponentsReady(t *testing.T) {
	h := observability.NewHealthChecker("postgres", "nats", "replay")

	if h.IsReady() {
		t.Fatal("fresh checker must not be ready")
	}
	h.SetComponent("postgres", true)
	h.SetComponent("nats", true)
	if h.IsReady() {
		t.Fatal("one pending component must hold readiness back")
	}
	h.SetComponent("replay", true)
	if !h.IsReady() {
		t.Fatal("all components ready, checker must be ready")
	}
	h.SetComponent("nats", false)
	if h.IsReady() {
		t.Fatal("a component dropping out must revoke readiness")
	}
}

func TestHealth_ReadinessHandlerReportsComponents(t *testing.T) {
	h := observability.NewHealthChecker("replay")

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before readiness", rec.Code)
	}

	h.SetComponent("replay", true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after readiness", rec.Code)
	}

	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ready" || !body.Components["replay"] {
		t.Errorf("body = %+v, want ready with replay=true", body)
	}
}

func TestHealth_NoComponentsIsNeverReady(t *testing.T) {
	h := observability.NewHealthChecker()
	if h.IsReady() {
		t.Error("checker with no registered components must not report ready")
	}
}
