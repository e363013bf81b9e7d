package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

const testConfigYAML = `
postgres:
  dsn: "postgres://app:secret@db:5432/synth?sslmode=disable"
  max_open_conns: 40
server:
  http_addr: ":9090"
persistence:
  batch_size: 100
  snapshot_interval: 5000
protocol:
  genesis_time: 1700000000
  total_reserve_supply: "200000000"
  transfer_fee_rate: "0.003"
  issuance_ratio: "0.25"
  owner: "11111111-1111-1111-1111-111111111111"
  oracle_key: "22222222-2222-2222-2222-222222222222"
  fee_reporter: "33333333-3333-3333-3333-333333333333"
  distributor: "44444444-4444-4444-4444-444444444444"
  rewards_fund: "55555555-5555-5555-5555-555555555555"
  futures:
    max_leverage: "8"
logging:
  level: debug
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, testConfigYAML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Postgres.DSN != "postgres://app:secret@db:5432/synth?sslmode=disable" {
		t.Errorf("dsn = %q", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxOpenConns != 40 {
		t.Errorf("max open conns = %d, want 40", cfg.Postgres.MaxOpenConns)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("http addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Persistence.BatchSize != 100 {
		t.Errorf("batch size = %d, want 100", cfg.Persistence.BatchSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q, want default", cfg.NATS.URL)
	}
	if cfg.Channels.PersistSize != 1024 {
		t.Errorf("persist size = %d, want default 1024", cfg.Channels.PersistSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SYNTH_POSTGRES_DSN", "postgres://env@elsewhere:5432/synth")
	t.Setenv("SYNTH_HTTP_ADDR", ":7070")

	cfg, err := Load(writeConfigFile(t, testConfigYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Postgres.DSN != "postgres://env@elsewhere:5432/synth" {
		t.Errorf("dsn = %q, env must win", cfg.Postgres.DSN)
	}
	if cfg.Server.HTTPAddr != ":7070" {
		t.Errorf("http addr = %q, env must win", cfg.Server.HTTPAddr)
	}
}

func TestLoad_MissingAuthorityKeysRejected(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("defaults without authority keys must not validate")
	}

	noOracle := strings.Replace(testConfigYAML,
		`  oracle_key: "22222222-2222-2222-2222-222222222222"`, "", 1)
	if _, err := Load(writeConfigFile(t, noOracle)); err == nil {
		t.Fatal("config without oracle key must not validate")
	}
}

func TestLoad_MissingFileRejected(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing config file must error, not fall back to defaults")
	}
}

func TestCoreConfig_ParsesProtocolSection(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, testConfigYAML))
	if err != nil {
		t.Fatal(err)
	}
	coreCfg, err := cfg.CoreConfig()
	if err != nil {
		t.Fatal(err)
	}

	if coreCfg.GenesisTime != 1_700_000_000 {
		t.Errorf("genesis time = %d", coreCfg.GenesisTime)
	}
	if !coreCfg.TotalReserveSupply.Equal(fixed.FromInt(200_000_000)) {
		t.Errorf("reserve supply = %s", coreCfg.TotalReserveSupply)
	}
	if !coreCfg.TransferFeeRate.Equal(fixed.MustParse("0.003")) {
		t.Errorf("fee rate = %s", coreCfg.TransferFeeRate)
	}
	if !coreCfg.IssuanceRatio.Equal(fixed.MustParse("0.25")) {
		t.Errorf("issuance ratio = %s", coreCfg.IssuanceRatio)
	}
	if coreCfg.Owner != uuid.MustParse("11111111-1111-1111-1111-111111111111") {
		t.Errorf("owner = %s", coreCfg.Owner)
	}
	if coreCfg.RewardsFund != uuid.MustParse("55555555-5555-5555-5555-555555555555") {
		t.Errorf("rewards fund = %s", coreCfg.RewardsFund)
	}
}

func TestCoreConfig_FuturesDefaultsFillEmptyFields(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, testConfigYAML))
	if err != nil {
		t.Fatal(err)
	}
	coreCfg, err := cfg.CoreConfig()
	if err != nil {
		t.Fatal(err)
	}

	if !coreCfg.FuturesParams.MaxLeverage.Equal(fixed.FromInt(8)) {
		t.Errorf("max leverage = %s, want file value 8", coreCfg.FuturesParams.MaxLeverage)
	}
	// Fields the file leaves out keep the market defaults
	if coreCfg.FuturesParams.LiquidationFee.IsZero() {
		t.Error("liquidation fee must fall back to the default")
	}
	if coreCfg.FuturesParams.MinInitialMargin.IsZero() {
		t.Error("min initial margin must fall back to the default")
	}
}

func TestCoreConfig_BadDecimalRejected(t *testing.T) {
	badRate := strings.Replace(testConfigYAML, `"0.003"`, `"not-a-number"`, 1)
	cfg, err := Load(writeConfigFile(t, badRate))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.CoreConfig(); err == nil {
		t.Fatal("bad decimal in protocol section must fail conversion")
	}
}
