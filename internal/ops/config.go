package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SizingMode selects how the execution engine sizes orders.
type SizingMode string

const (
	SizingFixed   SizingMode = "fixed"
	SizingPercent SizingMode = "percent"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Trading   TradingConfig   `json:"trading"`
	Risk      RiskConfig      `json:"risk"`
	Loop      LoopConfig      `json:"loop"`
	Database  DatabaseConfig  `json:"database"`
	Telegram  TelegramConfig  `json:"telegram"`
	Obs       ObsConfig       `json:"obs"`
	Profiling ProfilingConfig `json:"profiling"`
}

// TradingConfig groups signal and sizing knobs.
type TradingConfig struct {
	ConfidenceThreshold float64    `json:"confidenceThreshold"`
	MaxEntryPrice       float64    `json:"maxEntryPrice"`
	SizingMode          SizingMode `json:"sizingMode"`
	BetSize             float64    `json:"betSize"`
	MinBetSize          float64    `json:"minBetSize"`
	MaxBetSize          float64    `json:"maxBetSize"`
	PositionSizePct     float64    `json:"positionSizePct"`
	FeeRate             float64    `json:"feeRate"`
	SlippageRate        float64    `json:"slippageRate"`
	MinArbProfit        float64    `json:"minArbProfit"`
	ImbalanceThreshold  float64    `json:"imbalanceThreshold"`
	EnsembleMinVotes    int        `json:"ensembleMinVotes"`
}

// RiskConfig groups the circuit breaker limits.
type RiskConfig struct {
	InitialCapital   float64 `json:"initialCapital"`
	MaxDrawdownLimit float64 `json:"maxDrawdownLimit"`
	MaxDailyLoss     float64 `json:"maxDailyLoss"`
}

// LoopConfig controls the coordinator cadence.
type LoopConfig struct {
	ScanIntervalSec     int    `json:"scanIntervalSec"`
	PriceHistoryMinutes int    `json:"priceHistoryMinutes"`
	HealthFile          string `json:"healthFile"`
}

// DatabaseConfig selects and configures the repository backend.
type DatabaseConfig struct {
	Driver   string `json:"driver"` // postgres | memory
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// TelegramConfig configures notifications. Empty token disables them.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chatId"`
}

// ObsConfig configures the metrics listener.
type ObsConfig struct {
	MetricsAddr string `json:"metricsAddr"`
}

// ProfilingConfig enables the optional pyroscope profiler.
type ProfilingConfig struct {
	ServerAddress string `json:"serverAddress"`
}

// Config is the resolved, immutable configuration. Loaded once at
// startup; changes require a fresh process.
type Config struct {
	Trading   TradingConfig
	Risk      RiskConfig
	Loop      LoopConfig
	Database  DatabaseConfig
	Telegram  TelegramConfig
	Obs       ObsConfig
	Profiling ProfilingConfig
}

// ScanInterval returns the coordinator tick interval.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.Loop.ScanIntervalSec) * time.Second
}

// Load reads a JSON config file, applies defaults and env fallbacks for
// secrets, and validates the result.
func Load(path string) (Config, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)

	resolved := Config(cfg)
	if err := validate(resolved); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func applyDefaults(cfg *FileConfig) {
	t := &cfg.Trading
	if t.ConfidenceThreshold == 0 {
		t.ConfidenceThreshold = 0.6
	}
	if t.MaxEntryPrice == 0 {
		t.MaxEntryPrice = 0.70
	}
	if t.SizingMode == "" {
		t.SizingMode = SizingFixed
	}
	if t.BetSize == 0 {
		t.BetSize = 10.0
	}
	if t.MinBetSize == 0 {
		t.MinBetSize = 1.0
	}
	if t.MaxBetSize == 0 {
		t.MaxBetSize = 50.0
	}
	if t.PositionSizePct == 0 {
		t.PositionSizePct = 0.02
	}
	if t.FeeRate == 0 {
		t.FeeRate = 0.01
	}
	if t.SlippageRate == 0 {
		t.SlippageRate = 0.005
	}
	if t.MinArbProfit == 0 {
		t.MinArbProfit = 0.005
	}
	if t.ImbalanceThreshold == 0 {
		t.ImbalanceThreshold = 1.5
	}
	if t.EnsembleMinVotes == 0 {
		t.EnsembleMinVotes = 2
	}

	if cfg.Risk.InitialCapital == 0 {
		cfg.Risk.InitialCapital = 1000.0
	}
	if cfg.Risk.MaxDrawdownLimit == 0 {
		cfg.Risk.MaxDrawdownLimit = 0.2
	}
	if cfg.Risk.MaxDailyLoss == 0 {
		cfg.Risk.MaxDailyLoss = 50.0
	}

	if cfg.Loop.ScanIntervalSec == 0 {
		cfg.Loop.ScanIntervalSec = 30
	}
	if cfg.Loop.PriceHistoryMinutes == 0 {
		cfg.Loop.PriceHistoryMinutes = 30
	}
	if cfg.Loop.HealthFile == "" {
		cfg.Loop.HealthFile = "data/health"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Obs.MetricsAddr == "" {
		cfg.Obs.MetricsAddr = ":9090"
	}
}

func applyEnv(cfg *FileConfig) {
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Telegram.ChatID == "" {
		cfg.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = os.Getenv("POSTGRES_PASSWORD")
	}
}

func validate(cfg Config) error {
	t := cfg.Trading
	if t.SizingMode != SizingFixed && t.SizingMode != SizingPercent {
		return fmt.Errorf("unknown sizing mode: %q", t.SizingMode)
	}
	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold >= 1 {
		return fmt.Errorf("confidenceThreshold must be in [0,1): %v", t.ConfidenceThreshold)
	}
	if t.MaxEntryPrice <= 0 || t.MaxEntryPrice > 1 {
		return fmt.Errorf("maxEntryPrice must be in (0,1]: %v", t.MaxEntryPrice)
	}
	if t.MinBetSize <= 0 || t.MaxBetSize < t.MinBetSize {
		return fmt.Errorf("bet size bounds invalid: min=%v max=%v", t.MinBetSize, t.MaxBetSize)
	}
	if t.FeeRate < 0 || t.SlippageRate < 0 {
		return fmt.Errorf("fee/slippage must be >= 0")
	}
	if t.EnsembleMinVotes < 1 {
		return fmt.Errorf("ensembleMinVotes must be >= 1: %d", t.EnsembleMinVotes)
	}
	if t.ImbalanceThreshold <= 1 {
		return fmt.Errorf("imbalanceThreshold must be > 1: %v", t.ImbalanceThreshold)
	}
	if cfg.Risk.InitialCapital <= 0 {
		return fmt.Errorf("initialCapital must be > 0: %v", cfg.Risk.InitialCapital)
	}
	if cfg.Risk.MaxDrawdownLimit <= 0 || cfg.Risk.MaxDrawdownLimit > 1 {
		return fmt.Errorf("maxDrawdownLimit must be in (0,1]: %v", cfg.Risk.MaxDrawdownLimit)
	}
	if cfg.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("maxDailyLoss must be > 0: %v", cfg.Risk.MaxDailyLoss)
	}
	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}
	return nil
}
