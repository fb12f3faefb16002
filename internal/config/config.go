package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrMissingRegimeKey is returned when a regime table lacks a required key
var ErrMissingRegimeKey = errors.New("missing required regime key")

// Keys every regime table must carry. Loading fails when any of them is absent.
var (
	RequiredGammaRegimes = []string{"POSITIVE", "NEGATIVE", "HIGH_VOL"}
	RequiredMicroRegimes = []string{"ACCUMULATION", "NEUTRAL", "DISTRIBUTION", "STRESSED"}
	RequiredMicroFeatures = []string{
		"dark_pool_share", "net_gex", "venue_entropy",
		"block_intensity", "iv_rank", "iv_skew",
	}
	ScoringSteps = []string{"freshness", "crowding", "threshold"}
)

// Config is the single validated configuration object handed to every phase
type Config struct {
	Run            RunConfig            `yaml:"run"`
	Diagnostics    DiagnosticsConfig    `yaml:"diagnostics"`
	Regime         RegimeConfig         `yaml:"regime"`
	Universe       UniverseConfig       `yaml:"universe"`
	Sector         SectorConfig         `yaml:"sector"`
	Scoring        ScoringConfig        `yaml:"scoring"`
	Gamma          GammaConfig          `yaml:"gamma"`
	Microstructure MicrostructureConfig `yaml:"microstructure"`
	Sizing         SizingConfig         `yaml:"sizing"`
	Providers      ProvidersConfig      `yaml:"providers"`
	Storage        StorageConfig        `yaml:"storage"`
	Events         EventsConfig         `yaml:"events"`
	Monitor        MonitorConfig        `yaml:"monitor"`
}

// RunConfig holds run-wide settings
type RunConfig struct {
	BarLookback     int    `yaml:"bar_lookback" default:"260" validate:"gte=201"`
	MarketProxy     string `yaml:"market_proxy" default:"SPY" validate:"required"`
	OutputDir       string `yaml:"output_dir" default:"out"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// DiagnosticsConfig controls the pre-run gate
type DiagnosticsConfig struct {
	Retries          int           `yaml:"retries" default:"3" validate:"gte=1,lte=10"`
	Backoff          time.Duration `yaml:"backoff" default:"2s" validate:"gte=0"`
	PingTimeout      time.Duration `yaml:"ping_timeout" default:"10s" validate:"gt=0"`
	BreakerStatePath string        `yaml:"breaker_state_path" default:"state/circuit_breaker.json" validate:"required"`
}

// RegimeConfig controls the Big Money Index
type RegimeConfig struct {
	VolumeLookback    int     `yaml:"volume_lookback" default:"20" validate:"gte=5"`
	StdDevK           float64 `yaml:"stddev_k" default:"2.0" validate:"gt=0"`
	SmoothingDays     int     `yaml:"smoothing_days" default:"25" validate:"gte=1"`
	GreenMax          float64 `yaml:"green_max" default:"25" validate:"gte=0,lte=100"`
	RedMin            float64 `yaml:"red_min" default:"80" validate:"gtfield=GreenMax,lte=100"`
	DivergenceDays    int     `yaml:"divergence_days" default:"5" validate:"gte=1"`
	DivergencePriceUp float64 `yaml:"divergence_price_up" default:"1.0" validate:"gte=0"`
	DivergenceBMIDrop float64 `yaml:"divergence_bmi_drop" default:"2.0" validate:"gte=0"`
	ScanConcurrency   int     `yaml:"scan_concurrency" default:"16" validate:"gte=1"`
}

// UniverseConfig controls screening and event-risk exclusion
type UniverseConfig struct {
	Long               LongScreen  `yaml:"long"`
	Short              ShortScreen `yaml:"short"`
	EarningsWindowDays int         `yaml:"earnings_window_days" default:"7" validate:"gte=1,lte=60"`
	Pass2Concurrency   int         `yaml:"pass2_concurrency" default:"8" validate:"gte=1"`
}

// LongScreen is the LONG-mode screen
type LongScreen struct {
	MinMarketCap float64 `yaml:"min_market_cap" default:"2000000000" validate:"gt=0"`
	MinPrice     float64 `yaml:"min_price" default:"10" validate:"gt=0"`
	MinAvgVolume float64 `yaml:"min_avg_volume" default:"500000" validate:"gt=0"`
	AllowETFs    bool    `yaml:"allow_etfs"`
}

// ShortScreen is the SHORT-mode "zombie" screen
type ShortScreen struct {
	MinMarketCap        float64 `yaml:"min_market_cap" default:"300000000" validate:"gt=0"`
	MinDebtToEquity     float64 `yaml:"min_debt_to_equity" default:"2.0" validate:"gt=0"`
	MaxNetMargin        float64 `yaml:"max_net_margin" validate:"lte=0"`
	MaxInterestCoverage float64 `yaml:"max_interest_coverage" default:"1.5" validate:"gt=0"`
}

// SectorThreshold overrides the sector BMI classification bands
type SectorThreshold struct {
	Oversold   float64 `yaml:"oversold" validate:"gte=0,lte=100"`
	Overbought float64 `yaml:"overbought" validate:"gtfield=Oversold,lte=100"`
}

// SectorConfig controls sector rotation
type SectorConfig struct {
	Proxies              map[string]string          `yaml:"proxies"`
	Thresholds           map[string]SectorThreshold `yaml:"thresholds" validate:"dive"`
	TrendPeriod          int                        `yaml:"trend_period" default:"20" validate:"gte=2"`
	MomentumDays         int                        `yaml:"momentum_days" default:"5" validate:"gte=1"`
	LeaderCount          int                        `yaml:"leader_count" default:"3" validate:"gte=1"`
	LaggardCount         int                        `yaml:"laggard_count" default:"3" validate:"gte=1"`
	LeaderBonus          float64                    `yaml:"leader_bonus" default:"15"`
	LaggardPenalty       float64                    `yaml:"laggard_penalty" default:"-20" validate:"lte=0"`
	MeanReversionPenalty float64                    `yaml:"mean_reversion_penalty" default:"-5" validate:"lte=0"`
	DefaultOversold      float64                    `yaml:"default_oversold" default:"25" validate:"gte=0,lte=100"`
	DefaultOverbought    float64                    `yaml:"default_overbought" default:"80" validate:"gtfield=DefaultOversold,lte=100"`
}

// ScoringConfig controls the stock scorer
type ScoringConfig struct {
	FlowWeight            float64  `yaml:"flow_weight" default:"0.40" validate:"gt=0,lt=1"`
	FundamentalWeight     float64  `yaml:"fundamental_weight" default:"0.30" validate:"gt=0,lt=1"`
	TechnicalWeight       float64  `yaml:"technical_weight" default:"0.30" validate:"gt=0,lt=1"`
	TrendPeriod           int      `yaml:"trend_period" default:"200" validate:"gte=50"`
	RSIPeriod             int      `yaml:"rsi_period" default:"14" validate:"gte=2"`
	ATRPeriod             int      `yaml:"atr_period" default:"14" validate:"gte=2"`
	RVOLPeriod            int      `yaml:"rvol_period" default:"20" validate:"gte=2"`
	RSIOversold           float64  `yaml:"rsi_oversold" default:"30"`
	RSIOverbought         float64  `yaml:"rsi_overbought" default:"70" validate:"gtfield=RSIOversold"`
	SquatRVOL             float64  `yaml:"squat_rvol" default:"2.0" validate:"gt=0"`
	SquatSpreadRatio      float64  `yaml:"squat_spread_ratio" default:"0.9" validate:"gt=0"`
	DarkPoolMinShare      float64  `yaml:"dark_pool_min_share" default:"0.40" validate:"gt=0,lt=1"`
	DarkPoolBullish       float64  `yaml:"dark_pool_bullish" default:"0.55" validate:"gt=0.5,lt=1"`
	DarkPoolBearish       float64  `yaml:"dark_pool_bearish" default:"0.45" validate:"gt=0,lt=0.5"`
	InsiderNetThreshold   int      `yaml:"insider_net_threshold" default:"3" validate:"gte=1"`
	InsiderBoost          float64  `yaml:"insider_boost" default:"1.25" validate:"gte=1"`
	InsiderPenalty        float64  `yaml:"insider_penalty" default:"0.75" validate:"gt=0,lte=1"`
	FreshnessMultiplier   float64  `yaml:"freshness_multiplier" default:"1.5" validate:"gte=1"`
	FreshnessLookbackDays int      `yaml:"freshness_lookback_days" default:"90" validate:"gte=1"`
	CrowdingCutoff        float64  `yaml:"crowding_cutoff" default:"90" validate:"gtfield=MinThreshold"`
	MinThreshold          float64  `yaml:"min_threshold" default:"70" validate:"gt=0"`
	MaxCombined           float64  `yaml:"max_combined" default:"150" validate:"gtfield=CrowdingCutoff"`
	StepOrder             []string `yaml:"step_order"`
	Concurrency           int      `yaml:"concurrency" default:"8" validate:"gte=1"`
}

// GammaConfig controls gamma exposure classification
type GammaConfig struct {
	ContractMultiplier float64            `yaml:"contract_multiplier" default:"100" validate:"gt=0"`
	TransitionBand     float64            `yaml:"transition_band" default:"0.01" validate:"gte=0,lt=1"`
	PrimaryTargetATR   float64            `yaml:"primary_target_atr" default:"2.0" validate:"gt=0"`
	SecondaryTargetATR float64            `yaml:"secondary_target_atr" default:"3.0" validate:"gt=0"`
	RegimeMultipliers  map[string]float64 `yaml:"regime_multipliers" validate:"dive,gt=0"`
	Concurrency        int                `yaml:"concurrency" default:"8" validate:"gte=1"`
}

// MicrostructureConfig controls the composite microstructure regime
type MicrostructureConfig struct {
	MinHistory        int                `yaml:"min_history" default:"21" validate:"gte=2"`
	PartialMin        int                `yaml:"partial_min" default:"5" validate:"gte=2,ltfield=MinHistory"`
	FeatureWeights    map[string]float64 `yaml:"feature_weights"`
	WeightTolerance   float64            `yaml:"weight_tolerance" default:"0.001" validate:"gt=0"`
	RegimeMultipliers map[string]float64 `yaml:"regime_multipliers" validate:"dive,gt=0"`
	AccumulationZ     float64            `yaml:"accumulation_z" default:"1.0" validate:"gt=0"`
	DistributionZ     float64            `yaml:"distribution_z" default:"-1.0" validate:"lt=0"`
	StressZ           float64            `yaml:"stress_z" default:"1.5" validate:"gt=0"`
}

// SizingConfig controls risk sizing and portfolio constraints
type SizingConfig struct {
	Equity                    float64 `yaml:"equity" validate:"gte=0"`
	RiskPerTrade              float64 `yaml:"risk_per_trade" default:"0.005" validate:"gt=0,lte=0.05"`
	StopATRMultiple           float64 `yaml:"stop_atr_multiple" default:"1.5" validate:"gt=0"`
	FlowStrongThreshold       float64 `yaml:"flow_strong_threshold" default:"80" validate:"gt=0,lte=100"`
	FlowMultiplier            float64 `yaml:"flow_multiplier" default:"1.25" validate:"gt=0"`
	InsiderNetThreshold       int     `yaml:"insider_net_threshold" default:"3" validate:"gte=1"`
	InsiderBoost              float64 `yaml:"insider_boost" default:"1.10" validate:"gt=0"`
	InsiderPenalty            float64 `yaml:"insider_penalty" default:"0.90" validate:"gt=0"`
	FundamentalWeakThreshold  float64 `yaml:"fundamental_weak_threshold" default:"40" validate:"gte=0,lte=100"`
	FundamentalWeakMultiplier float64 `yaml:"fundamental_weak_multiplier" default:"0.75" validate:"gt=0,lte=1"`
	VIXThreshold              float64 `yaml:"vix_threshold" default:"20" validate:"gt=0"`
	VIXSlope                  float64 `yaml:"vix_slope" default:"0.02" validate:"gt=0"`
	VIXFloor                  float64 `yaml:"vix_floor" default:"0.25" validate:"gt=0,lte=1"`
	UtilityThreshold          float64 `yaml:"utility_threshold" default:"85" validate:"gt=0"`
	UtilityCap                float64 `yaml:"utility_cap" default:"1.3" validate:"gte=1"`
	MaxPositions              int     `yaml:"max_positions" default:"8" validate:"gte=1"`
	MaxPerSector              int     `yaml:"max_per_sector" default:"2" validate:"gte=1"`
	MaxPositionPct            float64 `yaml:"max_position_pct" default:"0.15" validate:"gt=0,lte=1"`
	MaxGrossExposure          float64 `yaml:"max_gross_exposure" default:"1.0" validate:"gt=0"`
	OrderType                 string  `yaml:"order_type" default:"LIMIT" validate:"oneof=LIMIT MARKET"`
}

// ProvidersConfig controls provider access guards
type ProvidersConfig struct {
	DataDir             string        `yaml:"data_dir" default:"data/snapshot" validate:"required"`
	RPS                 float64       `yaml:"rps" default:"20" validate:"gt=0"`
	Burst               int           `yaml:"burst" default:"10" validate:"gte=1"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5" validate:"gte=1"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout" default:"60s" validate:"gt=0"`
	BreakerInterval     time.Duration `yaml:"breaker_interval" default:"60s" validate:"gte=0"`
	FallbackDarkShare   float64       `yaml:"fallback_dark_share" default:"0.45" validate:"gt=0,lt=1"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend      string        `yaml:"backend" default:"file" validate:"oneof=file redis postgres"`
	Dir          string        `yaml:"dir" default:"state" validate:"required_if=Backend file"`
	RedisAddr    string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB      int           `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix  string        `yaml:"redis_prefix" default:"gammafunnel"`
	PostgresDSN  string        `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"10s" validate:"gt=0"`
}

// EventsConfig controls where phase events are published
type EventsConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic" default:"gammafunnel.phases"`
}

// MonitorConfig controls the long-running monitor mode
type MonitorConfig struct {
	Addr     string        `yaml:"addr" default:"127.0.0.1:8080" validate:"required"`
	Interval time.Duration `yaml:"interval" default:"24h" validate:"gte=1m"`
}

// DefaultSectorProxies maps sector names to their SPDR sector ETF
func DefaultSectorProxies() map[string]string {
	return map[string]string{
		"Technology":             "XLK",
		"Financials":             "XLF",
		"Energy":                 "XLE",
		"Health Care":            "XLV",
		"Consumer Discretionary": "XLY",
		"Consumer Staples":       "XLP",
		"Industrials":            "XLI",
		"Materials":              "XLB",
		"Utilities":              "XLU",
		"Real Estate":            "XLRE",
		"Communication Services": "XLC",
	}
}

// Default returns a complete, valid configuration
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.Gamma.RegimeMultipliers = map[string]float64{
		"POSITIVE": 1.0,
		"NEGATIVE": 0.5,
		"HIGH_VOL": 0.6,
	}
	cfg.Microstructure.RegimeMultipliers = map[string]float64{
		"ACCUMULATION": 1.15,
		"NEUTRAL":      1.0,
		"DISTRIBUTION": 0.75,
		"STRESSED":     0.6,
	}
	cfg.Microstructure.FeatureWeights = map[string]float64{
		"dark_pool_share": 0.25,
		"net_gex":         0.20,
		"venue_entropy":   -0.10,
		"block_intensity": 0.20,
		"iv_rank":         -0.10,
		"iv_skew":         -0.15,
	}
	applyDerivedDefaults(cfg)
	return cfg
}

// Load reads, defaults and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Regime tables are intentionally left untouched by defaults: a missing key must fail.
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	applyDerivedDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

// Write serialises the configuration to path, creating parent directories
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func applyDerivedDefaults(cfg *Config) {
	if cfg.Sector.Proxies == nil {
		cfg.Sector.Proxies = DefaultSectorProxies()
	}
	if len(cfg.Scoring.StepOrder) == 0 {
		cfg.Scoring.StepOrder = append([]string(nil), ScoringSteps...)
	}
}

// Validate checks struct constraints and the semantic rules between sections
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := requireKeys("gamma.regime_multipliers", c.Gamma.RegimeMultipliers, RequiredGammaRegimes); err != nil {
		return err
	}
	if err := requireKeys("microstructure.regime_multipliers", c.Microstructure.RegimeMultipliers, RequiredMicroRegimes); err != nil {
		return err
	}
	if err := requireKeys("microstructure.feature_weights", c.Microstructure.FeatureWeights, RequiredMicroFeatures); err != nil {
		return err
	}

	sum := 0.0
	for _, w := range c.Microstructure.FeatureWeights {
		sum += math.Abs(w)
	}
	if math.Abs(sum-1.0) > c.Microstructure.WeightTolerance {
		return fmt.Errorf("microstructure.feature_weights absolute sum %.4f, expected 1.0 ± %.4f",
			sum, c.Microstructure.WeightTolerance)
	}

	weights := c.Scoring.FlowWeight + c.Scoring.FundamentalWeight + c.Scoring.TechnicalWeight
	if math.Abs(weights-1.0) > 1e-6 {
		return fmt.Errorf("scoring weights sum to %.4f, expected 1.0", weights)
	}

	if err := validateStepOrder(c.Scoring.StepOrder); err != nil {
		return err
	}

	for sector := range c.Sector.Thresholds {
		if _, ok := c.Sector.Proxies[sector]; !ok {
			return fmt.Errorf("sector.thresholds references unknown sector %q", sector)
		}
	}
	return nil
}

func requireKeys(table string, m map[string]float64, keys []string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: %w: %v", table, ErrMissingRegimeKey, missing)
	}
	return nil
}

func validateStepOrder(order []string) error {
	if len(order) != len(ScoringSteps) {
		return fmt.Errorf("scoring.step_order must list exactly %v, got %v", ScoringSteps, order)
	}
	seen := make(map[string]bool, len(order))
	for _, step := range order {
		known := false
		for _, s := range ScoringSteps {
			if s == step {
				known = true
				break
			}
		}
		if !known || seen[step] {
			return fmt.Errorf("scoring.step_order must be a permutation of %v, got %v", ScoringSteps, order)
		}
		seen[step] = true
	}
	return nil
}
