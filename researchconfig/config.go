// Package researchconfig holds the immutable per-run research configuration.
// It follows the teacher's three-layer model: baked-in defaults (Default),
// then environment variable overrides, then functional options (highest
// priority), exactly mirroring core.NewConfig's precedence order. The
// `default` struct tags document each field's default; they are not read
// at runtime.
package researchconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/deepresearch/corerun/corelog"
	"gopkg.in/yaml.v3"
)

// Config is the immutable configuration for one research run (spec.md §3's
// "Question" entity's ResearchConfig). Once passed to Run, it is never
// mutated.
type Config struct {
	Language string `json:"language" env:"RESEARCH_LANGUAGE" default:"en"`

	TokenBudget       int     `json:"token_budget" env:"RESEARCH_TOKEN_BUDGET" default:"1000000"`
	ReserveFinalRatio float64 `json:"reserve_final_ratio" env:"RESEARCH_RESERVE_FINAL_RATIO" default:"0.15"`
	// ReserveFinalIsFractionOfRemaining resolves spec.md §9 Open Question (a):
	// false (default) treats ReserveFinalRatio as a fraction of the total
	// budget; true treats it as a fraction of the remaining budget.
	ReserveFinalIsFractionOfRemaining bool `json:"reserve_final_is_fraction_of_remaining" env:"RESEARCH_RESERVE_FRACTION_OF_REMAINING" default:"false"`

	MaxSteps         int `json:"max_steps" env:"RESEARCH_MAX_STEPS" default:"50"`
	MaxBadAttempts   int `json:"max_bad_attempts" env:"RESEARCH_MAX_BAD_ATTEMPTS" default:"3"`
	MaxQueriesPerStep int `json:"max_queries_per_step" env:"RESEARCH_MAX_QUERIES_PER_STEP" default:"3"`
	MaxURLsPerStep   int `json:"max_urls_per_step" env:"RESEARCH_MAX_URLS_PER_STEP" default:"5"`
	MinRelevanceScore float64 `json:"min_relevance_score" env:"RESEARCH_MIN_RELEVANCE_SCORE" default:"0.8"`
	MaxReferences    int `json:"max_references" env:"RESEARCH_MAX_REFERENCES" default:"10"`

	StepTimeout  time.Duration `json:"step_timeout" env:"RESEARCH_STEP_TIMEOUT" default:"30s"`
	TotalTimeout time.Duration `json:"total_timeout" env:"RESEARCH_TOTAL_TIMEOUT" default:"600s"`

	// BeastModeThreshold is the remaining-budget fraction (of total budget)
	// that trips beast mode, independent of ReserveFinalRatio.
	BeastModeThreshold float64 `json:"beast_mode_threshold" env:"RESEARCH_BEAST_MODE_THRESHOLD" default:"0.15"`

	AllowCoding bool `json:"allow_coding" env:"RESEARCH_ALLOW_CODING" default:"false"`

	SearchProviderOrder []string `json:"search_provider_order"`

	RateLimit   RateLimitConfig   `json:"rate_limit"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Cache       CacheConfig       `json:"cache"`

	logger corelog.Logger `json:"-"`
}

// RateLimitConfig configures the global + per-domain admission caps (C5).
type RateLimitConfig struct {
	MaxPerMinute        int           `json:"max_per_minute" env:"RESEARCH_RATE_MAX_PER_MINUTE" default:"60"`
	MaxPerHour          int           `json:"max_per_hour" env:"RESEARCH_RATE_MAX_PER_HOUR" default:"1000"`
	MaxPerDomain        int           `json:"max_per_domain" env:"RESEARCH_RATE_MAX_PER_DOMAIN" default:"3"`
	MinIntervalPerDomain time.Duration `json:"min_interval_per_domain" env:"RESEARCH_RATE_MIN_INTERVAL_PER_DOMAIN" default:"250ms"`
}

// ConcurrencyConfig configures the adaptive worker-pool ceiling (C6).
type ConcurrencyConfig struct {
	Initial int `json:"initial" env:"RESEARCH_CONCURRENCY_INITIAL" default:"5"`
	Min     int `json:"min" env:"RESEARCH_CONCURRENCY_MIN" default:"1"`
	Max     int `json:"max" env:"RESEARCH_CONCURRENCY_MAX" default:"20"`

	AdjustmentInterval time.Duration `json:"adjustment_interval" env:"RESEARCH_CONCURRENCY_ADJUST_INTERVAL" default:"5s"`
	CPULimit           float64       `json:"cpu_limit" env:"RESEARCH_CONCURRENCY_CPU_LIMIT" default:"0.85"`
	MemoryLimit        float64       `json:"memory_limit" env:"RESEARCH_CONCURRENCY_MEMORY_LIMIT" default:"0.85"`
	ScaleDownThreshold float64       `json:"scale_down_threshold" env:"RESEARCH_CONCURRENCY_SCALE_DOWN" default:"0.3"`
	ScaleUpThreshold   float64       `json:"scale_up_threshold" env:"RESEARCH_CONCURRENCY_SCALE_UP" default:"0.9"`
}

// CacheConfig configures ContentCache bounds (C2).
type CacheConfig struct {
	MaxSizeBytes int64         `json:"max_size_bytes" env:"RESEARCH_CACHE_MAX_SIZE_BYTES" default:"524288000"`
	MaxEntries   int           `json:"max_entries" env:"RESEARCH_CACHE_MAX_ENTRIES" default:"1000"`
	DefaultTTL   time.Duration `json:"default_ttl" env:"RESEARCH_CACHE_DEFAULT_TTL" default:"24h"`
}

// Option configures a Config at construction time. Options are applied
// after environment loading, so they take highest priority.
type Option func(*Config) error

// Default returns the baked-in default configuration (lowest priority
// layer). Every field here mirrors the table in spec.md §6.
func Default() *Config {
	return &Config{
		Language:          "en",
		TokenBudget:       1_000_000,
		ReserveFinalRatio: 0.15,
		MaxSteps:          50,
		MaxBadAttempts:    3,
		MaxQueriesPerStep: 3,
		MaxURLsPerStep:    5,
		MinRelevanceScore: 0.8,
		MaxReferences:     10,
		StepTimeout:       30 * time.Second,
		TotalTimeout:      600 * time.Second,
		BeastModeThreshold: 0.15,
		SearchProviderOrder: []string{"primary"},
		RateLimit: RateLimitConfig{
			MaxPerMinute:         60,
			MaxPerHour:           1000,
			MaxPerDomain:         3,
			MinIntervalPerDomain: 250 * time.Millisecond,
		},
		Concurrency: ConcurrencyConfig{
			Initial:            5,
			Min:                1,
			Max:                20,
			AdjustmentInterval: 5 * time.Second,
			CPULimit:           0.85,
			MemoryLimit:        0.85,
			ScaleDownThreshold: 0.3,
			ScaleUpThreshold:   0.9,
		},
		Cache: CacheConfig{
			MaxSizeBytes: 500 * 1024 * 1024,
			MaxEntries:   1000,
			DefaultTTL:   24 * time.Hour,
		},
		logger: corelog.NoOpLogger{},
	}
}

// LoadFromEnv overlays environment variable values onto cfg, matching the
// env tags documented on each field above.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("RESEARCH_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v, ok := getEnvInt("RESEARCH_TOKEN_BUDGET"); ok {
		c.TokenBudget = v
	}
	if v, ok := getEnvFloat("RESEARCH_RESERVE_FINAL_RATIO"); ok {
		c.ReserveFinalRatio = v
	}
	if v, ok := getEnvBool("RESEARCH_RESERVE_FRACTION_OF_REMAINING"); ok {
		c.ReserveFinalIsFractionOfRemaining = v
	}
	if v, ok := getEnvInt("RESEARCH_MAX_STEPS"); ok {
		c.MaxSteps = v
	}
	if v, ok := getEnvInt("RESEARCH_MAX_BAD_ATTEMPTS"); ok {
		c.MaxBadAttempts = v
	}
	if v, ok := getEnvInt("RESEARCH_MAX_QUERIES_PER_STEP"); ok {
		c.MaxQueriesPerStep = v
	}
	if v, ok := getEnvInt("RESEARCH_MAX_URLS_PER_STEP"); ok {
		c.MaxURLsPerStep = v
	}
	if v, ok := getEnvFloat("RESEARCH_MIN_RELEVANCE_SCORE"); ok {
		c.MinRelevanceScore = v
	}
	if v, ok := getEnvInt("RESEARCH_MAX_REFERENCES"); ok {
		c.MaxReferences = v
	}
	if v, ok := getEnvDuration("RESEARCH_STEP_TIMEOUT"); ok {
		c.StepTimeout = v
	}
	if v, ok := getEnvDuration("RESEARCH_TOTAL_TIMEOUT"); ok {
		c.TotalTimeout = v
	}
	if v, ok := getEnvFloat("RESEARCH_BEAST_MODE_THRESHOLD"); ok {
		c.BeastModeThreshold = v
	}
	if v, ok := getEnvBool("RESEARCH_ALLOW_CODING"); ok {
		c.AllowCoding = v
	}
	if v, ok := getEnvInt("RESEARCH_RATE_MAX_PER_MINUTE"); ok {
		c.RateLimit.MaxPerMinute = v
	}
	if v, ok := getEnvInt("RESEARCH_RATE_MAX_PER_HOUR"); ok {
		c.RateLimit.MaxPerHour = v
	}
	if v, ok := getEnvInt("RESEARCH_RATE_MAX_PER_DOMAIN"); ok {
		c.RateLimit.MaxPerDomain = v
	}
	if v, ok := getEnvDuration("RESEARCH_RATE_MIN_INTERVAL_PER_DOMAIN"); ok {
		c.RateLimit.MinIntervalPerDomain = v
	}
	if v, ok := getEnvInt("RESEARCH_CONCURRENCY_INITIAL"); ok {
		c.Concurrency.Initial = v
	}
	if v, ok := getEnvInt("RESEARCH_CONCURRENCY_MIN"); ok {
		c.Concurrency.Min = v
	}
	if v, ok := getEnvInt("RESEARCH_CONCURRENCY_MAX"); ok {
		c.Concurrency.Max = v
	}
	if v, ok := getEnvDuration("RESEARCH_CONCURRENCY_ADJUST_INTERVAL"); ok {
		c.Concurrency.AdjustmentInterval = v
	}
	if v, ok := getEnvFloat("RESEARCH_CONCURRENCY_CPU_LIMIT"); ok {
		c.Concurrency.CPULimit = v
	}
	if v, ok := getEnvFloat("RESEARCH_CONCURRENCY_MEMORY_LIMIT"); ok {
		c.Concurrency.MemoryLimit = v
	}
	if v, ok := getEnvFloat("RESEARCH_CONCURRENCY_SCALE_DOWN"); ok {
		c.Concurrency.ScaleDownThreshold = v
	}
	if v, ok := getEnvFloat("RESEARCH_CONCURRENCY_SCALE_UP"); ok {
		c.Concurrency.ScaleUpThreshold = v
	}
	if v, ok := getEnvInt64("RESEARCH_CACHE_MAX_SIZE_BYTES"); ok {
		c.Cache.MaxSizeBytes = v
	}
	if v, ok := getEnvInt("RESEARCH_CACHE_MAX_ENTRIES"); ok {
		c.Cache.MaxEntries = v
	}
	if v, ok := getEnvDuration("RESEARCH_CACHE_DEFAULT_TTL"); ok {
		c.Cache.DefaultTTL = v
	}
	return nil
}

func getEnvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func getEnvInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

func getEnvFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

func getEnvDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}

// New builds a Config from defaults, environment overrides, then options,
// matching core.NewConfig's precedence order.
func New(opts ...Option) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if cfg.logger == nil {
		cfg.logger = corelog.NoOpLogger{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads a Config from a YAML file, layered the same way New is:
// defaults, then env, then the file's contents, then options.
func LoadFile(path string, opts ...Option) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if cfg.logger == nil {
		cfg.logger = corelog.NoOpLogger{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.TokenBudget <= 0 {
		return fmt.Errorf("token budget must be positive")
	}
	if c.ReserveFinalRatio < 0 || c.ReserveFinalRatio > 1 {
		return fmt.Errorf("reserve final ratio must be within [0,1]")
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive")
	}
	if c.Concurrency.Min <= 0 || c.Concurrency.Max < c.Concurrency.Min {
		return fmt.Errorf("concurrency bounds invalid: min=%d max=%d", c.Concurrency.Min, c.Concurrency.Max)
	}
	if c.Concurrency.Initial < c.Concurrency.Min || c.Concurrency.Initial > c.Concurrency.Max {
		return fmt.Errorf("concurrency initial %d out of [%d,%d]", c.Concurrency.Initial, c.Concurrency.Min, c.Concurrency.Max)
	}
	if c.Cache.MaxEntries <= 0 || c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache bounds must be positive")
	}
	return nil
}

// Logger returns the configured logger, defaulting to a no-op.
func (c *Config) Logger() corelog.Logger {
	if c.logger == nil {
		return corelog.NoOpLogger{}
	}
	return c.logger
}

// --- Functional options ---

func WithLogger(logger corelog.Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

func WithTokenBudget(budget int) Option {
	return func(c *Config) error {
		if budget <= 0 {
			return fmt.Errorf("token budget must be positive, got %d", budget)
		}
		c.TokenBudget = budget
		return nil
	}
}

func WithReserveFinalRatio(ratio float64) Option {
	return func(c *Config) error {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("reserve final ratio must be within [0,1], got %f", ratio)
		}
		c.ReserveFinalRatio = ratio
		return nil
	}
}

func WithMaxSteps(steps int) Option {
	return func(c *Config) error {
		if steps <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", steps)
		}
		c.MaxSteps = steps
		return nil
	}
}

func WithMaxBadAttempts(n int) Option {
	return func(c *Config) error {
		c.MaxBadAttempts = n
		return nil
	}
}

func WithStepTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.StepTimeout = d
		return nil
	}
}

func WithTotalTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.TotalTimeout = d
		return nil
	}
}

func WithSearchProviderOrder(order []string) Option {
	return func(c *Config) error {
		c.SearchProviderOrder = order
		return nil
	}
}

func WithAllowCoding(allow bool) Option {
	return func(c *Config) error {
		c.AllowCoding = allow
		return nil
	}
}

func WithLanguage(lang string) Option {
	return func(c *Config) error {
		c.Language = lang
		return nil
	}
}

func WithConcurrency(initial, min, max int) Option {
	return func(c *Config) error {
		c.Concurrency.Initial = initial
		c.Concurrency.Min = min
		c.Concurrency.Max = max
		return nil
	}
}

func WithRateLimit(maxPerMinute, maxPerHour, maxPerDomain int) Option {
	return func(c *Config) error {
		c.RateLimit.MaxPerMinute = maxPerMinute
		c.RateLimit.MaxPerHour = maxPerHour
		c.RateLimit.MaxPerDomain = maxPerDomain
		return nil
	}
}

func WithCache(maxSizeBytes int64, maxEntries int, ttl time.Duration) Option {
	return func(c *Config) error {
		c.Cache.MaxSizeBytes = maxSizeBytes
		c.Cache.MaxEntries = maxEntries
		c.Cache.DefaultTTL = ttl
		return nil
	}
}
