// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, e.g. config.production.yaml.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "suitability-pipeline"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.CacheTTL == 0 {
		cfg.Database.Redis.CacheTTL = 1800
	}

	if cfg.Scoring.Weights == (ScoringWeights{}) {
		cfg.Scoring.Weights = DefaultScoringWeights()
	}
	if cfg.Scoring.Thresholds == (Thresholds{}) {
		cfg.Scoring.Thresholds = DefaultThresholds()
	}
	if cfg.Scoring.DefaultAge == 0 {
		cfg.Scoring.DefaultAge = 30
	}

	if cfg.Workflow.SLAHours == (SLAHours{}) {
		cfg.Workflow.SLAHours = DefaultSLAHours()
	}
	if cfg.Workflow.PriorityBands == (PriorityBands{}) {
		cfg.Workflow.PriorityBands = DefaultPriorityBands()
	}

	if len(cfg.Recommendation.Bands) == 0 {
		cfg.Recommendation.Bands = DefaultStrategyBands()
	}
	if cfg.Recommendation.RankWeights == (RankWeights{}) {
		cfg.Recommendation.RankWeights = DefaultRankWeights()
	}
	if cfg.Recommendation.BucketCap == 0 {
		cfg.Recommendation.BucketCap = 10
	}
	if cfg.Recommendation.PicksPerBucket == 0 {
		cfg.Recommendation.PicksPerBucket = 3
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func validateConfig(cfg *Config) error {
	w := cfg.Scoring.Weights
	sum := w.Age + w.Income + w.Horizon + w.MaxLoss + w.Amount + w.Questionnaire
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.2f", sum)
	}
	if cfg.Scoring.Thresholds.ConservativeMax >= cfg.Scoring.Thresholds.ModerateMax {
		return fmt.Errorf("conservative_max must be below moderate_max")
	}
	if len(cfg.Recommendation.Bands) == 0 {
		return fmt.Errorf("recommendation requires at least one strategy band")
	}
	for i, b := range cfg.Recommendation.Bands {
		rsum := b.ConservativeRatio + b.ModerateRatio + b.AggressiveRatio
		if rsum < 0.99 || rsum > 1.01 {
			return fmt.Errorf("strategy band %d ratios must sum to 1.0, got %.2f", i, rsum)
		}
	}
	return nil
}

// DefaultScoringWeights is the canonical six-factor weight table.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Age:           0.15,
		Income:        0.20,
		Horizon:       0.15,
		MaxLoss:       0.25,
		Amount:        0.15,
		Questionnaire: 0.10,
	}
}

func DefaultThresholds() Thresholds {
	return Thresholds{ConservativeMax: 30, ModerateMax: 70}
}

func DefaultSLAHours() SLAHours {
	return SLAHours{Junior: 2, Mid: 4, Senior: 8, Committee: 24}
}

func DefaultPriorityBands() PriorityBands {
	return PriorityBands{Critical: 80, High: 60, Medium: 40}
}

// DefaultStrategyBands maps score bands to allocation ratios and quality
// filters. Lower scores demand higher risk-adjusted quality and tolerate
// less volatility.
func DefaultStrategyBands() []StrategyBand {
	return []StrategyBand{
		{MaxScore: 35, ConservativeRatio: 0.70, ModerateRatio: 0.25, AggressiveRatio: 0.05, MinSharpe: 2.0, MaxVolatility: 8.0},
		{MaxScore: 65, ConservativeRatio: 0.30, ModerateRatio: 0.50, AggressiveRatio: 0.20, MinSharpe: 2.5, MaxVolatility: 12.0},
		{MaxScore: 101, ConservativeRatio: 0.10, ModerateRatio: 0.30, AggressiveRatio: 0.60, MinSharpe: 3.0, MaxVolatility: 20.0},
	}
}

func DefaultRankWeights() RankWeights {
	return RankWeights{Return: 0.25, Volatility: 0.30, Sharpe: 0.25, Rating: 0.20}
}
