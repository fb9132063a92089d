// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Scoring        ScoringConfig        `mapstructure:"scoring"`
	Workflow       WorkflowConfig       `mapstructure:"workflow"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Notifications  NotificationConfig   `mapstructure:"notifications"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds, for role and catalog caches
}

// --- Decision Pipeline Config ---

// ScoringConfig carries the weight table and category thresholds for the
// scoring engine. Kept in configuration, not module-level constants, so tests
// can substitute alternative weight sets.
type ScoringConfig struct {
	Weights    ScoringWeights `mapstructure:"weights"`
	Thresholds Thresholds     `mapstructure:"thresholds"`
	DefaultAge int            `mapstructure:"default_age"`
}

type ScoringWeights struct {
	Age           float64 `mapstructure:"age"`
	Income        float64 `mapstructure:"income"`
	Horizon       float64 `mapstructure:"horizon"`
	MaxLoss       float64 `mapstructure:"max_loss"`
	Amount        float64 `mapstructure:"amount"`
	Questionnaire float64 `mapstructure:"questionnaire"`
}

type Thresholds struct {
	ConservativeMax int `mapstructure:"conservative_max"`
	ModerateMax     int `mapstructure:"moderate_max"`
}

// WorkflowConfig carries stage SLAs and priority bands.
type WorkflowConfig struct {
	SLAHours      SLAHours      `mapstructure:"sla_hours"`
	PriorityBands PriorityBands `mapstructure:"priority_bands"`
}

type SLAHours struct {
	Junior    int `mapstructure:"junior"`
	Mid       int `mapstructure:"mid"`
	Senior    int `mapstructure:"senior"`
	Committee int `mapstructure:"committee"`
}

// PriorityBands are minimum scores for each priority; below Medium is Low.
type PriorityBands struct {
	Critical int `mapstructure:"critical"`
	High     int `mapstructure:"high"`
	Medium   int `mapstructure:"medium"`
}

// RecommendationConfig carries the strategy bands and ranking weights.
type RecommendationConfig struct {
	Bands          []StrategyBand `mapstructure:"bands"`
	RankWeights    RankWeights    `mapstructure:"rank_weights"`
	BucketCap      int            `mapstructure:"bucket_cap"`       // candidates kept per bucket after ranking
	PicksPerBucket int            `mapstructure:"picks_per_bucket"` // products allocated per bucket
}

// StrategyBand applies to scores strictly below MaxScore; the last band (with
// MaxScore 101) catches the rest.
type StrategyBand struct {
	MaxScore          int     `mapstructure:"max_score"`
	ConservativeRatio float64 `mapstructure:"conservative_ratio"`
	ModerateRatio     float64 `mapstructure:"moderate_ratio"`
	AggressiveRatio   float64 `mapstructure:"aggressive_ratio"`
	MinSharpe         float64 `mapstructure:"min_sharpe"`
	MaxVolatility     float64 `mapstructure:"max_volatility"`
}

type RankWeights struct {
	Return     float64 `mapstructure:"return"`
	Volatility float64 `mapstructure:"volatility"`
	Sharpe     float64 `mapstructure:"sharpe"`
	Rating     float64 `mapstructure:"rating"`
}

// --- Outbound Config ---

type NotificationConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	AWSRegion            string `mapstructure:"aws_region"`
	ReviewDecidedTopic   string `mapstructure:"review_decided_topic"`
	RecommendationTopic  string `mapstructure:"recommendation_topic"`
	AlertSender          string `mapstructure:"alert_sender"`
	OverdueSweepInterval int    `mapstructure:"overdue_sweep_interval"` // minutes, 0 disables
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
