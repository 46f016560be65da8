package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Storage configures the sqlite signal store.
type Storage struct {
	Path string `yaml:"path"`
}

// Telegram configures chat delivery of signals.
type Telegram struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Kafka configures publication of signals to a topic.
type Kafka struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Trading holds the evaluation-loop inputs that are not strategy tuning.
type Trading struct {
	Symbols         []string `yaml:"symbols"`
	Timeframe       string   `yaml:"timeframe"`
	TotalCapital    float64  `yaml:"total_capital"`
	MinConfidence   float64  `yaml:"min_confidence"`
	SkipInvalidRisk bool     `yaml:"skip_invalid_risk"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App            `yaml:"app"`
	Storage  Storage        `yaml:"storage"`
	Telegram Telegram       `yaml:"telegram"`
	Kafka    Kafka          `yaml:"kafka"`
	Trading  Trading        `yaml:"trading"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// Default returns a complete configuration with stock values.
func Default() *Config {
	return &Config{
		App: App{
			Name:        "protrader",
			LogLevel:    "info",
			MetricsAddr: ":9102",
		},
		Storage: Storage{Path: "database/trading.db"},
		Telegram: Telegram{
			BaseURL: "https://api.telegram.org",
		},
		Kafka: Kafka{
			Brokers: []string{"localhost:19092"},
			Topic:   "trading.signals",
		},
		Trading: Trading{
			Timeframe:     "1D",
			TotalCapital:  100_000_000,
			MinConfidence: 60,
		},
		Strategy: DefaultStrategy(),
	}
}

// Load reads a YAML file from disk on top of the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from BOT_* environment variables.
func (c *Config) ApplyEnv() {
	c.App.LogLevel = getEnv("BOT_LOG_LEVEL", c.App.LogLevel)
	c.App.MetricsAddr = getEnv("BOT_METRICS_ADDR", c.App.MetricsAddr)
	c.Storage.Path = getEnv("BOT_DB_PATH", c.Storage.Path)

	if symbols := getEnv("BOT_SYMBOLS", ""); symbols != "" {
		c.Trading.Symbols = splitList(symbols)
	}
	c.Trading.TotalCapital = getEnvFloat("BOT_CAPITAL", c.Trading.TotalCapital)
	c.Trading.MinConfidence = getEnvFloat("BOT_MIN_CONFIDENCE", c.Trading.MinConfidence)

	c.Strategy.Risk.StopLossPct = getEnvFloat("BOT_STOP_LOSS_PCT", c.Strategy.Risk.StopLossPct)
	c.Strategy.Risk.TakeProfitPct = getEnvFloat("BOT_TAKE_PROFIT_PCT", c.Strategy.Risk.TakeProfitPct)
	c.Strategy.Risk.MinRiskReward = getEnvFloat("BOT_MIN_RR", c.Strategy.Risk.MinRiskReward)

	c.Strategy.Learning.Enabled = getEnvBool("BOT_ENABLE_LEARNING", c.Strategy.Learning.Enabled)
	c.Strategy.Learning.MinTradesForFilter = getEnvInt("BOT_MIN_TRADES_FOR_FILTER", c.Strategy.Learning.MinTradesForFilter)
	c.Strategy.Learning.MinWinRate = getEnvFloat("BOT_MIN_WIN_RATE", c.Strategy.Learning.MinWinRate)
	c.Strategy.Learning.CooldownDays = getEnvInt("BOT_COOLDOWN_DAYS", c.Strategy.Learning.CooldownDays)

	c.Telegram.Enabled = getEnvBool("BOT_TELEGRAM_ENABLED", c.Telegram.Enabled)
	c.Telegram.BotToken = getEnv("BOT_TELEGRAM_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = getEnvInt64("BOT_TELEGRAM_CHAT_ID", c.Telegram.ChatID)

	c.Kafka.Enabled = getEnvBool("BOT_KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := getEnv("BOT_KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnv("BOT_KAFKA_TOPIC", c.Kafka.Topic)
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if c.Trading.TotalCapital <= 0 {
		return fmt.Errorf("total_capital (%f) must be positive", c.Trading.TotalCapital)
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 100 {
		return fmt.Errorf("min_confidence (%f) must be between 0 and 100", c.Trading.MinConfidence)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return errors.New("telegram enabled but no bot token provided")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("telegram enabled but no chat id provided")
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka enabled but no brokers configured")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka enabled but no topic configured")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
