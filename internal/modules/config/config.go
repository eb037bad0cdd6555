package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"

	defaultConfigFile = "values_local.yaml"
	defaultConfigDir  = "configs"
)

// Config: всё, что бот читает при старте. Передаётся в конструкторы явно.
type Config struct {
	Service struct {
		Name string `yaml:"name" envconfig:"SERVICE_NAME"`
	} `yaml:"service"`

	Trading    Trading    `yaml:"trading"`
	Indicators Indicators `yaml:"indicators"`
	Schedule   Schedule   `yaml:"schedule"`
	Storage    Storage    `yaml:"storage"`
	Exchange   Exchange   `yaml:"exchange"`
	Ranking    Ranking    `yaml:"ranking"`
	Log        Log        `yaml:"log"`
	Telegram   Telegram   `yaml:"telegram"`
	Health     Health     `yaml:"health"`
	Tracing    Tracing    `yaml:"tracing"`
}

// Trading: пороги сигналов и аллокация.
type Trading struct {
	QuoteCurrency   string  `yaml:"quote_currency" envconfig:"QUOTE_CURRENCY"`
	MaxPositions    int     `yaml:"max_positions" envconfig:"MAX_POSITIONS"`
	CapitalFraction float64 `yaml:"capital_fraction" envconfig:"CAPITAL_FRACTION"`
	RSIThreshold    float64 `yaml:"rsi_threshold" envconfig:"RSI_THRESHOLD"`
	TakeProfit      float64 `yaml:"take_profit" envconfig:"TAKE_PROFIT"`
	StopLoss        float64 `yaml:"stop_loss" envconfig:"STOP_LOSS"`
	CandidateLimit  int     `yaml:"candidate_limit" envconfig:"CANDIDATE_LIMIT"`
	// ReservePerBuy: вычитать потраченный нотионал из доступного баланса внутри цикла.
	ReservePerBuy bool `yaml:"reserve_per_buy" envconfig:"RESERVE_PER_BUY"`
}

type Indicators struct {
	Timeframe    string  `yaml:"timeframe" envconfig:"TIMEFRAME"`
	Bars         int     `yaml:"bars" envconfig:"BARS"`
	RSIPeriod    int     `yaml:"rsi_period" envconfig:"RSI_PERIOD"`
	MACDFast     int     `yaml:"macd_fast" envconfig:"MACD_FAST"`
	MACDSlow     int     `yaml:"macd_slow" envconfig:"MACD_SLOW"`
	MACDSignal   int     `yaml:"macd_signal" envconfig:"MACD_SIGNAL"`
	BBPeriod     int     `yaml:"bb_period" envconfig:"BB_PERIOD"`
	BBDeviations float64 `yaml:"bb_deviations" envconfig:"BB_DEVIATIONS"`
}

type Schedule struct {
	Interval               time.Duration `yaml:"interval" envconfig:"CYCLE_INTERVAL"`
	Backoff                time.Duration `yaml:"backoff" envconfig:"CYCLE_BACKOFF"`
	BackoffMax             time.Duration `yaml:"backoff_max" envconfig:"CYCLE_BACKOFF_MAX"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" envconfig:"MAX_CONSECUTIVE_FAILURES"`
}

// Storage: driver = file | postgres.
type Storage struct {
	Driver        string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	PositionsFile string `yaml:"positions_file" envconfig:"POSITIONS_FILE"`
	DSN           string `yaml:"db_dsn" envconfig:"DATABASE_DSN"`
}

type Exchange struct {
	BaseURL    string        `yaml:"base_url" envconfig:"EXCHANGE_BASE_URL"`
	APIKey     string        `yaml:"-" envconfig:"API_KEY"`
	APISecret  string        `yaml:"-" envconfig:"API_SECRET"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"EXCHANGE_TIMEOUT"`
	RecvWindow int64         `yaml:"recv_window" envconfig:"EXCHANGE_RECV_WINDOW"`
	// RateLimit: запросов в секунду к REST API биржи.
	RateLimit float64 `yaml:"rate_limit" envconfig:"EXCHANGE_RATE_LIMIT"`
}

type Ranking struct {
	BaseURL    string        `yaml:"base_url" envconfig:"RANKING_BASE_URL"`
	VsCurrency string        `yaml:"vs_currency" envconfig:"RANKING_VS_CURRENCY"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"RANKING_TIMEOUT"`
	DemoAPIKey string        `yaml:"-" envconfig:"COINGECKO_API_KEY"`
}

type Log struct {
	File       string `yaml:"file" envconfig:"LOG_FILE"`
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" envconfig:"LOG_MAX_BACKUPS"`
	Console    bool   `yaml:"console" envconfig:"LOG_CONSOLE"`
}

type Telegram struct {
	Token  string `yaml:"token" envconfig:"TELEGRAM_TOKEN"`
	ChatID int64  `yaml:"chat_id" envconfig:"TELEGRAM_CHAT_ID"`
}

type Health struct {
	Addr string `yaml:"addr" envconfig:"HEALTH_ADDR"`
}

type Tracing struct {
	Enabled bool   `yaml:"enabled" envconfig:"TRACING_ENABLED"`
	Host    string `yaml:"host" envconfig:"JAEGER_AGENT_HOST"`
	Port    int    `yaml:"port" envconfig:"JAEGER_AGENT_PORT"`
}

// Default: 3 позиции, 100% баланса, RSI<35, TP 4%, SL 4%, цикл раз в 5 минут.
func Default() Config {
	cfg := Config{}
	cfg.Service.Name = "spot_bot"
	cfg.Trading = Trading{
		QuoteCurrency:   "USDT",
		MaxPositions:    3,
		CapitalFraction: 1.0,
		RSIThreshold:    35,
		TakeProfit:      1.04,
		StopLoss:        0.96,
		CandidateLimit:  20,
		ReservePerBuy:   true,
	}
	cfg.Indicators = Indicators{
		Timeframe:    "1h",
		Bars:         100,
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BBPeriod:     20,
		BBDeviations: 2.0,
	}
	cfg.Schedule = Schedule{
		Interval:               5 * time.Minute,
		Backoff:                time.Minute,
		BackoffMax:             5 * time.Minute,
		MaxConsecutiveFailures: 10,
	}
	cfg.Storage = Storage{
		Driver:        "file",
		PositionsFile: "positions.json",
	}
	cfg.Exchange = Exchange{
		BaseURL:    "https://api.binance.com",
		Timeout:    10 * time.Second,
		RecvWindow: 5000,
		RateLimit:  10,
	}
	cfg.Ranking = Ranking{
		BaseURL:    "https://api.coingecko.com",
		VsCurrency: "usd",
		Timeout:    10 * time.Second,
	}
	cfg.Log = Log{
		File:       "trading.log",
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 5,
		Console:    true,
	}
	cfg.Health = Health{Addr: ":8080"}
	cfg.Tracing = Tracing{Host: "localhost", Port: 6831}
	return cfg
}

// NewConfig: дефолты -> yaml (если есть) -> .env -> переменные окружения.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = defaultConfigDir
	}
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	if err := cfg.LoadFile(filepath.Join(dir, name)); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// LoadFile накладывает yaml поверх текущих значений. Отсутствующий файл не считается ошибкой.
func (c *Config) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "open config file %s", path)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(c); err != nil && err != io.EOF {
		return errors.Wrapf(err, "decode config file %s", path)
	}
	return nil
}

// ApplyEnv: переменные окружения перекрывают файл. Ключи без префикса (API_KEY, API_SECRET...).
func (c *Config) ApplyEnv() error {
	for _, section := range []any{
		&c.Service, &c.Trading, &c.Indicators, &c.Schedule, &c.Storage,
		&c.Exchange, &c.Ranking, &c.Log, &c.Telegram, &c.Health, &c.Tracing,
	} {
		if err := envconfig.Process("", section); err != nil {
			return errors.Wrap(err, "read env")
		}
	}
	return nil
}

// Validate возвращает первую найденную проблему.
func (c *Config) Validate() error {
	t := c.Trading
	switch {
	case t.QuoteCurrency == "":
		return errors.New("trading.quote_currency is empty")
	case t.MaxPositions <= 0:
		return errors.Errorf("trading.max_positions (%d) must be positive", t.MaxPositions)
	case t.CapitalFraction <= 0 || t.CapitalFraction > 1:
		return errors.Errorf("trading.capital_fraction (%f) must be in (0, 1]", t.CapitalFraction)
	case t.RSIThreshold <= 0 || t.RSIThreshold >= 100:
		return errors.Errorf("trading.rsi_threshold (%f) must be in (0, 100)", t.RSIThreshold)
	case t.TakeProfit <= 1:
		return errors.Errorf("trading.take_profit (%f) must be > 1", t.TakeProfit)
	case t.StopLoss <= 0 || t.StopLoss >= 1:
		return errors.Errorf("trading.stop_loss (%f) must be in (0, 1)", t.StopLoss)
	case t.CandidateLimit <= 0:
		return errors.Errorf("trading.candidate_limit (%d) must be positive", t.CandidateLimit)
	}

	in := c.Indicators
	switch {
	case in.Timeframe == "":
		return errors.New("indicators.timeframe is empty")
	case in.RSIPeriod < 2:
		return errors.Errorf("indicators.rsi_period (%d) must be >= 2", in.RSIPeriod)
	case in.MACDFast <= 0 || in.MACDSlow <= in.MACDFast || in.MACDSignal <= 0:
		return errors.New("indicators: macd periods must satisfy 0 < fast < slow and signal > 0")
	case in.BBPeriod < 2 || in.BBDeviations <= 0:
		return errors.New("indicators: bb_period must be >= 2 and bb_deviations > 0")
	case in.Bars < in.WarmupBars():
		return errors.Errorf("indicators.bars (%d) is shorter than warm-up (%d)", in.Bars, in.WarmupBars())
	}

	s := c.Schedule
	switch {
	case s.Interval <= 0:
		return errors.New("schedule.interval must be positive")
	case s.Backoff <= 0:
		return errors.New("schedule.backoff must be positive")
	case s.BackoffMax < s.Backoff:
		return errors.New("schedule.backoff_max must be >= schedule.backoff")
	case s.MaxConsecutiveFailures <= 0:
		return errors.New("schedule.max_consecutive_failures must be positive")
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.PositionsFile == "" {
			return errors.New("storage.positions_file is empty")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.db_dsn is required for postgres driver")
		}
	default:
		return errors.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Exchange.BaseURL == "" || c.Ranking.BaseURL == "" {
		return errors.New("exchange.base_url and ranking.base_url are required")
	}
	return nil
}

// WarmupBars: минимальное число свечей, после которого все индикаторы определены.
func (in Indicators) WarmupBars() int {
	n := in.RSIPeriod + 1
	if m := in.MACDSlow + in.MACDSignal - 1; m > n {
		n = m
	}
	if in.BBPeriod > n {
		n = in.BBPeriod
	}
	return n
}
