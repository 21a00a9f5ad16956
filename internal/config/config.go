// Package config загружает конфигурацию сервиса наград из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
// Конфигурация читается один раз при старте и дальше не меняется.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Допустимые значения STORE_DRIVER
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	// Бот опционален: без токена сервис работает только через HTTP API.
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `envconfig:"-"` // заполняется в Load
	// ID чата сообщества (единственный разрешённый групповой чат)
	FloodChatID int64 `envconfig:"FLOOD_CHAT_ID"`

	// --- Database ---
	// Дефолт "postgres" - имя сервиса в docker-compose, для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"rewards"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"reward_ledger"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// postgres - боевое хранилище, memory - для локальной разработки и тестов
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// --- HTTP API ---
	HTTPAddr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPAPIKey          string        `envconfig:"HTTP_API_KEY"`
	HTTPRequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"10s"`
	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`

	// --- Streak reminders ---
	StreakReminderThreshold int `envconfig:"STREAK_REMINDER_THRESHOLD" default:"3"`

	// --- Token ---
	TokenDecimals int32  `envconfig:"TOKEN_DECIMALS" default:"9"`
	TokenSymbol   string `envconfig:"TOKEN_SYMBOL" default:"POKE"`

	// --- Rewards ---
	Rewards RewardConfig `envconfig:"REWARD"`

	// --- Settlement ---
	SettlementWorkers   int    `envconfig:"SETTLEMENT_WORKERS" default:"4"`
	SettlementQueueSize int    `envconfig:"SETTLEMENT_QUEUE_SIZE" default:"256"`
	SettlementMint      string `envconfig:"SETTLEMENT_MINT"`
	SettlementVault     string `envconfig:"SETTLEMENT_VAULT"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureStreakRemindersEnabled bool `envconfig:"FEATURE_STREAK_REMINDERS_ENABLED" default:"true"`
	FeatureSettlementEnabled      bool `envconfig:"FEATURE_SETTLEMENT_ENABLED" default:"true"`
}

// TelegramEnabled сообщает, нужно ли поднимать Telegram-бота.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для STORE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER должен быть %q или %q, получено %q",
			StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR не задан")
	}
	if c.HTTPRequestTimeout <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT должен быть > 0")
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 18 {
		return fmt.Errorf("TOKEN_DECIMALS должен быть в диапазоне 0..18")
	}
	if c.SettlementWorkers <= 0 {
		return fmt.Errorf("SETTLEMENT_WORKERS должен быть > 0")
	}
	if c.SettlementQueueSize <= 0 {
		return fmt.Errorf("SETTLEMENT_QUEUE_SIZE должен быть > 0")
	}

	if c.TelegramEnabled() {
		// members и админка живут только в PostgreSQL
		if c.StoreDriver != StoreDriverPostgres {
			return fmt.Errorf("Telegram-бот требует STORE_DRIVER=postgres")
		}
		if c.FloodChatID == 0 {
			return fmt.Errorf("FLOOD_CHAT_ID не задан или равен 0")
		}
		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH обязателен при включённом боте")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
		if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
			return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
		}
	}

	return c.Rewards.Validate()
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsAdmin сообщает, входит ли Telegram-пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
